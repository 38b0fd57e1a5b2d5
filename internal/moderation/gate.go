package moderation

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/security"
)

// MaxAttachments は1回の投稿で審査できる添付数。
// 分類サービスには1往復で1枚の画像しか送れないため、それ以上は受け付けない。
const MaxAttachments = 1

// State は投稿作成画面の状態。
type State int

const (
	// StateDraft は入力中で、送信できる状態。
	StateDraft State = iota
	// StatePending は分類サービスの判定待ち。
	StatePending
)

func (s State) String() string {
	if s == StatePending {
		return "pending"
	}
	return "draft"
}

// Outcome は審査結果の種別。メトリクスのラベルに使う。
const (
	OutcomeSafe   = "safe"
	OutcomeUnsafe = "unsafe"
	OutcomeError  = "error"
)

// Image は投稿作成時に直接添付された画像。
type Image struct {
	Data     []byte
	MimeType string
}

// Draft は審査前の投稿内容。
type Draft struct {
	AuthorID    string
	Content     string // 入力されたままのHTML
	College     model.College
	Attachments []model.Attachment
	Image       *Image
	Event       *model.EventBroadcast
}

// PostCommitter は審査を通過した投稿を登録する。
type PostCommitter interface {
	AddPost(ctx context.Context, p model.Post) (model.Post, error)
}

// AuthorRecorder は投稿者の投稿数の表示値を更新する。
type AuthorRecorder interface {
	RecordPost(ctx context.Context, authorID string) error
}

// MetricsRecorder は審査結果のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordModeration(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordModeration(string, time.Duration) {}

// Gate は投稿の審査と登録を行う。
// 作成画面（composerID）ごとに同時に1件のみ審査する。
type Gate struct {
	classifier Classifier
	posts      PostCommitter
	authors    AuthorRecorder
	media      MediaFetcher
	sanitizer  security.Sanitizer
	logger     *slog.Logger
	metrics    MetricsRecorder
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]bool
	wg      sync.WaitGroup
}

// GateOption はGateの任意設定。
type GateOption func(*Gate)

// WithAuthorRecorder は投稿数の表示値を更新する先を設定する。
func WithAuthorRecorder(r AuthorRecorder) GateOption {
	return func(g *Gate) { g.authors = r }
}

// WithMediaFetcher はURLで指定された添付画像の取得方法を設定する。
func WithMediaFetcher(f MediaFetcher) GateOption {
	return func(g *Gate) { g.media = f }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// NewGate はGateの新しいインスタンスを生成する。
// timeoutは分類サービスの呼び出しから登録完了までの上限。
func NewGate(
	classifier Classifier,
	posts PostCommitter,
	sanitizer security.Sanitizer,
	logger *slog.Logger,
	timeout time.Duration,
	opts ...GateOption,
) *Gate {
	g := &Gate{
		classifier: classifier,
		posts:      posts,
		sanitizer:  sanitizer,
		logger:     logger,
		metrics:    nopRecorder{},
		timeout:    timeout,
		pending:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State は作成画面の現在の状態を返す。
func (g *Gate) State(composerID string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending[composerID] {
		return StatePending
	}
	return StateDraft
}

type result struct {
	post model.Post
	err  error
}

// Submit は投稿内容を審査し、安全と判定された場合のみ登録する。
//
// 審査中に同じcomposerIDで呼ばれた場合は分類サービスを呼ばずにSUBMISSION_PENDINGを返す。
// 審査はctxから切り離して実行される。呼び出し元が先にキャンセルしてもctx.Err()を返すだけで、
// 判定が安全であれば投稿は登録される。
func (g *Gate) Submit(ctx context.Context, composerID string, d Draft) (model.Post, error) {
	if err := validate(d); err != nil {
		return model.Post{}, err
	}

	g.mu.Lock()
	if g.pending[composerID] {
		g.mu.Unlock()
		return model.Post{}, model.NewSubmissionPendingError()
	}
	g.pending[composerID] = true
	g.mu.Unlock()

	done := make(chan result, 1)
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		p, err := g.process(detached, d)
		// 結果を返す前に入力中の状態へ戻す
		g.release(composerID)
		done <- result{post: p, err: err}
	}()

	select {
	case r := <-done:
		return r.post, r.err
	case <-ctx.Done():
		g.logger.Info("審査結果を待たずに呼び出し元が離脱しました",
			slog.String("composer_id", composerID),
		)
		return model.Post{}, ctx.Err()
	}
}

// Wait は切り離して実行中の審査が全て終わるまで待つ。
func (g *Gate) Wait() {
	g.wg.Wait()
}

func (g *Gate) release(composerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, composerID)
}

func validate(d Draft) error {
	if d.AuthorID == "" {
		return model.NewInvalidInputError("投稿者は必須です")
	}
	if d.College != "" && !d.College.Valid() {
		return model.NewInvalidInputError(fmt.Sprintf("不明なカレッジです: %s", d.College))
	}
	if len(d.Attachments) > MaxAttachments || (d.Image != nil && len(d.Attachments) > 0) {
		return model.NewInvalidInputError(fmt.Sprintf("添付できる画像は%d枚までです", MaxAttachments))
	}
	if strings.TrimSpace(d.Content) == "" && d.Image == nil && len(d.Attachments) == 0 && d.Event == nil {
		return model.NewInvalidInputError("本文を入力してください")
	}
	return nil
}

func (g *Gate) process(ctx context.Context, d Draft) (model.Post, error) {
	start := time.Now()

	req := Request{Text: g.classifierText(d)}
	switch {
	case d.Image != nil:
		req.ImageBytes = d.Image.Data
		req.MimeType = d.Image.MimeType
	case len(d.Attachments) > 0:
		if g.media == nil {
			return g.fail(start, d, fmt.Errorf("添付画像の取得手段が設定されていません"))
		}
		data, mimeType, err := g.media.Fetch(ctx, d.Attachments[0].URL)
		if err != nil {
			return g.fail(start, d, err)
		}
		req.ImageBytes = data
		req.MimeType = mimeType
	}

	verdict, err := g.classifier.Classify(ctx, req)
	if err != nil {
		return g.fail(start, d, err)
	}

	if !verdict.IsSafe {
		g.metrics.RecordModeration(OutcomeUnsafe, time.Since(start))
		g.logger.Info("投稿が審査で拒否されました",
			slog.String("author_id", d.AuthorID),
			slog.String("category", string(verdict.Category)),
		)
		return model.Post{}, model.NewPostRejectedError(verdict.SafetyReason)
	}

	attachments := append([]model.Attachment(nil), d.Attachments...)
	if len(attachments) > 0 && attachments[0].MimeType == "" {
		attachments[0].MimeType = req.MimeType
	}
	college := d.College
	if college == "" {
		college = model.CollegeGlobal
	}
	p := model.Post{
		AuthorID:    d.AuthorID,
		Content:     g.sanitizer.Sanitize(d.Content),
		Attachments: attachments,
		College:     college,
		Moderation:  model.Moderation{Category: verdict.Category, IsSafe: true},
		Event:       d.Event,
	}
	committed, err := g.posts.AddPost(ctx, p)
	if err != nil {
		// 判定は安全だが登録できなかった。登録されていないため拒否と同じく扱う
		return g.fail(start, d, fmt.Errorf("投稿の登録に失敗しました: %w", err))
	}

	if g.authors != nil {
		if err := g.authors.RecordPost(ctx, d.AuthorID); err != nil {
			g.logger.Warn("投稿数の更新に失敗しました",
				slog.String("author_id", d.AuthorID),
				slog.String("error", err.Error()),
			)
		}
	}

	g.metrics.RecordModeration(OutcomeSafe, time.Since(start))
	g.logger.Info("投稿を登録しました",
		slog.String("post_id", committed.ID),
		slog.String("author_id", d.AuthorID),
		slog.String("category", string(verdict.Category)),
	)
	return committed, nil
}

// fail は審査自体の失敗を汎用の理由による拒否として返す。
func (g *Gate) fail(start time.Time, d Draft, err error) (model.Post, error) {
	g.metrics.RecordModeration(OutcomeError, time.Since(start))
	g.logger.Warn("審査を完了できなかったため投稿を拒否しました",
		slog.String("author_id", d.AuthorID),
		slog.String("error", err.Error()),
	)
	return model.Post{}, model.NewPostRejectedError("")
}

func (g *Gate) classifierText(d Draft) string {
	parts := make([]string, 0, 4)
	if d.Event != nil {
		parts = append(parts, d.Event.Title, d.Event.Location)
	}
	if text := g.sanitizer.PlainText(d.Content); text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

// ShareEvent はカレンダーイベントを投稿として共有する。通常の投稿と同じ審査を通る。
func (g *Gate) ShareEvent(ctx context.Context, composerID, authorID string, e model.CalendarEvent, comment string) (model.Post, error) {
	content := comment
	if strings.TrimSpace(content) == "" {
		content = fmt.Sprintf("<p>%s</p>", html.EscapeString(e.Title))
	}
	return g.Submit(ctx, composerID, Draft{
		AuthorID: authorID,
		Content:  content,
		College:  e.College,
		Event: &model.EventBroadcast{
			EventID:  e.ID,
			Title:    e.Title,
			Date:     e.Date,
			Time:     e.Time,
			Location: e.Location,
		},
	})
}
