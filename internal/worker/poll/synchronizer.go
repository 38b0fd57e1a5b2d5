// Package poll はビュー単位の定期再読み込みを提供する。
//
// 各ビューは一定間隔でコレクションを読み直し、手元のスナップショットを丸ごと置き換える。
// あるビューの書き込みが別のビューに見えるのは、そのビューの次の読み込み時のみである。
package poll

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Subscription は1つのビューの定期読み込みを表す。
type Subscription struct {
	Name        string
	Interval    time.Duration
	Collections []string // ログ出力用のコレクション名
	Refresh     func(ctx context.Context) error
}

// MetricsRecorder はポーリングのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordPollTick(view string)
	RecordPollError(view string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPollTick(string)  {}
func (nopRecorder) RecordPollError(string) {}

// Synchronizer はビューの定期読み込みを起動・停止する。
type Synchronizer struct {
	logger  *slog.Logger
	metrics MetricsRecorder

	mu     sync.Mutex
	active map[*Handle]struct{}
}

// NewSynchronizer はSynchronizerの新しいインスタンスを生成する。
func NewSynchronizer(logger *slog.Logger, metrics MetricsRecorder) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Synchronizer{
		logger:  logger,
		metrics: metrics,
		active:  make(map[*Handle]struct{}),
	}
}

// Handle は起動中の購読。ビューの破棄時にCancelを呼ぶ。
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	owner  *Synchronizer
}

// Cancel はタイマーを止め、実行中の読み込みの終了を待つ。複数回呼んでもよい。
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
		h.owner.remove(h)
	})
}

// Done は購読が停止すると閉じられるチャネルを返す。
func (h *Handle) Done() <-chan struct{} { return h.done }

// Name は購読名を返す。
func (h *Handle) Name() string { return h.name }

// Subscribe は初回の読み込みを同期的に行い、その後Intervalごとの読み込みを開始する。
// 初回の読み込みに失敗しても購読は開始される（次の周期で再試行する）。
// ctxがキャンセルされた場合も停止する。
func (s *Synchronizer) Subscribe(ctx context.Context, sub Subscription) (*Handle, error) {
	if sub.Refresh == nil {
		return nil, errors.New("poll: subscription has no refresh function")
	}
	if sub.Interval <= 0 {
		return nil, errors.New("poll: interval must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		name:   sub.Name,
		cancel: cancel,
		done:   make(chan struct{}),
		owner:  s,
	}

	s.mu.Lock()
	s.active[h] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("ポーリングを開始しました",
		slog.String("view", sub.Name),
		slog.Duration("interval", sub.Interval),
		slog.String("collections", strings.Join(sub.Collections, ",")),
	)

	s.tick(ctx, sub)
	go s.loop(ctx, sub, h)

	return h, nil
}

func (s *Synchronizer) loop(ctx context.Context, sub Subscription, h *Handle) {
	defer close(h.done)

	ticker := time.NewTicker(sub.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("ポーリングを停止しました", slog.String("view", sub.Name))
			return
		case <-ticker.C:
			s.tick(ctx, sub)
		}
	}
}

func (s *Synchronizer) tick(ctx context.Context, sub Subscription) {
	s.metrics.RecordPollTick(sub.Name)
	if err := sub.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.RecordPollError(sub.Name)
		s.logger.Warn("ポーリングの読み込みに失敗しました",
			slog.String("view", sub.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Synchronizer) remove(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, h)
}

// Active は起動中の購読数を返す。
func (s *Synchronizer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close は全ての購読を停止する。
func (s *Synchronizer) Close() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.active))
	for h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}
