package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StateStore は取り込み元ごとの取得状態の保存先。store.Storeが満たす。
type StateStore interface {
	LoadScalar(ctx context.Context, key string) (string, bool, error)
	SaveScalar(ctx context.Context, key, value string) error
}

// SourceFetcher は1件の取り込み元を取得するインターフェース。
type SourceFetcher interface {
	Fetch(ctx context.Context, src Source, state *SourceState) error
}

// Scheduler はリソースフィード取得のスケジューリングと並列制御を行う。
// ティッカーごとに取得予定時刻を過ぎた取り込み元を選び、
// semaphoreパターンで最大並列数を制御しながら取得する。
type Scheduler struct {
	sources        []Source
	states         StateStore
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	sources []Source,
	states StateStore,
	fetcher SourceFetcher,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		sources:        sources,
		states:         states,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("sources", len(s.sources)),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は取得予定時刻を過ぎた取り込み元を並列で取得し、状態を保存する。
// 個々の取り込み元の失敗はログに記録し、他の取り込み元の処理は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()

	type job struct {
		src   Source
		state SourceState
	}
	var due []job
	for _, src := range s.sources {
		state, err := s.LoadState(ctx, src.URL)
		if err != nil {
			return err
		}
		if state.Due(start) {
			due = append(due, job{src: src, state: state})
		}
	}

	if len(due) == 0 {
		s.logger.Debug("取得対象のフィードはありません")
		return nil
	}

	s.logger.Info("取り込みサイクルを開始します",
		slog.Int("source_count", len(due)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, j := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, j.src, &j.state); err != nil {
				s.logger.Error("フィードの取り込みに失敗しました",
					slog.String("source_url", j.src.URL),
					slog.String("error", err.Error()),
				)
				return
			}
			if err := s.saveState(ctx, j.src.URL, j.state); err != nil {
				s.logger.Error("取得状態の保存に失敗しました",
					slog.String("source_url", j.src.URL),
					slog.String("error", err.Error()),
				)
			}
		}(j)
	}

	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("source_count", len(due)),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return nil
}

// LoadState は取り込み元の取得状態を返す。未保存の場合はゼロ値（即時取得対象）を返す。
func (s *Scheduler) LoadState(ctx context.Context, sourceURL string) (SourceState, error) {
	raw, found, err := s.states.LoadScalar(ctx, stateKey(sourceURL))
	if err != nil {
		return SourceState{}, fmt.Errorf("取得状態の読み込みに失敗 (%s): %w", sourceURL, err)
	}
	var state SourceState
	if !found {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn("取得状態を復元できないため初期状態から再開します",
			slog.String("source_url", sourceURL),
			slog.String("error", err.Error()),
		)
		return SourceState{}, nil
	}
	return state, nil
}

func (s *Scheduler) saveState(ctx context.Context, sourceURL string, state SourceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.states.SaveScalar(ctx, stateKey(sourceURL), string(data))
}

// stateKey はURLをファイル名としても安全なスロットキーに変換する。
func stateKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return "unihub_import_" + hex.EncodeToString(sum[:8])
}
