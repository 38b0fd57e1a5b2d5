// Package cleanup は既読通知の自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した既読通知を定期的に削除する。
// 未読の通知は保持期間を過ぎても残す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NotificationPruner は既読通知の削除インターフェース。notification.Serviceが満たす。
type NotificationPruner interface {
	PruneRead(ctx context.Context, before time.Time) (int, error)
}

// CleanupJob は保持期間を超過した既読通知の削除ジョブ。
// 冪等であり、削除対象がない場合は何も書き込まない。
type CleanupJob struct {
	pruner        NotificationPruner
	logger        *slog.Logger
	RetentionDays int // 既読通知の保持日数（デフォルト: 30）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(pruner NotificationPruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		RetentionDays: 30,
		now:           time.Now,
	}
}

// Run は保持期間を超過した既読通知を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.pruner.PruneRead(ctx, before)
	if err != nil {
		j.logger.Error("通知クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("通知クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("通知クリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後と指定間隔ごとにRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
