package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/unihub/internal/chat"
	"github.com/hitoshi/unihub/internal/config"
	"github.com/hitoshi/unihub/internal/database"
	"github.com/hitoshi/unihub/internal/event"
	"github.com/hitoshi/unihub/internal/group"
	"github.com/hitoshi/unihub/internal/metrics"
	"github.com/hitoshi/unihub/internal/moderation"
	"github.com/hitoshi/unihub/internal/notification"
	"github.com/hitoshi/unihub/internal/post"
	"github.com/hitoshi/unihub/internal/repository"
	"github.com/hitoshi/unihub/internal/resource"
	"github.com/hitoshi/unihub/internal/security"
	"github.com/hitoshi/unihub/internal/store"
	"github.com/hitoshi/unihub/internal/user"
	"github.com/hitoshi/unihub/internal/worker/cleanup"
	"github.com/hitoshi/unihub/internal/worker/importer"
)

// openKVStore は設定されたバックエンドの保存先を開く。
func openKVStore(cfg *config.Config) (repository.KVStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return repository.NewMemoryKVStore(), nil
	case config.BackendFile:
		kv, err := repository.NewFileKVStore(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open store directory: %w", err)
		}
		return kv, nil
	case config.BackendRedis:
		kv, err := repository.NewRedisKVStore(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis: %w", err)
		}
		return kv, nil
	case config.BackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return repository.NewPostgresKVStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}
}

// services はドメインサービス一式。
type services struct {
	store         *store.Store
	posts         *post.Service
	users         *user.Service
	events        *event.Service
	notifications *notification.Service
	groups        *group.Service
	chats         *chat.Service
	resources     *resource.Service
}

func newServices(st *store.Store, cfg *config.Config) *services {
	return &services{
		store:         st,
		posts:         post.NewService(st),
		users:         user.NewService(st),
		events:        event.NewService(st, cfg.EventTimezone),
		notifications: notification.NewService(st),
		groups:        group.NewService(st),
		chats:         chat.NewService(st),
		resources:     resource.NewService(st, security.NewSanitizer()),
	}
}

// newGate は分類サービスへのクライアントと添付画像の取得手段を組み立てて審査ゲートを返す。
func newGate(cfg *config.Config, svc *services, collector *metrics.Collector, logger *slog.Logger) *moderation.Gate {
	guard := security.NewGuard()
	client := moderation.NewClient(
		&http.Client{Timeout: cfg.ModerationTimeout},
		logger,
		cfg.ModerationEndpoint,
		cfg.ModerationAPIKey,
	)
	media := moderation.NewMediaDownloader(guard, cfg.ModerationTimeout, cfg.MediaMaxSize, logger)

	return moderation.NewGate(client, svc.posts, security.NewSanitizer(), logger, cfg.ModerationTimeout,
		moderation.WithAuthorRecorder(svc.users),
		moderation.WithMediaFetcher(media),
		moderation.WithMetrics(collector),
	)
}

// newImportScheduler は外部フィードの取り込みスケジューラを組み立てる。
func newImportScheduler(cfg *config.Config, svc *services, collector *metrics.Collector, logger *slog.Logger) *importer.Scheduler {
	sources := make([]importer.Source, 0, len(cfg.ResourceFeeds))
	for _, f := range cfg.ResourceFeeds {
		sources = append(sources, importer.Source{URL: f.URL, Kind: f.Kind, College: f.College})
	}

	fetcher := importer.NewFetcher(
		svc.resources, security.NewGuard(), logger, collector,
		cfg.ImportTimeout, cfg.ImportInterval, cfg.ImportMaxSize,
	)
	return importer.NewScheduler(sources, svc.store, fetcher, logger, cfg.ImportConcurrency)
}

// newCleanupJob は既読通知の整理ジョブを組み立てる。
func newCleanupJob(cfg *config.Config, svc *services, logger *slog.Logger) *cleanup.CleanupJob {
	job := cleanup.NewCleanupJob(svc.notifications, logger)
	job.RetentionDays = cfg.NotificationRetentionDays
	return job
}
