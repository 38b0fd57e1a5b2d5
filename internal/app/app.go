package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/unihub/internal/config"
	"github.com/hitoshi/unihub/internal/database"
	"github.com/hitoshi/unihub/internal/handler"
	"github.com/hitoshi/unihub/internal/logger"
	"github.com/hitoshi/unihub/internal/metrics"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/store"
	"github.com/hitoshi/unihub/internal/worker/poll"
)

// cleanupInterval は既読通知の整理を行う間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログは設定読み込み前に使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(context.Background(), cfg)
	case CommandWatch:
		return runWatch(cfg, watchViewArg(args), os.Stdout)
	default:
		return runServe(cfg)
	}
}

// openStore はバックエンドを開き、疎通を確認したうえでStoreを返す。
// 戻り値のcloseは呼び出し側で必ず呼ぶ。
func openStore(ctx context.Context, cfg *config.Config, recorder store.MetricsRecorder) (*store.Store, func(), error) {
	kv, err := openKVStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := kv.Close(); err != nil {
			slog.Warn("failed to close store", slog.String("error", err.Error()))
		}
	}

	st := store.New(kv, slog.Default(), recorder)
	if err := st.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	slog.Info("store connection established", slog.String("backend", cfg.StoreBackend))
	return st, closeFn, nil
}

// runServe はAPIサーバーモードで起動する。
// memoryバックエンドでは別プロセスと保存先を共有できないため、取り込みと整理も同じプロセスで動かす。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	st, closeStore, err := openStore(context.Background(), cfg, collector)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := newServices(st, cfg)
	gate := newGate(cfg, svc, collector, slog.Default())
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPublish))
	defer rl.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		RequestRecorder:   collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,

		Pinger:   st,
		Gatherer: reg,

		PostService:         svc.posts,
		Submitter:           gate,
		EventService:        svc.events,
		NotificationService: svc.notifications,
		GroupService:        svc.groups,
		ChatService:         svc.chats,
		ResourceService:     svc.resources,
		UserService:         svc.users,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.StoreBackend == config.BackendMemory {
		scheduler := newImportScheduler(cfg, svc, collector, slog.Default())
		go scheduler.Start(ctx, importTick(cfg))
		go newCleanupJob(cfg, svc, slog.Default()).Start(ctx, cleanupInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 審査中の投稿が保存されるまで待つ
	gate.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 外部フィードの取り込みと既読通知の整理を行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	st, closeStore, err := openStore(context.Background(), cfg, collector)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := newServices(st, cfg)
	scheduler := newImportScheduler(cfg, svc, collector, slog.Default())
	cleanupJob := newCleanupJob(cfg, svc, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("sources", len(cfg.ResourceFeeds)),
		slog.Duration("import_interval", cfg.ImportInterval),
		slog.Int("concurrency", cfg.ImportConcurrency),
	)

	go cleanupJob.Start(ctx, cleanupInterval)

	// 取り込みスケジューラはメインgoroutineで実行する（ブロッキング）
	scheduler.Start(ctx, importTick(cfg))

	slog.Info("worker stopped gracefully")
	return nil
}

// importTick はスケジューラが各ソースの期限を確認する間隔を返す。
// ソースごとの取得間隔より細かく確認し、バックオフからの復帰が遅れないようにする。
func importTick(cfg *config.Config) time.Duration {
	return max(cfg.ImportInterval/6, time.Minute)
}

// runMigrate はデータベースマイグレーションを実行する。
// postgres以外のバックエンドではスキーマを持たないため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend != config.BackendPostgres {
		slog.Info("migrations skipped", slog.String("store_backend", cfg.StoreBackend))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runSeed は全コレクションを既定データで上書きする。
func runSeed(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := openStore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("store reset to seed data")
	return nil
}

// runWatch は指定したビューを購読し、読み込みのたびに一覧をoutへ出力する。
// SIGINTまたはSIGTERMシグナルを受信すると購読を解除して終了する。
func runWatch(cfg *config.Config, view string, out io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := newServices(st, cfg)
	sub, err := newWatchSubscription(ctx, view, cfg, svc, newSnapshotPrinter(out))
	if err != nil {
		return err
	}

	synchronizer := poll.NewSynchronizer(slog.Default(), nil)
	defer synchronizer.Close()

	handle, err := synchronizer.Subscribe(ctx, sub)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", view, err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case <-handle.Done():
	}

	handle.Cancel()
	slog.Info("watch stopped", slog.String("view", view))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
