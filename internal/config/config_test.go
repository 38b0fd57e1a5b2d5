package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/unihub/internal/model"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("MODERATION_ENDPOINT", "http://localhost:9090/classify")
}

func TestLoad_RequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendMemory)
	}
	if cfg.ModerationEndpoint != "http://localhost:9090/classify" {
		t.Errorf("ModerationEndpoint = %q", cfg.ModerationEndpoint)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Polling defaults
	if cfg.FeedPollInterval != 5*time.Second {
		t.Errorf("FeedPollInterval = %v, want %v", cfg.FeedPollInterval, 5*time.Second)
	}
	if cfg.EventsPollInterval != 3*time.Second {
		t.Errorf("EventsPollInterval = %v, want %v", cfg.EventsPollInterval, 3*time.Second)
	}
	if cfg.NotificationsPollInterval != 3*time.Second {
		t.Errorf("NotificationsPollInterval = %v, want %v", cfg.NotificationsPollInterval, 3*time.Second)
	}
	if cfg.ChatPollInterval != 3*time.Second {
		t.Errorf("ChatPollInterval = %v, want %v", cfg.ChatPollInterval, 3*time.Second)
	}

	// Moderation defaults
	if cfg.ModerationTimeout != 30*time.Second {
		t.Errorf("ModerationTimeout = %v, want %v", cfg.ModerationTimeout, 30*time.Second)
	}
	if cfg.MediaMaxSize != 5242880 {
		t.Errorf("MediaMaxSize = %d, want %d", cfg.MediaMaxSize, 5242880)
	}

	// Importer defaults
	if cfg.ImportInterval != 30*time.Minute {
		t.Errorf("ImportInterval = %v, want %v", cfg.ImportInterval, 30*time.Minute)
	}
	if cfg.ImportConcurrency != 4 {
		t.Errorf("ImportConcurrency = %d, want %d", cfg.ImportConcurrency, 4)
	}
	if len(cfg.ResourceFeeds) != 0 {
		t.Errorf("ResourceFeeds = %v, want empty", cfg.ResourceFeeds)
	}

	if cfg.NotificationRetentionDays != 30 {
		t.Errorf("NotificationRetentionDays = %d, want %d", cfg.NotificationRetentionDays, 30)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want %d", cfg.RateLimitGeneral, 120)
	}
	if cfg.RateLimitPublish != 10 {
		t.Errorf("RateLimitPublish = %d, want %d", cfg.RateLimitPublish, 10)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.EventTimezone.String() != "Asia/Tokyo" {
		t.Errorf("EventTimezone = %v, want Asia/Tokyo", cfg.EventTimezone)
	}
}

func TestLoad_DefaultBackendIsFile(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("MODERATION_ENDPOINT", "http://localhost:9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.StoreBackend != BackendFile || cfg.StoreDir != "./data" {
		t.Errorf("backend = %q dir = %q", cfg.StoreBackend, cfg.StoreDir)
	}
}

func TestLoad_BackendSpecificRequirements(t *testing.T) {
	tests := []struct {
		backend string
		envKey  string
	}{
		{BackendRedis, "REDIS_URL"},
		{BackendPostgres, "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv("STORE_BACKEND", tt.backend)
			t.Setenv(tt.envKey, "")

			if _, err := Load(); err == nil {
				t.Fatalf("%s未設定でエラーになりませんでした", tt.envKey)
			}

			t.Setenv(tt.envKey, "redis://localhost:6379/0")
			if _, err := Load(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestLoad_MissingModerationEndpoint(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("MODERATION_ENDPOINT", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing MODERATION_ENDPOINT")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("STORE_BACKEND", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FEED_POLL_INTERVAL", "10s")
	t.Setenv("MODERATION_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_PUBLISH", "3")
	t.Setenv("EVENT_TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.FeedPollInterval != 10*time.Second {
		t.Errorf("FeedPollInterval = %v", cfg.FeedPollInterval)
	}
	if cfg.ModerationTimeout != 5*time.Second {
		t.Errorf("ModerationTimeout = %v", cfg.ModerationTimeout)
	}
	if cfg.RateLimitPublish != 3 {
		t.Errorf("RateLimitPublish = %d", cfg.RateLimitPublish)
	}
	if cfg.EventTimezone != time.UTC {
		t.Errorf("EventTimezone = %v", cfg.EventTimezone)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FEED_POLL_INTERVAL", "soon")
	t.Setenv("CHAT_POLL_INTERVAL", "-1s")
	t.Setenv("RATE_LIMIT_GENERAL", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.FeedPollInterval != 5*time.Second {
		t.Errorf("FeedPollInterval = %v, want default", cfg.FeedPollInterval)
	}
	if cfg.ChatPollInterval != 3*time.Second {
		t.Errorf("ChatPollInterval = %v, want default", cfg.ChatPollInterval)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want default", cfg.RateLimitGeneral)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("EVENT_TIMEZONE", "Mars/Olympus")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestParseResourceFeeds(t *testing.T) {
	feeds, err := parseResourceFeeds(" https://a.example.ac.jp/rss |notice|Science, https://b.example.ac.jp/atom ,")
	if err != nil {
		t.Fatalf("parseResourceFeeds failed: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("len = %d, want 2", len(feeds))
	}
	if feeds[0].URL != "https://a.example.ac.jp/rss" || feeds[0].Kind != "notice" || feeds[0].College != model.CollegeScience {
		t.Errorf("feeds[0] = %+v", feeds[0])
	}
	if feeds[1].Kind != "news" || feeds[1].College != model.CollegeGlobal {
		t.Errorf("feeds[1] = %+v, want defaults", feeds[1])
	}
}

func TestParseResourceFeeds_Invalid(t *testing.T) {
	for _, v := range []string{"https://a|news|Astrology", "|news", "https://a|x|Science|extra"} {
		if _, err := parseResourceFeeds(v); err == nil {
			t.Errorf("parseResourceFeeds(%q) should fail", v)
		}
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_BACKEND=memory\nMODERATION_ENDPOINT=http://from-dotenv\nSERVER_PORT=9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	// .envは既存の環境変数を上書きしない
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("MODERATION_ENDPOINT", "")
	os.Unsetenv("MODERATION_ENDPOINT")
	t.Setenv("STORE_BACKEND", "")
	os.Unsetenv("STORE_BACKEND")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ModerationEndpoint != "http://from-dotenv" {
		t.Errorf("ModerationEndpoint = %q, want value from .env", cfg.ModerationEndpoint)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want existing env value", cfg.ServerPort)
	}
}
