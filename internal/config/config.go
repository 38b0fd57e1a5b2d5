package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/unihub/internal/model"
)

// ストアのバックエンド種別
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ResourceFeed は取り込み対象の外部フィード。
type ResourceFeed struct {
	URL     string
	Kind    string
	College model.College
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreBackend string
	StoreDir     string
	DatabaseURL  string
	RedisURL     string
	RedisPrefix  string

	// Moderation
	ModerationEndpoint string
	ModerationAPIKey   string
	ModerationTimeout  time.Duration
	MediaMaxSize       int64

	// Polling
	FeedPollInterval          time.Duration
	EventsPollInterval        time.Duration
	NotificationsPollInterval time.Duration
	ChatPollInterval          time.Duration

	// Importer
	ResourceFeeds     []ResourceFeed
	ImportInterval    time.Duration
	ImportTimeout     time.Duration
	ImportMaxSize     int64
	ImportConcurrency int

	// Cleanup
	NotificationRetentionDays int

	// Rate Limit
	RateLimitGeneral int
	RateLimitPublish int

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	EventTimezone     *time.Location
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既に設定済みの環境変数は上書きしない。
// 選択したバックエンドに必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗しました: %w", err)
	}

	cfg := &Config{}
	var missing []string

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendFile))
	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendFile:
		cfg.StoreDir = getEnvString("STORE_DIR", "./data")
	case BackendRedis:
		cfg.RedisURL = os.Getenv("REDIS_URL")
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
		cfg.RedisPrefix = getEnvString("REDIS_PREFIX", "unihub:")
	case BackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND: %q", cfg.StoreBackend)
	}

	cfg.ModerationEndpoint = os.Getenv("MODERATION_ENDPOINT")
	if cfg.ModerationEndpoint == "" {
		missing = append(missing, "MODERATION_ENDPOINT")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	feeds, err := parseResourceFeeds(os.Getenv("RESOURCE_FEEDS"))
	if err != nil {
		return nil, err
	}
	cfg.ResourceFeeds = feeds

	tz := getEnvString("EVENT_TIMEZONE", "Asia/Tokyo")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_TIMEZONE %q: %w", tz, err)
	}
	cfg.EventTimezone = loc

	// Optional fields with defaults
	cfg.ModerationAPIKey = os.Getenv("MODERATION_API_KEY")
	cfg.ModerationTimeout = getEnvDuration("MODERATION_TIMEOUT", 30*time.Second)
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 5242880)
	cfg.FeedPollInterval = getEnvDuration("FEED_POLL_INTERVAL", 5*time.Second)
	cfg.EventsPollInterval = getEnvDuration("EVENTS_POLL_INTERVAL", 3*time.Second)
	cfg.NotificationsPollInterval = getEnvDuration("NOTIFICATIONS_POLL_INTERVAL", 3*time.Second)
	cfg.ChatPollInterval = getEnvDuration("CHAT_POLL_INTERVAL", 3*time.Second)
	cfg.ImportInterval = getEnvDuration("IMPORT_INTERVAL", 30*time.Minute)
	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 10*time.Second)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 5242880)
	cfg.ImportConcurrency = getEnvInt("IMPORT_CONCURRENCY", 4)
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublish = getEnvInt("RATE_LIMIT_PUBLISH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseResourceFeeds は "URL|種別|カレッジ" をカンマ区切りで並べた値を解析する。
// 種別とカレッジは省略でき、それぞれ "news" と Global になる。
func parseResourceFeeds(v string) ([]ResourceFeed, error) {
	var feeds []ResourceFeed
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		f := ResourceFeed{URL: strings.TrimSpace(parts[0]), Kind: "news", College: model.CollegeGlobal}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			f.Kind = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			f.College = model.College(strings.TrimSpace(parts[2]))
			if !f.College.Valid() {
				return nil, fmt.Errorf("invalid college in RESOURCE_FEEDS: %q", parts[2])
			}
		}
		if len(parts) > 3 || f.URL == "" {
			return nil, fmt.Errorf("invalid RESOURCE_FEEDS entry: %q", entry)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
