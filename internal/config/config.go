package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	APIKey      string `envconfig:"API_KEY" default:"change-me"`
	StoragePath string `envconfig:"STORAGE_PATH" default:"/app/storage/temp"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"INFO"`

	MaxFileSizeGB   int           `envconfig:"MAX_FILE_SIZE_GB" default:"5"`
	WorkerCount     int           `envconfig:"WORKER_CONCURRENCY" default:"2"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"1h"`
	JobRetention    time.Duration `envconfig:"JOB_RETENTION" default:"24h"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Aria2 struct {
		RPCURL         string `split_words:"true" default:"http://localhost:6800/jsonrpc"`
		RPCSecret      string `split_words:"true" default:"change-me-aria2-secret"`
		MaxConnections int    `split_words:"true" default:"16"`
		Split          int    `split_words:"true" default:"16"`
		MaxPeers       int    `split_words:"true" default:"50"`
		EnableFallback bool   `split_words:"true" default:"true"`
	}

	WebDAV struct {
		URL      string        `envconfig:"WEBDAV_URL"`
		Username string        `envconfig:"WEBDAV_USERNAME"`
		Password string        `envconfig:"WEBDAV_PASSWORD"`
		Timeout  time.Duration `envconfig:"WEBDAV_TIMEOUT" default:"1h"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"transloader"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// MaxFileSizeBytes returns the direct-download size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeGB) * 1024 * 1024 * 1024
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
