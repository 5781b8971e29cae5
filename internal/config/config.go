// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // bearer key for the batch API surface
	// SessionSecret signs short-lived dashboard session tokens.
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// SubmitRateLimit caps POST /batch/submit calls per caller per minute.
	SubmitRateLimit int `yaml:"submit_rate_limit"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // s3 | local
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
	// LocalDir backs the dev/local object store.
	LocalDir string `yaml:"local_dir"`
	// PublicBaseURL prefixes local-store object URLs.
	PublicBaseURL string `yaml:"public_base_url"`
}

type BatchConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"` // OpenAI-compatible /v1 base
	DefaultModel string `yaml:"default_model"`
	// Window selects the remote completion window: fast | extended.
	Window string `yaml:"completion_window"`
	// MaxFileBytes is the per-item size ceiling enforced before any
	// external call.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// PollInterval drives the reconciliation poller tick.
	PollInterval time.Duration `yaml:"poll_interval"`
	// AutoStartPoller starts the poller on boot.
	AutoStartPoller bool `yaml:"auto_start_poller"`
	// RequestTimeout bounds every call to the remote batch API.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ChunkConfig struct {
	// ThresholdSeconds is the audio duration above which on-demand items
	// are split into parts.
	ThresholdSeconds float64 `yaml:"threshold_seconds"`
	// PartSeconds is the target duration of one part.
	PartSeconds float64 `yaml:"part_seconds"`
	// PartTimeout bounds a single part transcription call.
	PartTimeout time.Duration `yaml:"part_timeout"`
	// Workers caps how many on-demand items process concurrently.
	Workers int `yaml:"workers"`
	// WhisperPath / FFmpegPath locate the external binaries.
	WhisperPath string `yaml:"whisper_path"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	// WorkDir receives uploaded on-demand audio and split artifacts.
	WorkDir string `yaml:"work_dir"`
}

type NotifyConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	TelegramToken  string        `yaml:"telegram_token"`
	TelegramChatID int64         `yaml:"telegram_chat_id"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Batch    BatchConfig    `yaml:"batch"`
	Chunk    ChunkConfig    `yaml:"chunk"`
	Notify   NotifyConfig   `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Batch.APIKey == "" {
		return nil, errors.New("batch.api_key is required")
	}
	if cfg.Batch.PollInterval < 5*time.Second {
		return nil, fmt.Errorf("batch.poll_interval must be at least 5s, got %s", cfg.Batch.PollInterval)
	}
	if cfg.Storage.Backend == "s3" && cfg.Storage.Bucket == "" {
		return nil, errors.New("storage.bucket is required for the s3 backend")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SessionTTL <= 0 {
		cfg.Server.SessionTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.SubmitRateLimit <= 0 {
		cfg.Redis.SubmitRateLimit = 10
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "data/objects"
	}
	if cfg.Batch.BaseURL == "" {
		cfg.Batch.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Batch.DefaultModel == "" {
		cfg.Batch.DefaultModel = "whisper-1"
	}
	if cfg.Batch.Window == "" {
		cfg.Batch.Window = "fast"
	}
	if cfg.Batch.MaxFileBytes <= 0 {
		cfg.Batch.MaxFileBytes = 100 << 20
	}
	if cfg.Batch.PollInterval <= 0 {
		cfg.Batch.PollInterval = time.Minute
	}
	if cfg.Batch.RequestTimeout <= 0 {
		cfg.Batch.RequestTimeout = 2 * time.Minute
	}
	if cfg.Chunk.ThresholdSeconds <= 0 {
		cfg.Chunk.ThresholdSeconds = 600
	}
	if cfg.Chunk.PartSeconds <= 0 {
		cfg.Chunk.PartSeconds = 300
	}
	if cfg.Chunk.PartTimeout <= 0 {
		cfg.Chunk.PartTimeout = 10 * time.Minute
	}
	if cfg.Chunk.Workers <= 0 {
		cfg.Chunk.Workers = 2
	}
	if cfg.Chunk.WhisperPath == "" {
		cfg.Chunk.WhisperPath = "whisper"
	}
	if cfg.Chunk.FFmpegPath == "" {
		cfg.Chunk.FFmpegPath = "ffmpeg"
	}
	if cfg.Chunk.FFprobePath == "" {
		cfg.Chunk.FFprobePath = "ffprobe"
	}
	if cfg.Chunk.WorkDir == "" {
		cfg.Chunk.WorkDir = "data/ondemand"
	}
	if cfg.Notify.WebhookTimeout <= 0 {
		cfg.Notify.WebhookTimeout = 10 * time.Second
	}
}
