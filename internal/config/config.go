// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
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

type WebConfig struct {
	Port          int    `yaml:"port"`
	JWTSecret     string `yaml:"jwt_secret"`
	AdminPassword string `yaml:"admin_password"`
}

type AdminConfig struct {
	Port int `yaml:"port"` // metrics + health
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	GeminiKey       string `yaml:"gemini_key"`
	DefaultModel    string `yaml:"default_model"`
	ProfilePath     string `yaml:"profile_path"` // freelancer profile fed to the scoring prompt
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
	CallsPerMinute  int    `yaml:"calls_per_minute"`
	MaxInputTokens  int    `yaml:"max_input_tokens"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"` // approval channel
}

// ServicesConfig points at the external stage services the orchestrator
// drives over HTTP.
type ServicesConfig struct {
	ScraperURL   string        `yaml:"scraper_url"`
	InboxURL     string        `yaml:"inbox_url"`
	ExtractorURL string        `yaml:"extractor_url"`
	GeneratorURL string        `yaml:"generator_url"`
	SubmitterURL string        `yaml:"submitter_url"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

type PipelineConfig struct {
	DefaultMode       string        `yaml:"default_mode"` // manual|semi_auto|automatic
	ScoreThreshold    int           `yaml:"score_threshold"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	SubmissionTimeout time.Duration `yaml:"submission_timeout"`
	StuckSweepAfter   time.Duration `yaml:"stuck_sweep_after"`
	TaskRetention     time.Duration `yaml:"task_retention"`
	Workers           int           `yaml:"workers"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Telegram TelegramConfig `yaml:"telegram"`
	Services ServicesConfig `yaml:"services"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Web.JWTSecret == "" {
		return nil, errors.New("web.jwt_secret is required")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return nil, errors.New("telegram.token is required when telegram is enabled")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 9090
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 8
	}
	if cfg.AI.CallsPerMinute <= 0 {
		cfg.AI.CallsPerMinute = 60
	}
	if cfg.AI.MaxInputTokens <= 0 {
		cfg.AI.MaxInputTokens = 24000
	}
	if cfg.Services.HTTPTimeout <= 0 {
		cfg.Services.HTTPTimeout = 60 * time.Second
	}
	if cfg.Pipeline.DefaultMode == "" {
		cfg.Pipeline.DefaultMode = "manual"
	}
	if cfg.Pipeline.ScoreThreshold <= 0 {
		cfg.Pipeline.ScoreThreshold = 70
	}
	if cfg.Pipeline.BatchSize <= 0 {
		cfg.Pipeline.BatchSize = 20
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = 30 * time.Second
	}
	if cfg.Pipeline.SubmissionTimeout <= 0 {
		cfg.Pipeline.SubmissionTimeout = 10 * time.Minute
	}
	if cfg.Pipeline.StuckSweepAfter <= 0 {
		cfg.Pipeline.StuckSweepAfter = 15 * time.Minute
	}
	if cfg.Pipeline.TaskRetention <= 0 {
		cfg.Pipeline.TaskRetention = 30 * time.Minute
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
