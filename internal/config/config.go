package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RateLimit       int           `yaml:"rate_limit_per_minute"`
}

type PipelineConfig struct {
	Budget          time.Duration `yaml:"budget"`
	SegmentSeconds  int           `yaml:"segment_seconds"`
	SampleRate      int           `yaml:"sample_rate"`
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	Language        string        `yaml:"language"`
	InterviewerName string        `yaml:"interviewer_name"`
	FieldLimit      int           `yaml:"field_limit"`
	UploadWorkers   int           `yaml:"upload_workers"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type OpenAIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	Mock    bool          `yaml:"mock"`
}

type AnthropicConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"max_tokens"`
	ChatMaxTokens int           `yaml:"chat_max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	Mock          bool          `yaml:"mock"`
}

type NotionConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	SubjectsDB   string        `yaml:"persons_db_id"`
	SessionsDB   string        `yaml:"interviews_db_id"`
	Timeout      time.Duration `yaml:"timeout"`
	RecentLimit  int           `yaml:"recent_limit"`
	NotionWebURL string        `yaml:"web_url"`
}

type TelegramConfig struct {
	BaseURL  string        `yaml:"base_url"`
	BotToken string        `yaml:"bot_token"`
	ChatID   string        `yaml:"chat_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	UseSSL        bool          `yaml:"use_ssl"`
	PublicBaseURL string        `yaml:"public_base_url"`
	CredentialTTL time.Duration `yaml:"credential_ttl"`
	FetchTTL      time.Duration `yaml:"fetch_ttl"`
}

func (s StorageConfig) Enabled() bool { return s.Endpoint != "" }

type JobStoreConfig struct {
	Backend       string        `yaml:"backend"` // memory, redis, blob, sqlite
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	SQLitePath    string        `yaml:"sqlite_path"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
}

type Config struct {
	Environment string          `yaml:"environment"`
	LogLevel    string          `yaml:"log_level"`
	Server      ServerConfig    `yaml:"server"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Retry       RetryConfig     `yaml:"retry"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
	Anthropic   AnthropicConfig `yaml:"anthropic"`
	Notion      NotionConfig    `yaml:"notion"`
	Telegram    TelegramConfig  `yaml:"telegram"`
	Storage     StorageConfig   `yaml:"storage"`
	JobStore    JobStoreConfig  `yaml:"job_store"`
	Events      EventsConfig    `yaml:"events"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Poller      PollerConfig    `yaml:"poller"`
}

func Default() Config {
	return Config{
		Environment: "local",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    310 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 20 * time.Second,
			MaxUploadBytes:  200 << 20,
			RateLimit:       30,
		},
		Pipeline: PipelineConfig{
			Budget:          300 * time.Second,
			SegmentSeconds:  300,
			SampleRate:      16000,
			Language:        "ko",
			InterviewerName: "최재명 대표",
			FieldLimit:      2000,
			UploadWorkers:   4,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			BaseDelay:  3 * time.Second,
			MaxDelay:   48 * time.Second,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com",
			Model:   "whisper-1",
			Timeout: 120 * time.Second,
		},
		Anthropic: AnthropicConfig{
			BaseURL:       "https://api.anthropic.com",
			Model:         "claude-sonnet-4-5",
			MaxTokens:     3000,
			ChatMaxTokens: 2000,
			Timeout:       120 * time.Second,
		},
		Notion: NotionConfig{
			BaseURL:      "https://api.notion.com",
			Timeout:      30 * time.Second,
			RecentLimit:  10,
			NotionWebURL: "https://notion.so",
		},
		Telegram: TelegramConfig{
			BaseURL: "https://api.telegram.org",
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Bucket:        "interviews",
			Region:        "us-east-1",
			CredentialTTL: 15 * time.Minute,
			FetchTTL:      24 * time.Hour,
		},
		JobStore: JobStoreConfig{
			Backend:    "memory",
			TTL:        24 * time.Hour,
			SQLitePath: "./data/jobs.db",
		},
		Events: EventsConfig{
			Exchange: "interview.jobs",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Poller: PollerConfig{
			Interval:     3 * time.Second,
			StallTimeout: 10 * time.Minute,
		},
	}
}

// Load layers defaults, an optional .env file, an optional YAML file and the
// process environment, then validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Environment, "ENVIRONMENT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideInt(&cfg.Server.Port, "PORT")
	overrideInt(&cfg.Server.RateLimit, "RATE_LIMIT_PER_MINUTE")
	overrideDuration(&cfg.Pipeline.Budget, "PIPELINE_BUDGET")
	overrideInt(&cfg.Pipeline.SegmentSeconds, "SEGMENT_SECONDS")
	overrideString(&cfg.Pipeline.FFmpegPath, "FFMPEG_PATH")
	overrideString(&cfg.Pipeline.Language, "TRANSCRIBE_LANGUAGE")
	overrideString(&cfg.Pipeline.InterviewerName, "INTERVIEWER_NAME")
	overrideInt(&cfg.Pipeline.FieldLimit, "FIELD_LIMIT")
	overrideInt(&cfg.Retry.MaxRetries, "RETRY_MAX_RETRIES")
	overrideDuration(&cfg.Retry.BaseDelay, "RETRY_BASE_DELAY")
	overrideDuration(&cfg.Retry.MaxDelay, "RETRY_MAX_DELAY")
	overrideString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.Model, "OPENAI_TRANSCRIBE_MODEL")
	overrideBool(&cfg.OpenAI.Mock, "USE_MOCK_STT")
	overrideString(&cfg.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	overrideString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	overrideString(&cfg.Anthropic.Model, "ANTHROPIC_MODEL")
	overrideInt(&cfg.Anthropic.MaxTokens, "ANTHROPIC_MAX_TOKENS")
	overrideBool(&cfg.Anthropic.Mock, "USE_MOCK_LLM")
	overrideString(&cfg.Notion.BaseURL, "NOTION_BASE_URL")
	overrideString(&cfg.Notion.APIKey, "NOTION_API_KEY")
	overrideString(&cfg.Notion.SubjectsDB, "NOTION_PERSONS_DB_ID")
	overrideString(&cfg.Notion.SessionsDB, "NOTION_INTERVIEWS_DB_ID")
	overrideString(&cfg.Telegram.BaseURL, "TELEGRAM_BASE_URL")
	overrideString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	overrideString(&cfg.Storage.Endpoint, "S3_ENDPOINT")
	overrideString(&cfg.Storage.AccessKey, "S3_ACCESS_KEY")
	overrideString(&cfg.Storage.SecretKey, "S3_SECRET_KEY")
	overrideString(&cfg.Storage.Bucket, "S3_BUCKET")
	overrideString(&cfg.Storage.Region, "S3_REGION")
	overrideBool(&cfg.Storage.UseSSL, "S3_USE_SSL")
	overrideString(&cfg.Storage.PublicBaseURL, "S3_PUBLIC_BASE_URL")
	overrideString(&cfg.JobStore.Backend, "JOB_STORE")
	overrideString(&cfg.JobStore.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.JobStore.RedisPassword, "REDIS_PASSWORD")
	overrideInt(&cfg.JobStore.RedisDB, "REDIS_DB")
	overrideDuration(&cfg.JobStore.TTL, "JOB_TTL")
	overrideString(&cfg.JobStore.SQLitePath, "SQLITE_PATH")
	overrideString(&cfg.Events.AMQPURL, "RABBITMQ_URL")
	overrideString(&cfg.Events.Exchange, "RABBITMQ_EXCHANGE")
	overrideBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	overrideDuration(&cfg.Poller.Interval, "POLL_INTERVAL")
	overrideDuration(&cfg.Poller.StallTimeout, "POLL_STALL_TIMEOUT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideDuration(target *time.Duration, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if cfg.Pipeline.Budget <= 0 {
		return errors.New("pipeline.budget must be positive")
	}
	if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout < cfg.Pipeline.Budget {
		return errors.New("server.write_timeout must not be shorter than pipeline.budget")
	}
	if cfg.Pipeline.SegmentSeconds <= 0 {
		return errors.New("pipeline.segment_seconds must be positive")
	}
	if cfg.Pipeline.SampleRate <= 0 {
		return errors.New("pipeline.sample_rate must be positive")
	}
	if cfg.Pipeline.FieldLimit <= 0 {
		return errors.New("pipeline.field_limit must be positive")
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must not be negative")
	}
	if cfg.Retry.BaseDelay <= 0 || cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return errors.New("retry delays must be positive with max_delay >= base_delay")
	}
	switch cfg.JobStore.Backend {
	case "memory":
	case "redis":
		if cfg.JobStore.RedisAddr == "" {
			return errors.New("job_store.redis_addr is required for the redis backend")
		}
	case "blob":
		if !cfg.Storage.Enabled() {
			return errors.New("storage.endpoint is required for the blob job store")
		}
	case "sqlite":
		if cfg.JobStore.SQLitePath == "" {
			return errors.New("job_store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("job_store.backend %q is not one of memory, redis, blob, sqlite", cfg.JobStore.Backend)
	}
	if cfg.Storage.Enabled() && cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket must not be empty")
	}
	if cfg.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}
	return nil
}
