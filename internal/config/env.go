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
	"github.com/kelseyhightower/envconfig"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty     bool   `envconfig:"LOG_PRETTY"`
	File       string `envconfig:"LOG_FILE" default:"logs/linerelay.log"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"10"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`
	Compress   bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool          `envconfig:"SEND_LOGS_TO_AXIOM"`
	APIKey        string        `envconfig:"AXIOM_API_KEY"`
	OrgID         string        `envconfig:"AXIOM_ORG_ID"`
	Dataset       string        `envconfig:"AXIOM_DATASET" default:"dev"`
	FlushInterval time.Duration `envconfig:"AXIOM_FLUSH_INTERVAL" default:"10s"`
}

// BackendConfig selects the generative-text provider and its sampling parameters.
type BackendConfig struct {
	Provider        string  `envconfig:"LLM_PROVIDER" default:"gemini"`
	GoogleAPIKey    string  `envconfig:"GOOGLE_API_KEY"`
	GeminiModel     string  `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiBaseURL   string  `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey    string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string  `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel     string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	SystemPrompt    string  `envconfig:"SYSTEM_PROMPT" default:"你是一個小天使，請使用夢幻的場景描述做開頭，然後回答問題。"`
	MaxOutputTokens int     `envconfig:"MAX_OUTPUT_TOKENS" default:"2048"`
	Temperature     float64 `envconfig:"TEMPERATURE" default:"0.2"`
	TopP            float64 `envconfig:"TOP_P" default:"0.5"`
	TopK            int     `envconfig:"TOP_K" default:"16"`
}

// RelayConfig controls how inbound messages are turned into replies.
type RelayConfig struct {
	DefaultTalking  bool          `envconfig:"DEFAULT_TALKING" default:"true"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"8s"`
	MaxInputLength  int           `envconfig:"MAX_INPUT_LENGTH" default:"800"`
	FarewellKeyword string        `envconfig:"FAREWELL_KEYWORD" default:"再見"`
	TalkOnKeyword   string        `envconfig:"TALK_ON_KEYWORD" default:"說話"`
	TalkOffKeyword  string        `envconfig:"TALK_OFF_KEYWORD" default:"閉嘴"`
}

// MessagesConfig overrides the fixed user-facing replies. Empty values keep
// the built-in Traditional Chinese defaults.
type MessagesConfig struct {
	NonText    string `envconfig:"NON_TEXT_REPLY"`
	Farewell   string `envconfig:"FAREWELL_REPLY"`
	EmptyInput string `envconfig:"EMPTY_INPUT_REPLY"`
	TalkOn     string `envconfig:"TALK_ON_REPLY"`
	TalkOff    string `envconfig:"TALK_OFF_REPLY"`

	// Fallback replies per failure kind; FallbackDefault covers any kind left empty.
	FallbackDefault          string `envconfig:"FALLBACK_DEFAULT"`
	FallbackTimeout          string `envconfig:"FALLBACK_TIMEOUT"`
	FallbackQuotaExceeded    string `envconfig:"FALLBACK_QUOTA_EXCEEDED"`
	FallbackModelNotFound    string `envconfig:"FALLBACK_MODEL_NOT_FOUND"`
	FallbackPermissionDenied string `envconfig:"FALLBACK_PERMISSION_DENIED"`
	FallbackBadRequest       string `envconfig:"FALLBACK_BAD_REQUEST_PAYLOAD"`
	FallbackEmptyResponse    string `envconfig:"FALLBACK_EMPTY_RESPONSE"`
	FallbackBackendError     string `envconfig:"FALLBACK_BACKEND_ERROR"`
	FallbackUnknown          string `envconfig:"FALLBACK_UNKNOWN"`
}

// WorkerConfig sizes the invoker pool.
type WorkerConfig struct {
	Concurrency int `envconfig:"WORKER_CONCURRENCY" default:"8"`
	QueueSize   int `envconfig:"WORKER_QUEUE_SIZE" default:"64"`
}

// LineConfig holds LINE Messaging API credentials.
type LineConfig struct {
	ChannelSecret      string `envconfig:"CHANNEL_SECRET"`
	ChannelAccessToken string `envconfig:"CHANNEL_ACCESS_TOKEN"`
}

// StoreConfig points at Redis; an empty URL keeps state in memory.
type StoreConfig struct {
	RedisURL  string        `envconfig:"REDIS_URL"`
	KeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"linerelay"`
	DedupTTL  time.Duration `envconfig:"WEBHOOK_DEDUP_TTL" default:"24h"`
}

// Config is the top-level configuration.
type Config struct {
	Port          string `envconfig:"PORT" default:"7860"`
	Environment   string `envconfig:"ENVIRONMENT" default:"production"`
	AdminToken    string `envconfig:"ADMIN_TOKEN"`
	DiagRateLimit uint   `envconfig:"DIAG_RATE_LIMIT" default:"10"`
	Logging       LoggingConfig
	Axiom         AxiomConfig
	Backend       BackendConfig
	Relay         RelayConfig
	Messages      MessagesConfig
	Worker        WorkerConfig
	Line          LineConfig
	Store         StoreConfig
}

// Load reads optional dotenv files (".env" when none are given), then the
// environment, and validates the result.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if _, ok := os.LookupEnv("LOG_PRETTY"); !ok {
		cfg.Logging.Pretty = isDevEnvironment(cfg.Environment)
	}
	// Misspelled variable still found in older deployments.
	if _, ok := os.LookupEnv("DEFAULT_TALKING"); !ok {
		if v, ok := os.LookupEnv("DEFALUT_TALKING"); ok {
			cfg.Relay.DefaultTalking = parseBool(v, cfg.Relay.DefaultTalking)
		}
	}
	cfg.Axiom.Dataset = cfg.Axiom.Dataset + "_linerelay"
	cfg.Backend.Provider = strings.ToLower(strings.TrimSpace(cfg.Backend.Provider))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend.Provider {
	case "gemini":
		if c.Backend.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_API_KEY is required for provider gemini"))
		}
	case "openai":
		if c.Backend.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for provider openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q is not supported", c.Backend.Provider))
	}
	if c.Line.ChannelSecret == "" {
		errs = append(errs, errors.New("CHANNEL_SECRET is required"))
	}
	if c.Line.ChannelAccessToken == "" {
		errs = append(errs, errors.New("CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.Relay.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.Relay.MaxInputLength <= 0 {
		errs = append(errs, errors.New("MAX_INPUT_LENGTH must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

// APIKey returns the credential for the selected provider.
func (b BackendConfig) APIKey() string {
	if b.Provider == "openai" {
		return b.OpenAIAPIKey
	}
	return b.GoogleAPIKey
}

// Model returns the model identifier for the selected provider.
func (b BackendConfig) Model() string {
	if b.Provider == "openai" {
		return b.OpenAIModel
	}
	return b.GeminiModel
}

// BaseURL returns the endpoint override for the selected provider, empty for
// the provider default.
func (b BackendConfig) BaseURL() string {
	if b.Provider == "openai" {
		return b.OpenAIBaseURL
	}
	return b.GeminiBaseURL
}

func (b BackendConfig) HasCredential() bool {
	return strings.TrimSpace(b.APIKey()) != ""
}

func parseBool(s string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func isDevEnvironment(env string) bool {
	env = strings.ToLower(env)
	return env == "dev" || env == "development" || env == "local"
}
