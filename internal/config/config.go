// Package config loads chatwidget settings from defaults, an optional TOML
// file, an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL      = "http://localhost:8000"
	DefaultMaxLength   = 150
	DefaultTemperature = 0.7

	DefaultWelcomeMessage  = "Hello! I'm your AI assistant. How can I help you today?"
	DefaultFallbackMessage = "Sorry, I'm having trouble connecting right now. Please try again in a moment."
)

// Duration wraps time.Duration so it can be written as "30s" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds application configuration
type Config struct {
	API     APIConfig     `toml:"api"`
	Chat    ChatConfig    `toml:"chat"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Backend BackendConfig `toml:"backend"`

	// EnvFile is read for overrides when it exists
	EnvFile string `toml:"env_file"`
	Debug   bool   `toml:"debug"`
}

// APIConfig describes the remote model-serving API
type APIConfig struct {
	URL         string   `toml:"url"`
	Timeout     Duration `toml:"timeout"`
	MaxLength   int      `toml:"max_length"`
	Temperature float64  `toml:"temperature"`

	// RateLimitPerMinute throttles chat requests client-side; 0 disables it
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// ChatConfig controls the chat session behaviour
type ChatConfig struct {
	MaxMessageLength int      `toml:"max_message_length"`
	WelcomeMessage   string   `toml:"welcome_message"`
	FallbackMessage  string   `toml:"fallback_message"`
	TypingDelay      Duration `toml:"typing_delay_per_char"`
	MaxTypingDelay   Duration `toml:"max_typing_delay"`
	NotificationTTL  Duration `toml:"notification_ttl"`
	HealthInterval   Duration `toml:"health_interval"` // 0 disables periodic re-checks
	DefaultTheme     string   `toml:"default_theme"`   // empty means detect from terminal
	Plain            bool     `toml:"plain"`
}

// StorageConfig locates the local SQLite database
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
	Archive      bool   `toml:"archive"`
}

// LoggingConfig controls the rotating log files
type LoggingConfig struct {
	Dir        string `toml:"dir"`
	File       string `toml:"file"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Telemetry  bool   `toml:"telemetry"`
}

// BackendConfig mirrors the model server's environment. It is only used to
// render the server's .env file.
type BackendConfig struct {
	ModelName          string   `toml:"model_name"`
	MaxModelLength     int      `toml:"max_model_length"`
	ModelCacheDir      string   `toml:"model_cache_dir"`
	UseCPUOnly         bool     `toml:"use_cpu_only"`
	MaxWorkers         int      `toml:"max_workers"`
	MemoryLimitGB      float64  `toml:"memory_limit_gb"`
	MaxMessageLength   int      `toml:"max_message_length"`
	RequestTimeoutSecs int      `toml:"request_timeout_secs"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	Debug              bool     `toml:"debug"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	LogLevel           string   `toml:"log_level"`
	LogFile            string   `toml:"log_file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:         DefaultAPIURL,
			Timeout:     Duration{30 * time.Second},
			MaxLength:   DefaultMaxLength,
			Temperature: DefaultTemperature,

			RateLimitPerMinute: 60,
		},
		Chat: ChatConfig{
			MaxMessageLength: 500,
			WelcomeMessage:   DefaultWelcomeMessage,
			FallbackMessage:  DefaultFallbackMessage,
			TypingDelay:      Duration{20 * time.Millisecond},
			MaxTypingDelay:   Duration{2 * time.Second},
			NotificationTTL:  Duration{3 * time.Second},
		},
		Storage: StorageConfig{
			DatabasePath: "chatwidget.db",
			Archive:      true,
		},
		Logging: LoggingConfig{
			Dir:        "logs",
			File:       "chatwidget.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Backend: BackendConfig{
			ModelName:          "distilgpt2",
			MaxModelLength:     DefaultMaxLength,
			ModelCacheDir:      "./model_cache",
			UseCPUOnly:         true,
			MaxWorkers:         1,
			MemoryLimitGB:      1.0,
			MaxMessageLength:   500,
			RequestTimeoutSecs: 30,
			RateLimitPerMinute: 60,
			Host:               "0.0.0.0",
			Port:               8000,
			AllowedOrigins:     []string{"*"},
			LogLevel:           "INFO",
			LogFile:            "chatbot.log",
		},
		EnvFile: ".env",
	}
}

// DefaultPath returns ~/.chatwidget/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatwidget", "config.toml"), nil
}

// Load builds the configuration. An explicit path must exist; when path is
// empty the default location is used only if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
		}
	}

	env, err := readEnvFile(cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return env, nil
}

// ApplyEnv overrides fields from environment-style key lookups. Malformed
// numeric values are ignored and the previous value is kept.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			if d, err := parseDuration(v); err == nil {
				dst.Duration = d
			}
		}
	}

	str("CHATWIDGET_API_URL", &c.API.URL)
	duration("REQUEST_TIMEOUT", &c.API.Timeout)
	duration("CHATWIDGET_TIMEOUT", &c.API.Timeout)
	integer("MAX_MODEL_LENGTH", &c.API.MaxLength)
	integer("CHATWIDGET_MAX_LENGTH", &c.API.MaxLength)
	float("CHATWIDGET_TEMPERATURE", &c.API.Temperature)
	integer("CHATWIDGET_RATE_LIMIT", &c.API.RateLimitPerMinute)

	integer("MAX_MESSAGE_LENGTH", &c.Chat.MaxMessageLength)
	duration("CHATWIDGET_HEALTH_INTERVAL", &c.Chat.HealthInterval)
	str("CHATWIDGET_THEME", &c.Chat.DefaultTheme)

	str("CHATWIDGET_DB", &c.Storage.DatabasePath)

	str("CHATWIDGET_LOG_DIR", &c.Logging.Dir)
	str("CHATWIDGET_LOG_LEVEL", &c.Logging.Level)
	boolean("CHATWIDGET_DEBUG", &c.Debug)

	str("MODEL_NAME", &c.Backend.ModelName)
	integer("MAX_MODEL_LENGTH", &c.Backend.MaxModelLength)
	str("MODEL_CACHE_DIR", &c.Backend.ModelCacheDir)
	boolean("USE_CPU_ONLY", &c.Backend.UseCPUOnly)
	integer("MAX_WORKERS", &c.Backend.MaxWorkers)
	float("MEMORY_LIMIT_GB", &c.Backend.MemoryLimitGB)
	integer("MAX_MESSAGE_LENGTH", &c.Backend.MaxMessageLength)
	integer("RATE_LIMIT_PER_MINUTE", &c.Backend.RateLimitPerMinute)
	str("HOST", &c.Backend.Host)
	integer("PORT", &c.Backend.Port)
	boolean("DEBUG", &c.Backend.Debug)
	str("LOG_LEVEL", &c.Backend.LogLevel)
	str("LOG_FILE", &c.Backend.LogFile)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Backend.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Backend.RequestTimeoutSecs = n
		}
	}
}

// parseDuration accepts Go durations ("30s") or bare seconds ("30"), the
// latter being how the model server's environment expresses timeouts.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// ValidationError describes one invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates every invalid field
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration for values the client cannot work with
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.API.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		add("api.url", "must be an absolute http(s) URL, got %q", c.API.URL)
	}
	if c.API.Timeout.Duration <= 0 {
		add("api.timeout", "must be positive")
	}
	if c.API.MaxLength <= 0 {
		add("api.max_length", "must be positive, got %d", c.API.MaxLength)
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		add("api.temperature", "must be within [0, 2], got %g", c.API.Temperature)
	}
	if c.API.RateLimitPerMinute < 0 {
		add("api.rate_limit_per_minute", "must not be negative, got %d", c.API.RateLimitPerMinute)
	}
	if c.Chat.MaxMessageLength <= 0 {
		add("chat.max_message_length", "must be positive, got %d", c.Chat.MaxMessageLength)
	}
	if c.Chat.TypingDelay.Duration < 0 || c.Chat.MaxTypingDelay.Duration < 0 {
		add("chat.typing_delay", "must not be negative")
	}
	if c.Chat.NotificationTTL.Duration <= 0 {
		add("chat.notification_ttl", "must be positive")
	}
	if c.Chat.HealthInterval.Duration < 0 {
		add("chat.health_interval", "must not be negative")
	}
	if c.Chat.DefaultTheme != "" {
		switch strings.ToLower(c.Chat.DefaultTheme) {
		case "light", "dark":
		default:
			add("chat.default_theme", "must be light or dark, got %q", c.Chat.DefaultTheme)
		}
	}
	if c.Storage.DatabasePath == "" {
		add("storage.database_path", "must be set")
	}
	if c.Backend.Port <= 0 || c.Backend.Port > 65535 {
		add("backend.port", "must be a valid port, got %d", c.Backend.Port)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
