package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// BackendEnv returns the model server's environment as key/value pairs
func (c *Config) BackendEnv() map[string]string {
	b := c.Backend
	return map[string]string{
		"MODEL_NAME":            b.ModelName,
		"MAX_MODEL_LENGTH":      strconv.Itoa(b.MaxModelLength),
		"MODEL_CACHE_DIR":       b.ModelCacheDir,
		"USE_CPU_ONLY":          strconv.FormatBool(b.UseCPUOnly),
		"MAX_WORKERS":           strconv.Itoa(b.MaxWorkers),
		"MEMORY_LIMIT_GB":       strconv.FormatFloat(b.MemoryLimitGB, 'f', -1, 64),
		"MAX_MESSAGE_LENGTH":    strconv.Itoa(b.MaxMessageLength),
		"REQUEST_TIMEOUT":       strconv.Itoa(b.RequestTimeoutSecs),
		"RATE_LIMIT_PER_MINUTE": strconv.Itoa(b.RateLimitPerMinute),
		"HOST":                  b.Host,
		"PORT":                  strconv.Itoa(b.Port),
		"DEBUG":                 strconv.FormatBool(b.Debug),
		"ALLOWED_ORIGINS":       strings.Join(b.AllowedOrigins, ","),
		"LOG_LEVEL":             b.LogLevel,
		"LOG_FILE":              b.LogFile,
	}
}

// WriteBackendEnv renders the model server's .env file to path
func (c *Config) WriteBackendEnv(path string) error {
	if err := godotenv.Write(c.BackendEnv(), path); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	return nil
}

// MarshalBackendEnv renders the model server's .env content
func (c *Config) MarshalBackendEnv() (string, error) {
	out, err := godotenv.Marshal(c.BackendEnv())
	if err != nil {
		return "", fmt.Errorf("failed to marshal env: %w", err)
	}
	return out, nil
}
