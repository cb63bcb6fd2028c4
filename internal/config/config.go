package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	CompletionKey     string
	CompletionBaseURL string
	CompletionModel   string
	CompletionTimeout time.Duration
	PacingDelay       time.Duration
	QueryCap          int
	Database          string
	LogMode           string
	CORSOrigins       []string
	Port              string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		CompletionKey:     getEnv("COMPLETION_API_KEY", os.Getenv("TOGETHER_API_KEY")),
		CompletionBaseURL: getEnv("COMPLETION_BASE_URL", "https://api.together.xyz/v1"),
		CompletionModel:   getEnv("COMPLETION_MODEL", "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free"),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 2*time.Minute),
		PacingDelay:       getEnvDuration("PACING_DELAY", 1500*time.Millisecond),
		QueryCap:          getEnvInt("QUERY_CAP", 10),
		Database:          getEnv("DATABASE_PATH", "./data/usage.db"),
		LogMode:           getEnv("LOG_MODE", "development"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		Port:              getEnv("PORT", "8080"),
	}

	if cfg.CompletionTimeout <= 0 {
		return cfg, fmt.Errorf("COMPLETION_TIMEOUT must be positive, got %s", cfg.CompletionTimeout)
	}
	if cfg.PacingDelay < 0 {
		return cfg, fmt.Errorf("PACING_DELAY must not be negative, got %s", cfg.PacingDelay)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1.5s") or bare seconds ("1.5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
