// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port           string
	LogLevel       string
	ApprovalKey    string
	ApprovalTTL    time.Duration
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	DatabaseURL    string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RulesPath      string
	OTLPEndpoint   string
	OTLPInsecure   bool
	MaxConcurrency int
	ToolRateLimit  float64
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		Port:           envOr("PORT", "8080"),
		LogLevel:       envOr("LOG_LEVEL", "INFO"),
		ApprovalKey:    os.Getenv("APPROVAL_SIGNING_KEY"),
		ApprovalTTL:    envDuration("APPROVAL_TOKEN_TTL", 15*time.Minute),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       envOr("LLM_MODEL", "gpt-4o-mini"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     envOr("SQLITE_PATH", "conductor.db"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		RulesPath:      os.Getenv("POLICY_RULES_PATH"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		OTLPInsecure:   os.Getenv("OTLP_INSECURE") == "true",
		MaxConcurrency: envInt("EXECUTOR_MAX_CONCURRENCY", 4),
		ToolRateLimit:  envFloat("EXECUTOR_RATE_LIMIT", 10),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
