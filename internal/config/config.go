package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// AppConfig holds runtime settings loaded from the environment.
type AppConfig struct {
	Port               string
	DatabasePath       string // empty selects the in-memory store
	JWTSecret          string
	LogLevel           string
	LogFormat          string
	StatementTemplate  string
	Categories         []string
	FallbackYear       int // 0 rejects statements without a period
	AlertThreshold     float64
	DraftTTL           time.Duration
	MaxUploadSizeBytes int64
}

const defaultJWTSecret = "change-me-local-development-secret-32b"

// Load reads an optional .env file and then the environment. Malformed
// values fall back to their defaults with a warning.
func Load(log zerolog.Logger) *AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, relying on environment")
	}

	cfg := &AppConfig{
		Port:              getEnv("PORT", "8080"),
		DatabasePath:      getEnv("DATABASE_PATH", ""),
		JWTSecret:         getEnv("JWT_SECRET", defaultJWTSecret),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
		StatementTemplate: getEnv("STATEMENT_TEMPLATE", "simplii"),
		Categories:        splitList(getEnv("STATEMENT_CATEGORIES", "")),
	}

	if cfg.JWTSecret == defaultJWTSecret {
		log.Warn().Msg("using default insecure JWT_SECRET; set JWT_SECRET for production")
	}

	cfg.FallbackYear = getInt(log, "FALLBACK_YEAR", 0)
	cfg.MaxUploadSizeBytes = int64(getInt(log, "MAX_UPLOAD_SIZE_BYTES", 10*1024*1024))

	threshold, err := strconv.ParseFloat(getEnv("ALERT_THRESHOLD_PERCENT", "80"), 64)
	if err != nil || threshold <= 0 {
		log.Warn().Str("value", os.Getenv("ALERT_THRESHOLD_PERCENT")).Msg("invalid ALERT_THRESHOLD_PERCENT, using 80")
		threshold = 80
	}
	cfg.AlertThreshold = threshold

	ttl, err := time.ParseDuration(getEnv("DRAFT_TTL", "30m"))
	if err != nil {
		log.Warn().Str("value", os.Getenv("DRAFT_TTL")).Msg("invalid DRAFT_TTL, using 30m")
		ttl = 30 * time.Minute
	}
	cfg.DraftTTL = ttl

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(log zerolog.Logger, key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Int("default", fallback).Msg("invalid integer setting")
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
