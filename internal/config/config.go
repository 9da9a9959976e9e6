package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Common contains the provider and publishing parameters shared by every binary.
type Common struct {
	GeminiAPIKey   string
	GeminiModel    string
	GeminiTimeout  time.Duration
	Timezone       *time.Location
	KafkaBrokers   []string
	KafkaTopic     string
	DedupeCapacity int
	DedupeTTL      time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr string
}

// Digest configures the scheduled fetch-and-publish loop.
type Digest struct {
	Common
	Interval time.Duration
}

// LoadAPI builds an API config from environment variables. Publishing is
// disabled when KAFKA_BROKERS is empty.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:   *common,
		BindAddr: getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
	}
	return c, nil
}

// LoadDigest builds a Digest config from environment variables.
func LoadDigest() (*Digest, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Digest{
		Common:   *common,
		Interval: getDuration("DIGEST_INTERVAL", "24h"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("DIGEST_INTERVAL must be positive")
	}

	return c, nil
}

func loadCommon() (*Common, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	tzName := getEnv("APP_TIMEZONE", "Asia/Shanghai")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", tzName, err)
	}

	// The key is passed through unchecked; a missing key surfaces as a
	// provider error on the first lookup.
	c := &Common{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
		GeminiTimeout:  getDuration("GEMINI_TIMEOUT", "90s"),
		Timezone:       loc,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "policy_digest"),
		DedupeCapacity: getInt("PUBLISH_DEDUPE_CAPACITY", 5000),
		DedupeTTL:      getDuration("PUBLISH_DEDUPE_TTL", "72h"),
	}

	if c.GeminiTimeout <= 0 {
		return nil, fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("PUBLISH_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
