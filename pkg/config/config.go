// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the API server.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Provider      ProviderConfig
	Resolver      ResolverConfig
	Observability ObservabilityConfig

	// LogLevel controls the minimum log level: debug, info, warn, error.
	LogLevel string
}

type ServerConfig struct {
	Port               string
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	// URL, when set, takes precedence over the individual fields.
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type ProviderConfig struct {
	APIKey            string
	BaseURL           string
	Language          string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	CacheTTL          time.Duration
}

type ResolverConfig struct {
	// BackfillDelay is the pause between provider calls of a detail backfill.
	BackfillDelay time.Duration
	// DetailConcurrency caps concurrent detail fetches of a category search.
	DetailConcurrency int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// Load reads an optional .env file, then configuration from environment
// variables. Returns an error naming every required variable that is missing
// and every value that does not parse.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8000"),
			RateLimitPerSecond: p.int("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     p.int("RATE_LIMIT_BURST", 40),
			CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
			ReadTimeout:        p.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       p.duration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:    p.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "loci_proximity"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Provider: ProviderConfig{
			APIKey:            os.Getenv("PLACES_API_KEY"),
			BaseURL:           getEnv("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api"),
			Language:          getEnv("PLACES_LANGUAGE", "en"),
			RequestsPerSecond: p.float("PLACES_REQUESTS_PER_SECOND", 10),
			Burst:             p.int("PLACES_BURST", 1),
			Timeout:           p.duration("PLACES_TIMEOUT", 10*time.Second),
			CacheTTL:          p.duration("PLACES_CACHE_TTL", 5*time.Minute),
		},
		Resolver: ResolverConfig{
			BackfillDelay:     p.duration("BACKFILL_DELAY", time.Second),
			DetailConcurrency: p.int("DETAIL_CONCURRENCY", 4),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: p.bool("METRICS_ENABLED", true),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	var missing []string
	if cfg.Provider.APIKey == "" {
		missing = append(missing, "PLACES_API_KEY")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", ")))
	}
	if len(p.invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid environment variables: %s", strings.Join(p.invalid, ", ")))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parser reads typed variables and remembers the names of those that fail to parse.
type parser struct {
	invalid []string
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return d
}
