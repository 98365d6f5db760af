package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// APIURL is the base URL of the Hello Mom REST API, including the /api
	// prefix.
	APIURL string

	// EventsURL is the WebSocket endpoint for live post events. Empty
	// disables the subscriber.
	EventsURL string

	// CacheDSN selects the local cache: a SQLite file path, ":memory:", or a
	// postgres:// URL.
	CacheDSN string

	// Port is the HTTP server port.
	Port int

	// PageSize is the number of posts requested per page.
	PageSize int

	// HTTPTimeout bounds each API request.
	HTTPTimeout time.Duration

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first if present; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port, err := intEnv("PORT", 3000)
	if err != nil {
		return nil, err
	}

	pageSize, err := intEnv("HELLOMOM_PAGE_SIZE", 20)
	if err != nil {
		return nil, err
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, fmt.Errorf("HELLOMOM_PAGE_SIZE must be between 1 and 100, got %d", pageSize)
	}

	timeout := 30 * time.Second
	if v := os.Getenv("HELLOMOM_HTTP_TIMEOUT"); v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HELLOMOM_HTTP_TIMEOUT: %w", err)
		}
	}

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	return &Config{
		APIURL:      envOrDefault("HELLOMOM_API_URL", "https://motherhood-community-app-latest.onrender.com/api"),
		EventsURL:   os.Getenv("HELLOMOM_EVENTS_URL"),
		CacheDSN:    envOrDefault("HELLOMOM_CACHE_DSN", "hellomom.db"),
		Port:        port,
		PageSize:    pageSize,
		HTTPTimeout: timeout,
		LogLevel:    level,
	}, nil
}

// ParseLevel maps debug, info, warn and error to slog levels. An empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
