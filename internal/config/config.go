// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all MirrorLens server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Remote store (cloud drive API)
	RemoteBaseURL  string
	RemotePageSize int

	// Text embeddings (OpenAI-compatible endpoint)
	EmbedAPIKey  string
	EmbedBaseURL string
	EmbedModel   string

	// Image embeddings (CLIP-style HTTP service)
	ImageEmbedURL     string
	ImageEmbedTimeout time.Duration
	ImageMaxDimension int

	// Local mirror
	MirrorDir   string
	SyncWorkers int

	// Auth
	JWTSecret string

	// Search
	PageSize int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),

		RemoteBaseURL:  envOr("REMOTE_BASE_URL", "https://graph.microsoft.com/v1.0"),
		RemotePageSize: envInt("REMOTE_PAGE_SIZE", 200),

		EmbedAPIKey:  envOr("EMBED_API_KEY", ""),
		EmbedBaseURL: envOr("EMBED_BASE_URL", ""),
		EmbedModel:   envOr("EMBED_MODEL", "text-embedding-3-small"),

		ImageEmbedURL:     envOr("IMAGE_EMBED_URL", ""),
		ImageEmbedTimeout: envDuration("IMAGE_EMBED_TIMEOUT", 30*time.Second),
		ImageMaxDimension: envInt("IMAGE_MAX_DIMENSION", 512),

		MirrorDir:   envOr("MIRROR_DIR", "/data/mirror"),
		SyncWorkers: envInt("SYNC_WORKERS", 4),

		JWTSecret: envOr("JWT_SECRET", ""),

		PageSize: envInt("SEARCH_PAGE_SIZE", 20),
	}

	if cfg.EmbedAPIKey == "" {
		return nil, fmt.Errorf("EMBED_API_KEY is required")
	}
	if cfg.ImageEmbedURL == "" {
		return nil, fmt.Errorf("IMAGE_EMBED_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
