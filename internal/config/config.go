// Package config loads aidwise configuration from defaults, the JSON file
// backend, and AIDWISE_* environment variables, in that order of
// precedence (env wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Storage StorageConfig
	Cache   CacheConfig
	Retry   RetryConfig
	Search  SearchConfig
	API     APIConfig
	Log     LogConfig
}

// ServerConfig controls the local HTTP listener. The MCP server rides
// the process's stdio, so it needs no port.
type ServerConfig struct {
	Port int
}

// BackendConfig points at the remote text-generation service.
type BackendConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	Capacity int
}

// RetryConfig shapes the generation retry schedule.
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMs int
	MaxDelayMs  int
}

// SearchConfig controls knowledge retrieval.
type SearchConfig struct {
	TopK int
}

// APIConfig secures the local HTTP API. An empty token disables auth
// (loopback-only deployments).
type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Backend: BackendConfig{
			BaseURL:    "https://api.openai.com",
			Model:      "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cache: CacheConfig{
			Capacity: 100,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMs: 500,
			MaxDelayMs:  5000,
		},
		Search: SearchConfig{
			TopK: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and environment.
//
// The backend is a JSON file at $XDG_CONFIG_HOME/aidwise/config.json.
// Environment variables (AIDWISE_*) override backend values. Secrets (the
// backend API key, the local API token) are env-only and never written to
// the config file.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Backend.APIKey == "" {
		// Return the populated config anyway so callers can still show it.
		return cfg, fmt.Errorf("missing required config: generation backend API key. " +
			"Set it via environment variable AIDWISE_BACKEND_API_KEY")
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "aidwise-data"
		}
	}
	return filepath.Join(dir, "aidwise")
}
