package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AIDWISE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "backend.base_url", typ: kString, env: "AIDWISE_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.api_key", typ: kString, env: "AIDWISE_BACKEND_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Backend.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.APIKey },
	},
	{
		key: "backend.model", typ: kString, env: "AIDWISE_BACKEND_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Backend.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.Model },
	},
	{
		key: "backend.embed_model", typ: kString, env: "AIDWISE_BACKEND_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Backend.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AIDWISE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "cache.capacity", typ: kInt, env: "AIDWISE_CACHE_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.Cache.Capacity = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.Capacity },
	},
	{
		key: "retry.max_attempts", typ: kInt, env: "AIDWISE_RETRY_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxAttempts },
	},
	{
		key: "retry.base_delay_ms", typ: kInt, env: "AIDWISE_RETRY_BASE_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Retry.BaseDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.BaseDelayMs },
	},
	{
		key: "retry.max_delay_ms", typ: kInt, env: "AIDWISE_RETRY_MAX_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxDelayMs },
	},
	{
		key: "search.top_k", typ: kInt, env: "AIDWISE_SEARCH_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Search.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.TopK },
	},
	{
		key: "api.token", typ: kString, env: "AIDWISE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "log.level", typ: kString, env: "AIDWISE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
