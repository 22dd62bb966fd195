package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
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
		key: "server.port", typ: kInt, env: "TALKMATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ai.provider", typ: kString, env: "TALKMATCH_AI_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.AI.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Provider },
	},
	{
		key: "ai.model", typ: kString, env: "TALKMATCH_AI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Model },
	},
	{
		key: "ai.max_tokens", typ: kInt, env: "TALKMATCH_AI_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.AI.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.AI.MaxTokens },
	},
	{
		key: "ai.base_url", typ: kString, env: "TALKMATCH_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.openrouter_api_key", typ: kString, env: "TALKMATCH_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenRouterAPIKey },
	},
	{
		key: "ai.openai_api_key", typ: kString, env: "TALKMATCH_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenAIAPIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "TALKMATCH_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "TALKMATCH_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "gemini.model", typ: kString, env: "TALKMATCH_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "TALKMATCH_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "storage.backend", typ: kString, env: "TALKMATCH_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TALKMATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "prompts.dir", typ: kString, env: "TALKMATCH_PROMPTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Prompts.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompts.Dir },
	},
	{
		key: "personas.file", typ: kString, env: "TALKMATCH_PERSONAS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Personas.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Personas.File },
	},
	{
		key: "matching.link_threshold", typ: kInt, env: "TALKMATCH_MATCHING_LINK_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Matching.LinkThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.LinkThreshold },
	},
	{
		key: "matching.act_threshold", typ: kFloat, env: "TALKMATCH_MATCHING_ACT_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Matching.ActThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.ActThreshold },
	},
	{
		key: "matching.readiness_enabled", typ: kBool, env: "TALKMATCH_MATCHING_READINESS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Matching.ReadinessEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Matching.ReadinessEnabled },
	},
	{
		key: "matching.readiness_threshold", typ: kFloat, env: "TALKMATCH_MATCHING_READINESS_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Matching.ReadinessThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.ReadinessThreshold },
	},
	{
		key: "matching.top_n", typ: kInt, env: "TALKMATCH_MATCHING_TOP_N",
		apply:   func(cfg *Config, v any) { cfg.Matching.TopN = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.TopN },
	},
	{
		key: "log.level", typ: kString, env: "TALKMATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					slog.Warn("could not parse bool from config, using default value", "key", s.key, "value", v, "error", err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					slog.Warn("could not parse float from config, using default value", "key", s.key, "value", v, "error", err)
				}
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
				slog.Warn("could not parse integer from env var, using default value", "env", s.env, "value", raw, "error", err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				slog.Warn("could not parse bool from env var, using default value", "env", s.env, "value", raw, "error", err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				slog.Warn("could not parse float from env var, using default value", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}
