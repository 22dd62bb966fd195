package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Ollama   OllamaConfig
	Gemini   GeminiConfig
	Storage  StorageConfig
	Prompts  PromptsConfig
	Personas PersonasConfig
	Matching MatchingConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type AIConfig struct {
	Provider         string
	Model            string
	MaxTokens        int
	BaseURL          string
	OpenRouterAPIKey string
	OpenAIAPIKey     string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	Model  string
	APIKey string
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type PromptsConfig struct {
	Dir string
}

type PersonasConfig struct {
	File string
}

type MatchingConfig struct {
	LinkThreshold      int
	ActThreshold       float64
	ReadinessEnabled   bool
	ReadinessThreshold float64
	TopN               int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		AI: AIConfig{
			Provider:  "openrouter",
			Model:     "openai/gpt-4o-mini",
			MaxTokens: 500,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Storage: StorageConfig{
			Backend: "json",
			DataDir: defaultDataDir(),
		},
		Matching: MatchingConfig{
			LinkThreshold:      2,
			ActThreshold:       0.5,
			ReadinessEnabled:   true,
			ReadinessThreshold: 80,
			TopN:               3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML file at FilePath and applies
// TALKMATCH_* environment overrides. Secrets come from the environment only.
// Load does not check credentials; see Validate.
func Load() (Config, error) {
	return loadFromPath(FilePath())
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Validate reports missing or inconsistent settings for running the server.
func (c Config) Validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case "openrouter":
		if c.AI.OpenRouterAPIKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. " +
				"Set it via environment variable TALKMATCH_OPENROUTER_API_KEY")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("missing required config: Gemini API key. " +
				"Set it via environment variable TALKMATCH_GEMINI_API_KEY")
		}
	case "openai":
		if c.AI.BaseURL == "" {
			return fmt.Errorf("missing required config: ai.base_url for provider openai")
		}
	case "ollama", "mock":
	default:
		return fmt.Errorf("unknown ai.provider %q (want openrouter, openai, ollama, gemini or mock)", c.AI.Provider)
	}

	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown storage.backend %q (want json or sqlite)", c.Storage.Backend)
	}

	if c.Matching.LinkThreshold < 1 {
		return fmt.Errorf("matching.link_threshold must be at least 1, got %d", c.Matching.LinkThreshold)
	}
	if c.Matching.ActThreshold < 0 || c.Matching.ActThreshold >= 1 {
		return fmt.Errorf("matching.act_threshold must be in [0,1), got %v", c.Matching.ActThreshold)
	}
	return nil
}
