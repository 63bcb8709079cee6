package providers

import (
	"fmt"

	"github.com/ChamsBouzaiene/datapilot/internal/gateway"
)

// Config selects and configures a provider client. It is resolved once at
// startup (flags, .env, config file) and passed in explicitly; nothing in
// this package reads the environment.
type Config struct {
	Provider string // "openai", "anthropic", or an openai-compatible alias
	APIKey   string
	BaseURL  string // optional, openai-compatible endpoints only
}

// Known OpenAI-compatible endpoints, keyed by provider alias.
var compatibleBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"gemini":   "https://generativelanguage.googleapis.com/v1beta/openai",
	"ollama":   "http://localhost:11434/v1",
	"lmstudio": "http://localhost:1234/v1",
}

// NewCompleter creates the provider client for cfg.
func NewCompleter(cfg Config) (gateway.Completer, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL), nil

	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicClient(cfg.APIKey), nil

	default:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = compatibleBaseURLs[cfg.Provider]
		}
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q and no base URL given", cfg.Provider)
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			// Local servers accept any key.
			apiKey = "not-needed"
		}
		return NewOpenAIClient(apiKey, baseURL), nil
	}
}
