// Package llm provides a provider-agnostic completion adapter used by the
// external intelligence extractor. OpenAI-compatible endpoints (OpenAI, Groq,
// OpenRouter, self-hosted) go through net/http; Gemini goes through the genai SDK.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "openai/gpt-4o-mini").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // Max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	Model       string  // Override model for this request (empty = use provider default)
	Format      string  // "json" for structured output, empty for plain text
	System      string  // System prompt (optional)
}

// Config holds provider configuration.
type Config struct {
	Provider string // "openai", "groq", "openrouter", "google", "custom"
	Model    string // e.g., "gpt-4o-mini", "llama-3.3-70b-versatile"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override (required for "custom")
}

// APIError is a non-2xx reply from a provider endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsAuthError reports whether err is an authentication or authorization
// failure, which will not succeed on retry.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

type providerDefaults struct {
	envKeys []string
	model   string
	baseURL string
}

var defaults = map[string]providerDefaults{
	"openai": {
		envKeys: []string{"OPENAI_API_KEY"},
		model:   "gpt-4o-mini",
		baseURL: "https://api.openai.com/v1",
	},
	"groq": {
		envKeys: []string{"GROQ_API_KEY", "GROK_API_KEY"},
		model:   "llama-3.3-70b-versatile",
		baseURL: "https://api.groq.com/openai/v1",
	},
	"openrouter": {
		envKeys: []string{"OPENROUTER_API_KEY"},
		model:   "openai/gpt-4o-mini",
		baseURL: "https://openrouter.ai/api/v1",
	},
	"google": {
		envKeys: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		model:   "gemini-2.5-flash",
	},
	"custom": {
		envKeys: []string{"SCAMINTEL_LLM_API_KEY"},
	},
}

// SupportedProviders lists the accepted provider names.
var SupportedProviders = []string{"openai", "groq", "openrouter", "google", "custom"}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	d, ok := defaults[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: %s)", cfg.Provider, strings.Join(SupportedProviders, ", "))
	}

	key := usableKey(cfg.APIKey)
	for _, env := range d.envKeys {
		if key != "" {
			break
		}
		key = usableKey(os.Getenv(env))
	}
	model := cfg.Model
	if model == "" {
		model = d.model
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = d.baseURL
	}

	switch name {
	case "google":
		if key == "" {
			return nil, fmt.Errorf("google provider requires GEMINI_API_KEY or GOOGLE_API_KEY env var")
		}
		return newGoogleProvider(key, model, baseURL)

	case "custom":
		if baseURL == "" {
			return nil, fmt.Errorf("custom provider requires a base URL")
		}
		if model == "" {
			return nil, fmt.Errorf("custom provider requires a model")
		}
		// Self-hosted endpoints frequently run without auth.
		return &openaiProvider{name: name, apiKey: key, model: model, baseURL: baseURL}, nil

	default:
		if key == "" {
			return nil, fmt.Errorf("%s provider requires %s env var", name, d.envKeys[0])
		}
		return &openaiProvider{name: name, apiKey: key, model: model, baseURL: baseURL}, nil
	}
}

// usableKey returns "" for unset keys and for template placeholders such as
// "your_openai_api_key_here".
func usableKey(key string) string {
	key = strings.TrimSpace(key)
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "your_") && strings.HasSuffix(lower, "_here") {
		return ""
	}
	return key
}

// ParseLLMFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g., "openai/gpt-4o-mini", "openrouter/openai/gpt-4o-mini".
// A bare provider name selects that provider's default model.
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "openai", Model: defaults["openai"].model}, nil
	}

	provider, model, _ := strings.Cut(flag, "/")
	provider = strings.ToLower(provider)
	d, ok := defaults[provider]
	if !ok {
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: %s)", provider, strings.Join(SupportedProviders, ", "))
	}
	if model == "" {
		model = d.model
	}
	if model == "" {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model (e.g., openai/gpt-4o-mini)", flag)
	}
	return Config{Provider: provider, Model: model}, nil
}
