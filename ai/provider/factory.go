// Package provider selects and builds the chat client for the configured
// model provider.
package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/ai/openai"
	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/errors"
)

// Provider names a model service
type Provider string

const (
	// ProviderOpenAI uses api.openai.com directly
	ProviderOpenAI Provider = "openai"
	// ProviderOpenRouter uses OpenRouter.ai
	ProviderOpenRouter Provider = "openrouter"
	// ProviderLocal uses an OpenAI-compatible local server (Ollama, LocalAI)
	ProviderLocal Provider = "local"
)

// Base URLs used when model.base_url is empty
const (
	OpenAIBaseURL     = openai.DefaultBaseURL
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	LocalBaseURL      = "http://localhost:11434/v1"
)

// AIClient is implemented by every chat transport
type AIClient interface {
	Chat(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error)
}

var _ AIClient = (*openai.Client)(nil)

// ParseProvider converts a config or flag value to a Provider
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "":
		return ProviderOpenAI, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	default:
		return "", errors.NewInvalidRequestError("unknown provider: %s (valid: openai, openrouter, local)", s)
	}
}

// BaseURL returns the default endpoint for p
func (p Provider) BaseURL() string {
	switch p {
	case ProviderOpenRouter:
		return OpenRouterBaseURL
	case ProviderLocal:
		return LocalBaseURL
	default:
		return OpenAIBaseURL
	}
}

// RequiresAPIKey reports whether p refuses unauthenticated requests
func (p Provider) RequiresAPIKey() bool {
	return p != ProviderLocal
}

// NewAIClient builds the chat client described by cfg. Remote providers
// require an API key; the local provider may reach loopback addresses.
func NewAIClient(cfg am.ModelConfig, log *zap.SugaredLogger) (AIClient, error) {
	p, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}
	if apiKey == "" && p.RequiresAPIKey() {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("%s provider needs an API key", p),
			"set model.api_key_file, FEATSMITH_MODEL_API_KEY or OPENAI_API_KEY",
		)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = p.BaseURL()
	}

	return openai.NewClient(openai.Config{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout(),
		AllowPrivate: p == ProviderLocal,
		Title:        "featsmith",
		Logger:       log,
	}), nil
}
