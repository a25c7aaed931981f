// Package providers wraps the hosted LLM APIs used by language-model policies.
package providers

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyCompletion = errors.New("provider returned no completion")
	ErrMissingAPIKey   = errors.New("missing api key")
)

// Completer turns a prompt into a single text completion. system may be empty.
type Completer interface {
	Complete(ctx context.Context, model, prompt, system string) (string, error)
}

type ProviderParams struct {
	BaseURL string
	APIKey  string
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

// New builds the Completer registered under name ("openai" or "gemini").
func New(ctx context.Context, name string, opts ...ProviderOption) (Completer, error) {
	switch name {
	case "openai":
		return OpenAi(ctx, opts...), nil
	case "gemini", "google":
		return Gemini(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

func applyOptions(opts []ProviderOption) ProviderParams {
	params := ProviderParams{}
	for _, opt := range opts {
		opt(&params)
	}
	return params
}
