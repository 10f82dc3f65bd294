package ai

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a provider.
type Options struct {
	Provider string // "gemini"|"openai"
	APIKey   string
	BaseURL  string
	Model    string
}

// NewClient returns the Client for opts.Provider.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "gemini":
		return NewGeminiClient(ctx, opts.APIKey, opts.BaseURL, opts.Model)
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.Model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}
