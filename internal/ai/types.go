package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GenerationParams carries the sampling configuration sent with every prompt.
type GenerationParams struct {
	SystemPrompt    string
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
	TopK            int
}

// Request is a single text-generation request.
type Request struct {
	Prompt string
	Model  string
	Params GenerationParams
}

// Response is what a provider returned. Text is the primary payload; Parts holds
// the raw candidate parts so callers can recover text the SDK accessor dropped.
type Response struct {
	Text         string
	Parts        []string
	FinishReason string
	BlockReason  string
	TokensIn     int
	TokensOut    int
}

// Client interface for generative-text providers like Gemini or OpenAI.
type Client interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Response, error)
	ListModels(ctx context.Context) ([]string, error)
}

var (
	ErrRateLimited   = errors.New("rate_limited")
	ErrMissingAPIKey = errors.New("missing api key")
)

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// APIError is a failure reported by the provider API itself. Status holds the
// canonical status name (NOT_FOUND, RESOURCE_EXHAUSTED, ...) when the provider
// reports one; StatusCode holds the HTTP status.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s api error %d %s: %s", e.Provider, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Is lets callers match rate limiting with errors.Is(err, ErrRateLimited).
func (e *APIError) Is(target error) bool {
	if target != ErrRateLimited {
		return false
	}
	return e.StatusCode == 429 || strings.EqualFold(e.Status, "RESOURCE_EXHAUSTED")
}
