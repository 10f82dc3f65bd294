package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds a Gemini API client bound to one model. An empty
// baseURL uses the public endpoint.
func NewGeminiClient(ctx context.Context, apiKey, baseURL, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: c, model: model}, nil
}

func (c *GeminiClient) Name() string  { return "gemini" }
func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.Params.MaxOutputTokens),
		Temperature:     genai.Ptr(float32(req.Params.Temperature)),
		TopP:            genai.Ptr(float32(req.Params.TopP)),
		TopK:            genai.Ptr(float32(req.Params.TopK)),
	}
	if req.Params.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Params.SystemPrompt, genai.RoleUser)
	}

	res, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return Response{}, c.wrapError(err)
	}

	out := Response{Text: res.Text()}
	if res.PromptFeedback != nil {
		out.BlockReason = string(res.PromptFeedback.BlockReason)
	}
	if res.UsageMetadata != nil {
		out.TokensIn = int(res.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(res.UsageMetadata.CandidatesTokenCount)
	}
	if len(res.Candidates) > 0 && res.Candidates[0] != nil {
		cand := res.Candidates[0]
		out.FinishReason = string(cand.FinishReason)
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p != nil && p.Text != "" && !p.Thought {
					out.Parts = append(out.Parts, p.Text)
				}
			}
		}
	}
	return out, nil
}

// ListModels returns the model ids visible to the configured key, without
// the "models/" resource prefix so they match GEMINI_MODEL.
func (c *GeminiClient) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, c.wrapError(err)
		}
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}

// wrapError converts genai API errors into *APIError; anything else (network,
// context) is returned untouched.
func (c *GeminiClient) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: c.Name(), StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{Provider: c.Name(), StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("gemini: %w", err)
}

// statusFromCode is used when a provider only reports an HTTP status.
func statusFromCode(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	default:
		return ""
	}
}
