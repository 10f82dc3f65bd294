package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaigo "github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openaigo.Client
	model  string
}

// NewOpenAIClient talks to OpenAI or any OpenAI-compatible endpoint when baseURL is set.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{client: openaigo.NewClientWithConfig(cfg), model: model}, nil
}

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openaigo.ChatCompletionMessage
	if req.Params.SystemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: req.Params.SystemPrompt,
		})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.Params.MaxOutputTokens,
		Temperature: float32(req.Params.Temperature),
		TopP:        float32(req.Params.TopP),
	})
	if err != nil {
		return Response{}, c.wrapError(err)
	}

	out := Response{
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	out.FinishReason = string(choice.FinishReason)
	for _, p := range choice.Message.MultiContent {
		if p.Type == openaigo.ChatMessagePartTypeText && p.Text != "" {
			out.Parts = append(out.Parts, p.Text)
		}
	}
	return out, nil
}

func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, c.wrapError(err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider:   c.Name(),
			StatusCode: apiErr.HTTPStatusCode,
			Status:     statusFromCode(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
		}
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{
			Provider:   c.Name(),
			StatusCode: reqErr.HTTPStatusCode,
			Status:     statusFromCode(reqErr.HTTPStatusCode),
			Message:    reqErr.Error(),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("openai: %w", err)
}
