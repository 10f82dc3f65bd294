package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, h http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewGeminiClient(context.Background(), "test-key", srv.URL, "gemini-test")
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestGeminiClient_Generate(t *testing.T) {
	var body map[string]any
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello, "},{"text":"world"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}}`)
	})

	resp, err := c.Generate(context.Background(), Request{
		Prompt: "hi",
		Params: GenerationParams{SystemPrompt: "be an angel", MaxOutputTokens: 64, Temperature: 0.2, TopP: 0.5, TopK: 16},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", resp.Text)
	assert.Equal(t, []string{"Hello, ", "world"}, resp.Parts)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 7, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)

	assert.Contains(t, body, "systemInstruction")
	gen, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 64, gen["maxOutputTokens"])
}

func TestGeminiClient_WhitespaceTextKeepsFinishReason(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"  "}]},"finishReason":"SAFETY"}]}`)
	})

	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(resp.Text))
	assert.Equal(t, []string{"  "}, resp.Parts)
	assert.Equal(t, "SAFETY", resp.FinishReason)
}

func TestGeminiClient_NoCandidates(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	})

	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.Empty(t, resp.Parts)
	assert.Equal(t, "SAFETY", resp.BlockReason)
}

func TestGeminiClient_APIErrors(t *testing.T) {
	cases := []struct {
		code        int
		status      string
		rateLimited bool
	}{
		{http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", true},
		{http.StatusNotFound, "NOT_FOUND", false},
		{http.StatusForbidden, "PERMISSION_DENIED", false},
		{http.StatusBadRequest, "INVALID_ARGUMENT", false},
		{http.StatusInternalServerError, "INTERNAL", false},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.code, fmt.Sprintf(`{"error":{"code":%d,"message":"upstream says no","status":%q}}`, tc.code, tc.status))
			})

			_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
			assert.Equal(t, "gemini", apiErr.Provider)
			assert.Equal(t, tc.code, apiErr.StatusCode)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Contains(t, apiErr.Message, "upstream says no")
			assert.Equal(t, tc.rateLimited, IsRateLimited(err))
		})
	}
}

func TestGeminiClient_ListModelsStripsResourcePrefix(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		writeJSON(w, http.StatusOK, `{"models":[{"name":"models/gemini-2.5-flash"},{"name":"models/gemini-2.0-flash"},{"name":"tunedModels/my-org/angel"}]}`)
	})

	ids, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.0-flash", "tunedModels/my-org/angel"}, ids)
}

func TestGeminiClient_ListModelsError(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"key revoked","status":"PERMISSION_DENIED"}}`)
	})

	_, err := c.ListModels(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Status)
}
