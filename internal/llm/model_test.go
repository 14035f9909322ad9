package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func chatServer(t *testing.T, reply string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteJSONMode(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, `{"agenda":[],"decisions":[],"risks":[]}`, &got)

	m, err := NewModel(Config{Provider: ProviderOpenAI, APIKey: "sk-test", Endpoint: srv.URL, Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)

	out, err := m.Complete(context.Background(), "summarize", "hello team", true)
	require.NoError(t, err)
	assert.Equal(t, `{"agenda":[],"decisions":[],"risks":[]}`, out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestCompletePlainText(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, `[{"text":"send notes"}]`, &got)

	m, err := NewModel(Config{Provider: ProviderOpenAI, APIKey: "sk-test", Endpoint: srv.URL, Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)

	out, err := m.Complete(context.Background(), "extract", "hello team", false)
	require.NoError(t, err)
	assert.Equal(t, `[{"text":"send notes"}]`, out)
	if got.ResponseFormat != nil {
		assert.NotEqual(t, "json_object", got.ResponseFormat.Type)
	}
}

func TestNewModelErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"openai without key", Config{Provider: ProviderOpenAI}, "API key"},
		{"anthropic without key", Config{Provider: ProviderAnthropic}, "API key"},
		{"azure without endpoint", Config{Provider: ProviderAzure, APIKey: "k"}, "endpoint"},
		{"unknown provider", Config{Provider: "palm"}, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewModelDefaults(t *testing.T) {
	m, err := NewModel(Config{Provider: ProviderOllama, Model: "llama3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "llama3", m.Model())
	assert.Equal(t, DefaultMaxTokens, m.maxTokens)
}
