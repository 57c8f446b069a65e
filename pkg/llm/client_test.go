package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(&Config{}, zap.NewNop())
	assert.Error(t, err)

	client, err := NewClient(&Config{Model: "gpt-4o-mini"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIEndpoint, client.GetEndpoint())
}

func TestClient_GenerateResponse_JSONMode(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"primary_theme\":\"pricing\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 14, "total_tokens": 134}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL + "/", Model: "gpt-4o-mini", APIKey: "test-key", MaxTokens: 400, Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "Feedback: te duur", "system prompt", 0.1, true)
	require.NoError(t, err)

	assert.Equal(t, `{"primary_theme":"pricing"}`, result.Content)
	assert.Equal(t, 120, result.PromptTokens)
	assert.Equal(t, 134, result.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 400, body["max_tokens"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok, "response_format should be set in JSON mode")
	assert.Equal(t, "json_object", format["type"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "Feedback: te duur", messages[1].(map[string]any)["content"])
}

func TestClient_GenerateResponse_ClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   ErrorType
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, ErrorTypeUnknown, true},
		{"unauthorized", http.StatusUnauthorized, ErrorTypeAuth, false},
		{"server error", http.StatusServiceUnavailable, ErrorTypeEndpoint, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "upstream said no", "type": "test_error"}}`))
			}))
			defer server.Close()

			client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o-mini", APIKey: "k"}, zap.NewNop())
			require.NoError(t, err)

			_, err = client.GenerateResponse(context.Background(), "p", "s", 0, true)
			require.Error(t, err)

			var llmErr *Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.errType, llmErr.Type)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.StatusCode)
			assert.Equal(t, "gpt-4o-mini", llmErr.Model)
		})
	}
}
