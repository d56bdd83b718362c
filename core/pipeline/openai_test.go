package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"rejected","type":"invalid_request_error"}}`))
			return
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			messages := body["messages"].([]any)
			last := messages[len(messages)-1].(map[string]any)["content"].(string)
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   body["model"],
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": " echo: " + last + " "},
					"finish_reason": "stop",
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  body["model"],
				"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{0.5, 0.25, 0.125}}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAICapabilities(t *testing.T) {
	ctx := context.Background()

	t.Run("Summarize, embed and answer through the endpoint", func(t *testing.T) {
		server := newOpenAIServer(t, http.StatusOK)
		config := DefaultOpenAIConfig("test-key")
		config.BaseURL = server.URL + "/v1"
		caps := OpenAICapabilities(config)
		require.NoError(t, caps.Validate())

		summary, err := caps.Summarize(ctx, "some passage", 200)
		require.NoError(t, err, "Expected Summarize to not return an error")
		assert.Equal(t, "echo: some passage", summary)

		embedding, err := caps.Embed(ctx, "some passage")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, 0.25, 0.125}, embedding)

		answer, err := caps.Answer(ctx, "what?", "the context")
		require.NoError(t, err)
		assert.Contains(t, answer.Text, "Question: what?")
		assert.Contains(t, answer.Text, "the context")
		assert.Nil(t, answer.Confidence)
	})

	t.Run("Summary is cut to max length", func(t *testing.T) {
		server := newOpenAIServer(t, http.StatusOK)
		config := DefaultOpenAIConfig("test-key")
		config.BaseURL = server.URL + "/v1"

		summary, err := OpenAISummarizer(NewOpenAIClient(config), config)(ctx, strings.Repeat("word ", 50), 20)
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(summary)), 20)
	})

	t.Run("Client errors are permanent", func(t *testing.T) {
		server := newOpenAIServer(t, http.StatusBadRequest)
		config := DefaultOpenAIConfig("test-key")
		config.BaseURL = server.URL + "/v1"

		_, err := OpenAICapabilities(config).Summarize(ctx, "text", 100)
		require.Error(t, err)
		assert.True(t, IsPermanent(err))
	})

	t.Run("Rate limits and server errors are transient", func(t *testing.T) {
		for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
			server := newOpenAIServer(t, status)
			config := DefaultOpenAIConfig("test-key")
			config.BaseURL = server.URL + "/v1"

			_, err := OpenAICapabilities(config).Embed(ctx, "text")
			require.Error(t, err)
			assert.False(t, IsPermanent(err), "status %d", status)
		}
	})
}
