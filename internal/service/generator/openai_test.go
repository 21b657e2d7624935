package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/config"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Hello world #test\n"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL+"/v1/", "", zap.NewNop())
	text, err := c.Generate(context.Background(), "system", "user", 0.8, 500)
	require.NoError(t, err)
	assert.Equal(t, "Hello world #test", text)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Equal(t, 0.8, got.Temperature)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "system"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "user"}, got.Messages[1])
}

func TestOpenAIClient_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"rate limit"}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewOpenAIClient("k", srv.URL, "", zap.NewNop()).Generate(context.Background(), "", "u", 0.5, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		_, err := NewOpenAIClient("k", srv.URL, "", zap.NewNop()).Generate(context.Background(), "", "u", 0.5, 10)
		assert.Error(t, err)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIClient("", "", "", zap.NewNop()).Generate(context.Background(), "", "u", 0.5, 10)
		assert.Error(t, err)
	})
}

func TestNew_Provider(t *testing.T) {
	gen, closer, err := New(context.Background(), config.GeneratorConfig{Provider: "openai", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)
	assert.NoError(t, closer.Close())

	_, _, err = New(context.Background(), config.GeneratorConfig{Provider: "gemini"}, zap.NewNop())
	assert.Error(t, err)

	_, _, err = New(context.Background(), config.GeneratorConfig{Provider: "llama"}, zap.NewNop())
	assert.Error(t, err)
}
