package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderSelection(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("FIXBOT_MODEL", "")

	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantName string
		wantErr  bool
	}{
		{"anthropic default", ProviderConfig{APIKey: "k"}, "anthropic:" + DefaultAnthropicModel, false},
		{"anthropic model", ProviderConfig{Kind: "anthropic", APIKey: "k", Model: "claude-x"}, "anthropic:claude-x", false},
		{"openai", ProviderConfig{Kind: "OpenAI", APIKey: "k"}, "openai:" + DefaultOpenAIModel, false},
		{"no key", ProviderConfig{Kind: "anthropic"}, "none", false},
		{"disabled", ProviderConfig{Kind: "none", APIKey: "k"}, "none", false},
		{"unknown", ProviderConfig{Kind: "bard"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewProviderModelFromEnv(t *testing.T) {
	t.Setenv("FIXBOT_MODEL", "claude-env")
	p, err := NewProvider(ProviderConfig{APIKey: "k", Model: "claude-x"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic:claude-env", p.Name())
}

func TestNoopProvider(t *testing.T) {
	_, err := NoopProvider{Reason: "no key"}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnthropicProviderComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-x",
			"content": [{"type": "text", "text": "Add a null check."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-x", srv.URL+"/")
	out, err := p.Complete(context.Background(), Request{System: "be brief", Prompt: "ticket"})
	require.NoError(t, err)
	assert.Equal(t, "Add a null check.", out)
	assert.Equal(t, "claude-x", got["model"])
	assert.EqualValues(t, defaultMaxTokens, got["max_tokens"])
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-x",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Add a null check."}}]
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-x", srv.URL+"/")
	out, err := p.Complete(context.Background(), Request{System: "be brief", Prompt: "ticket", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "Add a null check.", out)
	assert.Equal(t, "gpt-x", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}
