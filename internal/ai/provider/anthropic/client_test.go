package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, func() messagesRequest) {
	t.Helper()

	var mu sync.Mutex
	var last messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(raw, &last)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, func() messagesRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newClient(t *testing.T, baseURL string, grounding bool) *Client {
	t.Helper()
	c, err := New(types.Spec{
		ID:        "claude",
		Name:      "Claude",
		Kind:      types.KindAnthropic,
		Model:     "claude-haiku",
		BaseURL:   baseURL + "/",
		APIKey:    "test-key",
		Grounding: grounding,
	}, logger.NewNop())
	require.NoError(t, err)
	return c
}

const okBody = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku",
"content":[{"type":"text","text":"Par"},{"type":"text","text":"is"}],
"stop_reason":"end_turn","usage":{"input_tokens":7,"output_tokens":2}}`

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(types.Spec{ID: "x", Kind: types.KindAnthropic}, logger.NewNop())
	assert.ErrorIs(t, err, types.ErrMissingModel)
}

func TestComplete(t *testing.T) {
	srv, last := newServer(t, http.StatusOK, okBody)
	c := newClient(t, srv.URL, false)

	text, err := c.Complete(context.Background(), "Capital of France?", types.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Paris", text, "text blocks are joined")

	req := last()
	assert.Equal(t, "claude-haiku", req.Model)
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	assert.Empty(t, req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "Capital of France?", req.Messages[0].Content)
}

func TestComplete_SystemPrompt(t *testing.T) {
	srv, last := newServer(t, http.StatusOK, okBody)

	t.Run("grounding and json", func(t *testing.T) {
		c := newClient(t, srv.URL, true)
		_, err := c.Complete(context.Background(), "q", types.Options{Grounding: true, JSON: true})
		require.NoError(t, err)
		assert.Equal(t, types.GroundingInstruction+"\n"+JSONInstruction, last().System)
	})

	t.Run("grounding not supported", func(t *testing.T) {
		c := newClient(t, srv.URL, false)
		_, err := c.Complete(context.Background(), "q", types.Options{Grounding: true})
		require.NoError(t, err)
		assert.Empty(t, last().System)
	})
}

func TestComplete_APIError(t *testing.T) {
	srv, _ := newServer(t, 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	c := newClient(t, srv.URL, false)

	_, err := c.Complete(context.Background(), "q", types.Options{})
	require.Error(t, err)

	var pe *types.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Claude", pe.Provider)
	assert.Equal(t, 529, pe.StatusCode)
	assert.Equal(t, types.ErrorTypeOverloaded, pe.Type)
	assert.Equal(t, "Overloaded", pe.Reason())
	assert.True(t, pe.IsRetryable())
}

func TestComplete_ErrorWithoutBody(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, ``)
	c := newClient(t, srv.URL, false)

	_, err := c.Complete(context.Background(), "q", types.Options{})
	var pe *types.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, types.ErrorTypeAuthentication, pe.Type)
	assert.Equal(t, "API error: status 401", pe.Reason())
}

func TestComplete_NoText(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"id":"msg_1","content":[],"stop_reason":"end_turn"}`)
	c := newClient(t, srv.URL, false)

	_, err := c.Complete(context.Background(), "q", types.Options{})
	assert.ErrorIs(t, err, types.ErrEmptyResponse)
}
