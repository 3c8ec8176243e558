package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairadmin/terminal-gateway/external"
)

func TestAnthropicValidateConfig(t *testing.T) {
	a := NewAnthropicAdapter()

	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"missing api key", Config{}, false},
		{"blank api key", Config{APIKey: "   "}, false},
		{"temperature too high", Config{APIKey: "k", Temperature: 2.5}, false},
		{"negative temperature", Config{APIKey: "k", Temperature: -0.1}, false},
		{"top_p out of range", Config{APIKey: "k", TopP: 1.5}, false},
		{"negative max tokens", Config{APIKey: "k", MaxTokens: -1}, false},
		{"minimal valid", Config{APIKey: "k"}, true},
		{"full valid", Config{APIKey: "k", Model: "claude-sonnet-4-20250514", Temperature: 0.7, TopP: 0.9, MaxTokens: 512}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.ValidateConfig(tc.cfg)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
			}
		})
	}

	// Validation alone never configures.
	assert.False(t, a.IsConfigured())
}

func TestAnthropicCompleteRoundTrip(t *testing.T) {
	var gotReq external.AnthropicRequest
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := external.AnthropicResponse{
			ID:         "msg_01",
			Type:       "message",
			Role:       "assistant",
			Model:      "claude-sonnet-4-20250514",
			StopReason: "end_turn",
			Usage:      external.AnthropicUsage{InputTokens: 42, OutputTokens: 7},
		}
		resp.Content = []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{
			{Type: "text", Text: "run "},
			{Type: "text", Text: "make clean"},
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter()
	require.NoError(t, a.Configure(Config{APIKey: "test-key", Endpoint: srv.URL, Temperature: 0.5}))

	resp, err := a.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "Recent terminal output:\nmake: *** [all] Error 2"},
			{Role: RoleUser, Content: "why did the build fail?"},
		},
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "run make clean", resp.Content)
	assert.Equal(t, ProviderAnthropic, resp.Provider)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 42, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	assert.Equal(t, 49, resp.Usage.TotalTokens)

	// System messages fold into the dedicated field; user messages stay.
	assert.Contains(t, gotReq.System, "make: *** [all] Error 2")
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "claude-sonnet-4-20250514", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	assert.InDelta(t, 0.5, gotReq.Temperature, 1e-9)

	assert.Equal(t, "test-key", gotHeaders.Get("x-api-key"))
	assert.Equal(t, anthropicAPIVersion, gotHeaders.Get("anthropic-version"))
}

func TestAnthropicCompleteClassifiesErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests exceeded"}}`))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter()
	require.NoError(t, a.Configure(Config{APIKey: "test-key", Endpoint: srv.URL}))

	_, err := a.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindRateLimit, pe.Kind)
	assert.True(t, pe.Retryable)
	assert.Equal(t, 3*time.Second, pe.RetryAfter)
	assert.Equal(t, "Number of requests exceeded", pe.Message)
}

func TestAnthropicCompleteRequiresConfigure(t *testing.T) {
	a := NewAnthropicAdapter()
	_, err := a.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable)
}

func TestAnthropicStreamParsesSSE(t *testing.T) {
	events := "" +
		"event: message_start\n" +
		`data: {"type":"message_start","message":{"usage":{"input_tokens":10,"output_tokens":1}}}` + "\n\n" +
		"event: ping\n" +
		`data: {"type":"ping"}` + "\n\n" +
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}` + "\n\n" +
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}` + "\n\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}` + "\n\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, requestHasStreamFlag(t, r.Body))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(events))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter()
	require.NoError(t, a.Configure(Config{APIKey: "test-key", Endpoint: srv.URL}))

	stream, err := a.StreamComplete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hel", first.Content)

	second, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "lo", second.Content)

	final, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "end_turn", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 10, final.Usage.InputTokens)
	assert.Equal(t, 5, final.Usage.OutputTokens)
	assert.Equal(t, 15, final.Usage.TotalTokens)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

// requestHasStreamFlag decodes the request body far enough to check the
// stream flag.
func requestHasStreamFlag(t *testing.T, body io.Reader) bool {
	t.Helper()
	var req struct {
		Stream bool `json:"stream"`
	}
	assert.NoError(t, json.NewDecoder(body).Decode(&req))
	return req.Stream
}

func TestAnthropicStreamSurfacesErrorEvents(t *testing.T) {
	events := "" +
		`data: {"type":"content_block_delta","delta":{"text":"par"}}` + "\n\n" +
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(events))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter()
	require.NoError(t, a.Configure(Config{APIKey: "test-key", Endpoint: srv.URL}))

	stream, err := a.StreamComplete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "par", chunk.Content)

	_, err = stream.Recv()
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
	assert.Equal(t, "Overloaded", pe.Message)
}

func TestNextSSEEventFraming(t *testing.T) {
	// LF-delimited.
	event, rest, ok := nextSSEEvent([]byte("data: a\n\ndata: b\n\n"), false)
	require.True(t, ok)
	assert.Equal(t, "data: a", string(event))
	assert.Equal(t, "data: b\n\n", string(rest))

	// CRLF-delimited.
	event, _, ok = nextSSEEvent([]byte("data: a\r\n\r\n"), false)
	require.True(t, ok)
	assert.Equal(t, "data: a", string(event))

	// Incomplete event waits for more bytes unless flushing.
	_, _, ok = nextSSEEvent([]byte("data: partial"), false)
	assert.False(t, ok)

	event, _, ok = nextSSEEvent([]byte("data: partial"), true)
	require.True(t, ok)
	assert.Equal(t, "data: partial", string(event))

	// Nothing left.
	_, _, ok = nextSSEEvent(nil, true)
	assert.False(t, ok)
}

func TestSSEDataExtraction(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(sseData([]byte("event: x\ndata: {\"a\":1}"))))
	assert.Nil(t, sseData([]byte("event: ping")))
	assert.Nil(t, sseData([]byte("data: [DONE]")))
	// Multi-line data joins with newlines.
	assert.Equal(t, "one\ntwo", string(sseData([]byte("data: one\ndata: two"))))
	// Arbitrary text that merely contains the word data is not a data line.
	assert.Nil(t, sseData([]byte("some data: here")))
}

func TestAnthropicAdapterMetadata(t *testing.T) {
	a := NewAnthropicAdapter()
	assert.Equal(t, ProviderAnthropic, a.Name())
	assert.True(t, a.SupportsStreaming())
	assert.Equal(t, anthropicDefaultModel, a.DefaultModel())
	assert.Contains(t, a.SupportedModels(), "claude-sonnet-4-20250514")
	assert.Equal(t, 200000, a.MaxContextForModel("claude-sonnet-4-20250514"))

	require.NoError(t, a.Configure(Config{APIKey: "k", Model: "claude-opus-4-20250514"}))
	assert.Equal(t, "claude-opus-4-20250514", a.DefaultModel())
}

func TestAnthropicTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid x-api-key"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	good := NewAnthropicAdapter()
	require.NoError(t, good.Configure(Config{APIKey: "good-key", Endpoint: srv.URL}))
	assert.NoError(t, good.TestConnection(context.Background()))

	bad := NewAnthropicAdapter()
	require.NoError(t, bad.Configure(Config{APIKey: "bad-key", Endpoint: srv.URL}))
	err := bad.TestConnection(context.Background())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindAuthentication, pe.Kind)
	assert.Equal(t, "invalid x-api-key", pe.Message)
}
