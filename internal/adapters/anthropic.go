package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/pairadmin/terminal-gateway/external"
	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
	"github.com/pairadmin/terminal-gateway/internal/utils"
)

const (
	anthropicDefaultEndpoint = "https://api.anthropic.com"
	anthropicAPIVersion      = "2023-06-01"
	anthropicMessagesPath    = "/v1/messages"
	anthropicModelsPath      = "/v1/models"
	anthropicDefaultModel    = "claude-sonnet-4-20250514"
)

var anthropicModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
}

// AnthropicAdapter speaks the Anthropic messages API over raw HTTP,
// including SSE streaming.
type AnthropicAdapter struct {
	baseAdapter
}

// NewAnthropicAdapter creates an unconfigured Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter {
	a := &AnthropicAdapter{}
	a.baseAdapter = newBaseAdapter(ProviderAnthropic)
	return a
}

// ValidateConfig checks a configuration without committing it.
func (a *AnthropicAdapter) ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &ConfigurationError{Field: "api_key", Reason: "required for anthropic"}
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return &ConfigurationError{Field: "temperature", Reason: "must be within [0,2]"}
	}
	if cfg.TopP < 0 || cfg.TopP > 1 {
		return &ConfigurationError{Field: "top_p", Reason: "must be within [0,1]"}
	}
	if cfg.MaxTokens < 0 {
		return &ConfigurationError{Field: "max_tokens", Reason: "must be >= 0"}
	}
	return nil
}

// Configure validates and commits a configuration.
func (a *AnthropicAdapter) Configure(cfg Config) error {
	if err := a.ValidateConfig(cfg); err != nil {
		return err
	}
	a.commit(cfg)
	return nil
}

// Complete executes one messages API call.
func (a *AnthropicAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if !a.IsConfigured() {
		return nil, a.errNotConfigured()
	}

	body, err := a.buildBody(req)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.do(ctx, anthropicMessagesPath, body, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode >= 400 {
		return nil, a.classifyResponse(httpResp)
	}

	var wire external.AnthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		pe := NewProviderError(a.provider, "failed to decode response: "+err.Error(), true)
		pe.Err = err
		return nil, pe
	}
	if wire.Error != nil {
		return nil, NewProviderError(a.provider, wire.Error.Message, false)
	}

	return &CompletionResponse{
		Content:      wire.Text(),
		Model:        wire.Model,
		Provider:     a.provider,
		FinishReason: wire.StopReason,
		Usage: UsageInfo{
			InputTokens:              wire.Usage.InputTokens,
			OutputTokens:             wire.Usage.OutputTokens,
			TotalTokens:              wire.Usage.InputTokens + wire.Usage.OutputTokens,
			CacheCreationInputTokens: wire.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     wire.Usage.CacheReadInputTokens,
		},
	}, nil
}

// StreamComplete starts an SSE streaming messages call.
func (a *AnthropicAdapter) StreamComplete(ctx context.Context, req *CompletionRequest) (Stream, error) {
	if !a.IsConfigured() {
		return nil, a.errNotConfigured()
	}

	body, err := a.buildBody(req)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("failed to set stream flag: %w", err)
	}

	httpResp, err := a.do(ctx, anthropicMessagesPath, body, true)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode >= 400 {
		defer func() { _ = httpResp.Body.Close() }()
		return nil, a.classifyResponse(httpResp)
	}

	return newAnthropicStream(a.provider, httpResp.Body), nil
}

// buildBody assembles the wire request, folding system messages into the
// dedicated system field the way the messages API expects.
func (a *AnthropicAdapter) buildBody(req *CompletionRequest) ([]byte, error) {
	model, temperature, topP, maxTokens := a.fillRequestDefaults(req, anthropicDefaultModel)

	var systemParts []string
	messages := make([]external.AnthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		messages = append(messages, external.AnthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	wire := external.AnthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      strings.Join(systemParts, "\n\n"),
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
	}
	body, err := utils.MarshalNoEscape(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func (a *AnthropicAdapter) do(ctx context.Context, path string, body []byte, stream bool) (*http.Response, error) {
	cfg := a.config()
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicDefaultEndpoint
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	httpResp, err := a.httpClient().Do(httpReq)
	if err != nil {
		return nil, a.timeoutOr(err, "request failed")
	}
	return httpResp, nil
}

// classifyResponse reads an error body and maps it onto the taxonomy.
func (a *AnthropicAdapter) classifyResponse(resp *http.Response) *ProviderError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, int64(config.MaxErrorBodyLogLen)*8))
	message := gjson.GetBytes(raw, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return ClassifyHTTPError(a.provider, resp.StatusCode, resp.Header, message)
}

// SupportedModels lists the models this adapter advertises.
func (a *AnthropicAdapter) SupportedModels() []string {
	out := make([]string, len(anthropicModels))
	copy(out, anthropicModels)
	return out
}

// DefaultModel returns the model used when a request names none.
func (a *AnthropicAdapter) DefaultModel() string {
	if cfg := a.config(); cfg.Model != "" {
		return cfg.Model
	}
	return anthropicDefaultModel
}

// SupportsStreaming reports that the messages API streams.
func (a *AnthropicAdapter) SupportsStreaming() bool { return true }

// MaxContextForModel returns the model's context window in tokens.
func (a *AnthropicAdapter) MaxContextForModel(model string) int {
	return termctx.ContextWindowFor(model)
}

// TestConnection lists models to verify endpoint and credentials.
func (a *AnthropicAdapter) TestConnection(ctx context.Context) error {
	if !a.IsConfigured() {
		return a.errNotConfigured()
	}
	cfg := a.config()
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicDefaultEndpoint
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+anthropicModelsPath, nil)
	if err != nil {
		return fmt.Errorf("failed to construct request: %w", err)
	}
	httpReq.Header.Set("x-api-key", cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := a.httpClient().Do(httpReq)
	if err != nil {
		return a.timeoutOr(err, "connection test failed")
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode >= 400 {
		return a.classifyResponse(httpResp)
	}
	return nil
}

// =============================================================================
// SSE STREAM
// =============================================================================

// anthropicStream incrementally parses the messages API event stream. It
// only reads structured "data: {json}" events so arbitrary text inside
// deltas can never be mistaken for protocol frames.
type anthropicStream struct {
	provider Provider
	body     io.ReadCloser
	buf      []byte
	readBuf  []byte
	eof      bool
	usage    UsageInfo
	sawUsage bool
}

func newAnthropicStream(provider Provider, body io.ReadCloser) *anthropicStream {
	return &anthropicStream{
		provider: provider,
		body:     body,
		buf:      make([]byte, 0, 4096),
		readBuf:  make([]byte, 4096),
	}
}

// Recv returns the next content or terminal chunk, reading from the wire as
// needed. io.EOF signals normal completion.
func (s *anthropicStream) Recv() (StreamingChunk, error) {
	for {
		event, rest, ok := nextSSEEvent(s.buf, s.eof)
		if ok {
			s.buf = rest
			chunk, deliver, err := s.handleEvent(event)
			if err != nil {
				return StreamingChunk{}, err
			}
			if deliver {
				return chunk, nil
			}
			continue
		}

		if s.eof {
			return StreamingChunk{}, io.EOF
		}

		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.buf = append(s.buf, s.readBuf[:n]...)
		}
		if err == io.EOF {
			s.eof = true
			continue
		}
		if err != nil {
			pe := NewProviderError(s.provider, "stream read failed: "+err.Error(), true)
			pe.Err = err
			return StreamingChunk{}, pe
		}
	}
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}

// handleEvent maps one SSE event to a chunk. The second return reports
// whether the chunk should be delivered (pings and bookkeeping events are
// consumed silently).
func (s *anthropicStream) handleEvent(event []byte) (StreamingChunk, bool, error) {
	data := sseData(event)
	if len(data) == 0 {
		return StreamingChunk{}, false, nil
	}

	switch gjson.GetBytes(data, "type").String() {
	case "message_start":
		if usage := gjson.GetBytes(data, "message.usage"); usage.Exists() {
			s.applyUsage(usage)
		}
		return StreamingChunk{}, false, nil

	case "content_block_delta":
		text := gjson.GetBytes(data, "delta.text").String()
		if text == "" {
			return StreamingChunk{}, false, nil
		}
		return StreamingChunk{Content: text}, true, nil

	case "message_delta":
		if usage := gjson.GetBytes(data, "usage"); usage.Exists() {
			s.applyUsage(usage)
		}
		chunk := StreamingChunk{FinishReason: gjson.GetBytes(data, "delta.stop_reason").String()}
		if s.sawUsage {
			usage := s.usage
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens +
				usage.CacheCreationInputTokens + usage.CacheReadInputTokens
			chunk.Usage = &usage
		}
		if chunk.FinishReason == "" && chunk.Usage == nil {
			return StreamingChunk{}, false, nil
		}
		return chunk, true, nil

	case "error":
		message := gjson.GetBytes(data, "error.message").String()
		errType := gjson.GetBytes(data, "error.type").String()
		retryable := errType == "overloaded_error" || errType == "api_error"
		return StreamingChunk{}, false, NewProviderError(s.provider, message, retryable)

	default:
		// ping, content_block_start/stop, message_stop
		return StreamingChunk{}, false, nil
	}
}

// applyUsage merges usage counters, keeping the largest output count seen.
func (s *anthropicStream) applyUsage(usage gjson.Result) {
	s.sawUsage = true
	if v := usage.Get("input_tokens").Int(); v > 0 {
		s.usage.InputTokens = int(v)
	}
	if v := usage.Get("output_tokens").Int(); int(v) > s.usage.OutputTokens {
		s.usage.OutputTokens = int(v)
	}
	if v := usage.Get("cache_creation_input_tokens").Int(); v > 0 {
		s.usage.CacheCreationInputTokens = int(v)
	}
	if v := usage.Get("cache_read_input_tokens").Int(); v > 0 {
		s.usage.CacheReadInputTokens = int(v)
	}
}

// nextSSEEvent splits one server-sent event off the front of buf. With
// flush set, a trailing unterminated event is returned as-is.
func nextSSEEvent(buf []byte, flush bool) (event, rest []byte, ok bool) {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return buf[:idx], buf[idx+4:], true
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return buf[:idx], buf[idx+2:], true
	}
	if flush {
		trimmed := bytes.TrimSpace(buf)
		if len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

// sseData joins the data lines of one event, skipping [DONE] markers.
func sseData(event []byte) []byte {
	lines := bytes.Split(event, []byte("\n"))
	dataLines := make([][]byte, 0, 2)
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		dataLines = append(dataLines, payload)
	}
	if len(dataLines) == 0 {
		return nil
	}
	return bytes.Join(dataLines, []byte("\n"))
}

var _ Adapter = (*AnthropicAdapter)(nil)
var _ Stream = (*anthropicStream)(nil)
