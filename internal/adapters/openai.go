package adapters

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

const openaiDefaultModel = "gpt-4o-mini"

// openaiModels are the chat models the adapter advertises. Other models
// still work when named explicitly; this list feeds SupportedModels.
var openaiModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4.1",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
	"o1",
	"o3-mini",
}

// OpenAIAdapter speaks the OpenAI chat completions API. It also serves any
// OpenAI-compatible endpoint via Config.Endpoint (the Ollama adapter builds
// on that).
type OpenAIAdapter struct {
	baseAdapter

	client *openai.Client // guarded by baseAdapter.mu
}

// NewOpenAIAdapter creates an unconfigured OpenAI adapter.
func NewOpenAIAdapter() *OpenAIAdapter {
	a := &OpenAIAdapter{}
	a.baseAdapter = newBaseAdapter(ProviderOpenAI)
	return a
}

// ValidateConfig checks a configuration without committing it.
func (a *OpenAIAdapter) ValidateConfig(cfg Config) error {
	return a.validateConfig(cfg, true)
}

func (a *OpenAIAdapter) validateConfig(cfg Config, keyRequired bool) error {
	if keyRequired && strings.TrimSpace(cfg.APIKey) == "" {
		return &ConfigurationError{Field: "api_key", Reason: "required for " + a.provider.String()}
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

// Configure validates and commits a configuration, rebuilding the client.
func (a *OpenAIAdapter) Configure(cfg Config) error {
	if err := a.ValidateConfig(cfg); err != nil {
		return err
	}
	a.configureClient(cfg)
	return nil
}

func (a *OpenAIAdapter) configureClient(cfg Config) {
	a.commit(cfg)

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	clientConfig.HTTPClient = a.httpClient()

	a.baseAdapter.mu.Lock()
	a.client = openai.NewClientWithConfig(clientConfig)
	a.baseAdapter.mu.Unlock()
}

func (a *OpenAIAdapter) chatClient() *openai.Client {
	a.baseAdapter.mu.RLock()
	defer a.baseAdapter.mu.RUnlock()
	return a.client
}

// Complete executes one chat completion call.
func (a *OpenAIAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	client := a.chatClient()
	if client == nil {
		return nil, a.errNotConfigured()
	}

	resp, err := client.CreateChatCompletion(ctx, a.buildRequest(req, false))
	if err != nil {
		return nil, a.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(a.provider, "empty chat response", true)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		Provider:     a.provider,
		FinishReason: string(choice.FinishReason),
		Usage: UsageInfo{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// StreamComplete starts a streaming chat completion call.
func (a *OpenAIAdapter) StreamComplete(ctx context.Context, req *CompletionRequest) (Stream, error) {
	client := a.chatClient()
	if client == nil {
		return nil, a.errNotConfigured()
	}

	stream, err := client.CreateChatCompletionStream(ctx, a.buildRequest(req, true))
	if err != nil {
		return nil, a.wrapError(err)
	}
	return &openaiStream{inner: stream, provider: a.provider}, nil
}

func (a *OpenAIAdapter) buildRequest(req *CompletionRequest, stream bool) openai.ChatCompletionRequest {
	model, temperature, topP, maxTokens := a.fillRequestDefaults(req, openaiDefaultModel)

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(temperature),
		TopP:        float32(topP),
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
	if stream {
		// Ask for a final usage frame so streamed calls are billed visibly.
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// wrapError maps go-openai errors onto the provider taxonomy.
func (a *OpenAIAdapter) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := ClassifyHTTPError(a.provider, apiErr.HTTPStatusCode, nil, apiErr.Message)
		pe.Err = err
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := ClassifyHTTPError(a.provider, reqErr.HTTPStatusCode, nil, reqErr.Error())
		pe.Err = err
		return pe
	}
	return a.timeoutOr(err, "request failed")
}

// SupportedModels lists the chat models this adapter advertises.
func (a *OpenAIAdapter) SupportedModels() []string {
	out := make([]string, len(openaiModels))
	copy(out, openaiModels)
	return out
}

// DefaultModel returns the model used when a request names none.
func (a *OpenAIAdapter) DefaultModel() string {
	if cfg := a.config(); cfg.Model != "" {
		return cfg.Model
	}
	return openaiDefaultModel
}

// SupportsStreaming reports that chat completions stream.
func (a *OpenAIAdapter) SupportsStreaming() bool { return true }

// MaxContextForModel returns the model's context window in tokens.
func (a *OpenAIAdapter) MaxContextForModel(model string) int {
	return termctx.ContextWindowFor(model)
}

// TestConnection lists models to verify endpoint and credentials.
func (a *OpenAIAdapter) TestConnection(ctx context.Context) error {
	client := a.chatClient()
	if client == nil {
		return a.errNotConfigured()
	}
	if _, err := client.ListModels(ctx); err != nil {
		return a.wrapError(err)
	}
	return nil
}

// openaiStream adapts go-openai's stream to the Stream interface.
type openaiStream struct {
	inner    *openai.ChatCompletionStream
	provider Provider
	usage    *UsageInfo
}

// Recv returns the next chunk, translating the final usage frame into a
// terminal chunk and provider errors into the taxonomy.
func (s *openaiStream) Recv() (StreamingChunk, error) {
	for {
		resp, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			return StreamingChunk{}, io.EOF
		}
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				pe := ClassifyHTTPError(s.provider, apiErr.HTTPStatusCode, nil, apiErr.Message)
				pe.Err = err
				return StreamingChunk{}, pe
			}
			pe := NewProviderError(s.provider, "stream read failed: "+err.Error(), true)
			pe.Err = err
			return StreamingChunk{}, pe
		}

		if resp.Usage != nil {
			s.usage = &UsageInfo{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			// Usage-only frame; surface it when it is the last word.
			if s.usage != nil {
				return StreamingChunk{Usage: s.usage}, nil
			}
			continue
		}

		choice := resp.Choices[0]
		chunk := StreamingChunk{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		if s.usage != nil {
			chunk.Usage = s.usage
		}
		return chunk, nil
	}
}

func (s *openaiStream) Close() error { return s.inner.Close() }

var _ Adapter = (*OpenAIAdapter)(nil)
var _ Stream = (*openaiStream)(nil)
