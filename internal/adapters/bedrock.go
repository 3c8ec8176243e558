package adapters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/tidwall/gjson"

	"github.com/pairadmin/terminal-gateway/external"
	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
	"github.com/pairadmin/terminal-gateway/internal/utils"
)

const (
	// bedrockAnthropicVersion is the schema marker InvokeModel bodies carry
	// instead of the anthropic-version header.
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockDefaultModel     = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	bedrockSigningService   = "bedrock"
)

var bedrockModels = []string{
	"anthropic.claude-3-5-sonnet-20241022-v2:0",
	"anthropic.claude-3-5-haiku-20241022-v1:0",
	"anthropic.claude-sonnet-4-20250514-v1:0",
	"anthropic.claude-opus-4-20250514-v1:0",
}

// BedrockAdapter invokes Anthropic models hosted on AWS Bedrock. Requests go
// to the bedrock-runtime REST API signed with SigV4; credentials come from
// the standard AWS chain (env, shared config, instance role), never from
// Config.APIKey. InvokeModel is single-shot only, so SupportsStreaming
// reports false and the gateway refuses SendStreaming for this provider.
type BedrockAdapter struct {
	baseAdapter

	creds aws.CredentialsProvider // guarded by baseAdapter.mu
	apply signRequestFunc
}

// signRequestFunc signs one outgoing request. Swappable for wire tests.
type signRequestFunc func(ctx context.Context, creds aws.Credentials, req *http.Request, payloadHash, service, region string, at time.Time) error

// NewBedrockAdapter creates an unconfigured Bedrock adapter.
func NewBedrockAdapter() *BedrockAdapter {
	a := &BedrockAdapter{}
	a.baseAdapter = newBaseAdapter(ProviderBedrock)
	signer := v4.NewSigner()
	a.apply = func(ctx context.Context, creds aws.Credentials, req *http.Request, payloadHash, service, region string, at time.Time) error {
		return signer.SignHTTP(ctx, creds, req, payloadHash, service, region, at)
	}
	return a
}

// ValidateConfig checks a configuration without committing it.
func (a *BedrockAdapter) ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Region) == "" {
		return &ConfigurationError{Field: "region", Reason: "required for bedrock"}
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

// Configure validates and commits a configuration, resolving the AWS
// credential chain for the configured region.
func (a *BedrockAdapter) Configure(cfg Config) error {
	if err := a.ValidateConfig(cfg); err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return NewProviderError(a.provider, "failed to load AWS configuration: "+err.Error(), false)
	}

	a.commit(cfg)
	a.mu.Lock()
	a.creds = awsCfg.Credentials
	a.mu.Unlock()
	return nil
}

func (a *BedrockAdapter) credentials(ctx context.Context) (aws.Credentials, error) {
	a.mu.RLock()
	provider := a.creds
	a.mu.RUnlock()
	if provider == nil {
		return aws.Credentials{}, a.errNotConfigured()
	}
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, NewAuthError(a.provider, "failed to resolve AWS credentials: "+err.Error())
	}
	return creds, nil
}

// Complete executes one InvokeModel call.
func (a *BedrockAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if !a.IsConfigured() {
		return nil, a.errNotConfigured()
	}

	model, body, err := a.buildBody(req)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.invoke(ctx, model, body)
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

	return &CompletionResponse{
		Content:      wire.Text(),
		Model:        model,
		Provider:     a.provider,
		FinishReason: wire.StopReason,
		Usage: UsageInfo{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
			TotalTokens:  wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
	}, nil
}

// StreamComplete is unsupported; InvokeModel with response streaming uses a
// binary event-stream framing this adapter does not speak. The gateway gates
// on SupportsStreaming before calling.
func (a *BedrockAdapter) StreamComplete(context.Context, *CompletionRequest) (Stream, error) {
	return nil, NewProviderError(a.provider, "streaming is not supported for bedrock", false)
}

// buildBody assembles the InvokeModel body: the Anthropic messages schema
// with anthropic_version set and the model moved into the URL.
func (a *BedrockAdapter) buildBody(req *CompletionRequest) (model string, body []byte, err error) {
	model, temperature, topP, maxTokens := a.fillRequestDefaults(req, bedrockDefaultModel)

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
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           strings.Join(systemParts, "\n\n"),
		Messages:         messages,
		Temperature:      temperature,
		TopP:             topP,
	}
	body, err = utils.MarshalNoEscape(wire)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return model, body, nil
}

// invoke signs and sends one InvokeModel request.
func (a *BedrockAdapter) invoke(ctx context.Context, model string, body []byte) (*http.Response, error) {
	cfg := a.config()
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cfg.Region)
	}
	target := strings.TrimRight(endpoint, "/") + "/model/" + url.PathEscape(model) + "/invoke"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if err := a.sign(ctx, httpReq, body, bedrockSigningService); err != nil {
		return nil, err
	}

	httpResp, err := a.httpClient().Do(httpReq)
	if err != nil {
		return nil, a.timeoutOr(err, "request failed")
	}
	return httpResp, nil
}

// sign attaches SigV4 headers for the given service.
func (a *BedrockAdapter) sign(ctx context.Context, req *http.Request, body []byte, service string) error {
	creds, err := a.credentials(ctx)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	if err := a.apply(ctx, creds, req, payloadHash, service, a.config().Region, time.Now()); err != nil {
		return NewProviderError(a.provider, "failed to sign request: "+err.Error(), false)
	}
	return nil
}

// classifyResponse reads an error body and maps it onto the taxonomy.
// Bedrock reports errors as {"message": "..."}.
func (a *BedrockAdapter) classifyResponse(resp *http.Response) *ProviderError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, int64(config.MaxErrorBodyLogLen)*8))
	message := gjson.GetBytes(raw, "message").String()
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return ClassifyHTTPError(a.provider, resp.StatusCode, resp.Header, message)
}

// SupportedModels lists the Anthropic model ids this adapter advertises.
func (a *BedrockAdapter) SupportedModels() []string {
	out := make([]string, len(bedrockModels))
	copy(out, bedrockModels)
	return out
}

// DefaultModel returns the model used when a request names none.
func (a *BedrockAdapter) DefaultModel() string {
	if cfg := a.config(); cfg.Model != "" {
		return cfg.Model
	}
	return bedrockDefaultModel
}

// SupportsStreaming reports that InvokeModel does not stream here.
func (a *BedrockAdapter) SupportsStreaming() bool { return false }

// MaxContextForModel returns the model's context window in tokens.
func (a *BedrockAdapter) MaxContextForModel(model string) int {
	return termctx.ContextWindowFor(model)
}

// TestConnection lists foundation models on the Bedrock control plane to
// verify region, credentials, and signing.
func (a *BedrockAdapter) TestConnection(ctx context.Context) error {
	if !a.IsConfigured() {
		return a.errNotConfigured()
	}
	cfg := a.config()
	target := fmt.Sprintf("https://bedrock.%s.amazonaws.com/foundation-models", cfg.Region)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to construct request: %w", err)
	}
	if err := a.sign(ctx, httpReq, nil, bedrockSigningService); err != nil {
		return err
	}

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

var _ Adapter = (*BedrockAdapter)(nil)
