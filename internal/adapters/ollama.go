package adapters

import (
	"strings"

	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

const ollamaDefaultEndpoint = "http://localhost:11434/v1"

var ollamaModels = []string{
	"llama3.1",
	"llama3.2",
	"mistral",
	"mixtral",
	"qwen2.5",
	"gemma2",
}

// OllamaAdapter serves a local Ollama runtime. Ollama exposes an
// OpenAI-compatible chat completions endpoint, so this adapter embeds the
// OpenAI adapter and only changes identity, endpoint default, and the
// no-key validation rules.
type OllamaAdapter struct {
	*OpenAIAdapter
}

// NewOllamaAdapter creates an unconfigured Ollama adapter.
func NewOllamaAdapter() *OllamaAdapter {
	a := &OllamaAdapter{OpenAIAdapter: NewOpenAIAdapter()}
	a.baseAdapter.provider = ProviderOllama
	return a
}

// ValidateConfig checks a configuration without committing it.
// Ollama is a local runtime; no API key is required.
func (a *OllamaAdapter) ValidateConfig(cfg Config) error {
	return a.validateConfig(cfg, false)
}

// Configure validates and commits a configuration. An empty endpoint falls
// back to the local Ollama default; go-openai requires a non-empty token, so
// a placeholder is substituted when no key is given.
func (a *OllamaAdapter) Configure(cfg Config) error {
	if err := a.ValidateConfig(cfg); err != nil {
		return err
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = ollamaDefaultEndpoint
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = "ollama"
	}
	a.configureClient(cfg)
	return nil
}

// SupportedModels lists commonly pulled local models. Anything the runtime
// has pulled works when named explicitly.
func (a *OllamaAdapter) SupportedModels() []string {
	out := make([]string, len(ollamaModels))
	copy(out, ollamaModels)
	return out
}

// DefaultModel returns the model used when a request names none.
func (a *OllamaAdapter) DefaultModel() string {
	if cfg := a.config(); cfg.Model != "" {
		return cfg.Model
	}
	return "llama3.1"
}

// MaxContextForModel returns the model's context window in tokens.
func (a *OllamaAdapter) MaxContextForModel(model string) int {
	return termctx.ContextWindowFor(model)
}

var _ Adapter = (*OllamaAdapter)(nil)
