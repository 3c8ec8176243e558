package termctx

import (
	"strings"

	"github.com/pairadmin/terminal-gateway/internal/config"
)

// contextWindows maps model name prefixes to maximum context sizes in
// tokens. Longest prefix wins, so specific entries can override families.
var contextWindows = map[string]int{
	"gpt-4o":                  128000,
	"gpt-4o-mini":             128000,
	"gpt-4-turbo":             128000,
	"gpt-4.1":                 1047576,
	"gpt-4":                   8192,
	"gpt-3.5-turbo":           16385,
	"o1":                      200000,
	"o3":                      200000,
	"claude-3":                200000,
	"claude-3-5":              200000,
	"claude-sonnet-4":         200000,
	"claude-opus-4":           200000,
	"claude-haiku-4":          200000,
	"anthropic.claude-3":      200000,
	"anthropic.claude-sonnet": 200000,
	"llama3":                  8192,
	"llama3.1":                131072,
	"mistral":                 32768,
	"mixtral":                 32768,
	"qwen2.5":                 32768,
	"gemma2":                  8192,
}

// autoTargets maps model name prefixes to the grounding budget Auto-mode
// sizing uses for them. Models with large windows get generous terminal
// context; small local models stay lean.
var autoTargets = map[string]int{
	"gpt-4o":           16000,
	"gpt-4.1":          16000,
	"gpt-4":            4000,
	"gpt-3.5-turbo":    4000,
	"o1":               16000,
	"o3":               16000,
	"claude":           16000,
	"anthropic.claude": 16000,
	"llama3.1":         8000,
	"llama3":           2000,
	"mistral":          4000,
	"mixtral":          4000,
	"qwen2.5":          4000,
	"gemma2":           2000,
}

// ContextWindowFor returns the maximum context size for a model, falling
// back to a conservative default when the model is unknown.
func ContextWindowFor(model string) int {
	if size, ok := lookupByPrefix(contextWindows, model); ok {
		return size
	}
	return config.DefaultModelContextWindow
}

// autoTargetFor returns the Auto-mode grounding budget for a model.
// Unknown models fall back to the model's full context window.
func autoTargetFor(model string, modelMax int) int {
	if target, ok := lookupByPrefix(autoTargets, model); ok {
		return target
	}
	return modelMax
}

// lookupByPrefix finds the longest table prefix matching the model name.
func lookupByPrefix(table map[string]int, model string) (int, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return 0, false
	}
	best, found := 0, false
	var bestLen int
	for prefix, v := range table {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen, found = v, len(prefix), true
		}
	}
	return best, found
}
