package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultCatalogEntriesAreWellFormed(t *testing.T) {
	require.NotEmpty(t, DefaultCatalog)

	seen := make(map[string]bool)
	for _, entry := range DefaultCatalog {
		require.NotEmpty(t, entry.Name)
		assert.False(t, seen[entry.Name], "duplicate provider %s", entry.Name)
		seen[entry.Name] = true

		assert.NotEmpty(t, entry.DisplayName, entry.Name)
		require.NotEmpty(t, entry.Models, entry.Name)
		assert.Contains(t, entry.Models, entry.DefaultModel,
			"%s default model must be listed", entry.Name)
	}
}

func TestCatalogParsesProvidersFile(t *testing.T) {
	var cfg catalogFile
	raw := `
providers:
  anthropic:
    display_name: Anthropic
    env_var: ANTHROPIC_API_KEY
    default_model: claude-3-5-haiku-20241022
    models:
      - claude-3-5-haiku-20241022
      - claude-sonnet-4-20250514
`
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	p, ok := cfg.Providers["anthropic"]
	require.True(t, ok)
	assert.Equal(t, "Anthropic", p.DisplayName)
	assert.Equal(t, "ANTHROPIC_API_KEY", p.EnvVar)
	assert.Equal(t, "claude-3-5-haiku-20241022", p.DefaultModel)
	assert.Len(t, p.Models, 2)
}
