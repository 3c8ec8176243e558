package tui

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// PROVIDER CATALOG
// =============================================================================

// CatalogEntry describes one supported provider for setup hints: which
// environment variable carries its credential and which models it serves.
type CatalogEntry struct {
	Name         string
	DisplayName  string
	EnvVar       string
	Models       []string
	DefaultModel string
}

// catalogFile represents the providers.yaml override format.
type catalogFile struct {
	Providers map[string]struct {
		DisplayName  string   `yaml:"display_name"`
		EnvVar       string   `yaml:"env_var"`
		DefaultModel string   `yaml:"default_model"`
		Models       []string `yaml:"models"`
	} `yaml:"providers"`
}

// DefaultCatalog is the fallback if providers.yaml cannot be loaded.
var DefaultCatalog = []CatalogEntry{
	{
		Name:         "openai",
		DisplayName:  "OpenAI",
		EnvVar:       "OPENAI_API_KEY",
		Models:       []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1", "o3-mini"},
		DefaultModel: "gpt-4o-mini",
	},
	{
		Name:         "anthropic",
		DisplayName:  "Anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		Models:       []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022", "claude-opus-4-20250514"},
		DefaultModel: "claude-sonnet-4-20250514",
	},
	{
		Name:         "ollama",
		DisplayName:  "Ollama (local)",
		EnvVar:       "",
		Models:       []string{"llama3.1", "mistral", "qwen2.5"},
		DefaultModel: "llama3.1",
	},
	{
		Name:         "bedrock",
		DisplayName:  "AWS Bedrock",
		EnvVar:       "AWS_ACCESS_KEY_ID",
		Models:       []string{"anthropic.claude-3-5-sonnet-20241022-v2:0", "anthropic.claude-3-haiku-20240307-v1:0"},
		DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
	},
}

// SupportedProviders is loaded from providers.yaml or falls back to defaults.
var SupportedProviders = loadCatalog()

// loadCatalog loads provider definitions from providers.yaml.
func loadCatalog() []CatalogEntry {
	tryLoad := func(path string) []CatalogEntry {
		data, err := os.ReadFile(path) // #nosec G304 -- trusted config paths
		if err != nil {
			return nil
		}

		var cfg catalogFile
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil
		}

		// Process in the order the pipeline registers them
		entries := []CatalogEntry{}
		for _, name := range []string{"openai", "anthropic", "ollama", "bedrock"} {
			if p, ok := cfg.Providers[name]; ok {
				entries = append(entries, CatalogEntry{
					Name:         name,
					DisplayName:  p.DisplayName,
					EnvVar:       p.EnvVar,
					Models:       p.Models,
					DefaultModel: p.DefaultModel,
				})
			}
		}
		return entries
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".config", "terminal-gateway", "providers.yaml")
		if entries := tryLoad(userPath); len(entries) > 0 {
			return entries
		}
	}

	if entries := tryLoad("configs/providers.yaml"); len(entries) > 0 {
		return entries
	}

	// Fallback to defaults
	return DefaultCatalog
}
