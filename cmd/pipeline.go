package main

import (
	"fmt"

	"github.com/pairadmin/terminal-gateway/internal/adapters"
	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/events"
	"github.com/pairadmin/terminal-gateway/internal/gateway"
	"github.com/pairadmin/terminal-gateway/internal/termctx"
)

// buildPipeline assembles the bus, context engine, and gateway from the
// configuration. All known adapters are registered; providers listed in the
// config are configured, and the active one is selected.
func buildPipeline(cfg *config.Config) (*termctx.Engine, *gateway.Gateway, *events.Bus, error) {
	bus := events.NewBus()

	var estimator termctx.Estimator = termctx.NewHeuristicEstimator(cfg.Estimator.CharsPerToken)
	if cfg.Estimator.Kind == "tiktoken" {
		estimator = termctx.NewTiktokenEstimator(cfg.Estimator.Encoding, estimator)
	}

	engine := termctx.NewEngine(
		termctx.WithCapacity(cfg.Buffer.Capacity),
		termctx.WithMinContextLines(cfg.Buffer.MinLines),
		termctx.WithEstimator(estimator),
		termctx.WithCache(termctx.NewTTLCache(cfg.Cache.TTL.Std(), cfg.Cache.MaxEntries)),
		termctx.WithPolicy(policyFromConfig(cfg.Sizing)),
		termctx.WithEvents(bus),
	)
	engine.SetCacheEnabled(cfg.CacheEnabled())

	gw := gateway.New(
		gateway.WithContextSource(engine),
		gateway.WithEvents(bus),
	)

	for _, adapter := range []adapters.Adapter{
		adapters.NewOpenAIAdapter(),
		adapters.NewAnthropicAdapter(),
		adapters.NewOllamaAdapter(),
		adapters.NewBedrockAdapter(),
	} {
		if err := gw.RegisterProvider(adapter); err != nil {
			return nil, nil, nil, err
		}
	}

	for name, p := range cfg.Providers {
		id := adapters.ProviderFromString(name)
		if id == adapters.ProviderUnknown {
			return nil, nil, nil, fmt.Errorf("unknown provider %q in config", name)
		}
		if err := gw.ConfigureProvider(adapterConfig(id, p)); err != nil {
			return nil, nil, nil, fmt.Errorf("configuring provider %s: %w", name, err)
		}
	}

	// A single configured provider is implicitly active.
	active := cfg.Active
	if active == "" && len(cfg.Providers) == 1 {
		for name := range cfg.Providers {
			active = name
		}
	}
	if active != "" {
		if err := gw.SetActiveProvider(adapters.ProviderFromString(active)); err != nil {
			return nil, nil, nil, err
		}
		engine.SetModel(cfg.Providers[active].Model, 0)
	}

	return engine, gw, bus, nil
}

// adapterConfig converts one config file provider entry to adapter settings.
func adapterConfig(id adapters.Provider, p config.ProviderConfig) adapters.Config {
	return adapters.Config{
		Provider:    id,
		Model:       p.Model,
		APIKey:      p.APIKey,
		Endpoint:    p.Endpoint,
		Region:      p.Region,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		MaxTokens:   p.MaxTokens,
		MaxRetries:  p.MaxRetries,
		Timeout:     p.Timeout.Std(),
	}
}

// policyFromConfig converts the sizing section to an engine policy.
func policyFromConfig(s config.SizingConfig) termctx.Policy {
	return termctx.Policy{
		Mode:       termctx.SizingModeFromString(s.Mode),
		FixedSize:  s.FixedSize,
		Percentage: s.Percentage,
		MinLines:   s.MinLines,
		MaxLines:   s.MaxLines,
		MinTokens:  s.MinTokens,
		MaxTokens:  s.MaxTokens,
	}
}
