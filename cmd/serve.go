package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/config"
	"github.com/pairadmin/terminal-gateway/internal/monitoring"
	"github.com/pairadmin/terminal-gateway/internal/termfeed"
	"github.com/pairadmin/terminal-gateway/internal/tui"
)

// shutdownTimeout bounds the graceful drain on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

// runServeCommand runs the feed daemon: WebSocket terminal ingestion plus
// the stats and health endpoints, on top of the completion pipeline.
func runServeCommand(args []string) {
	var (
		configFlag string
		listenFlag string
		debugFlag  bool
	)

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printServeHelp()
			return
		case "-c", "--config":
			if i+1 < len(args) {
				configFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
		case "--listen":
			if i+1 < len(args) {
				listenFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --listen requires a value")
				os.Exit(1)
			}
		case "-d", "--debug":
			debugFlag = true
			i++
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown option: %s\n", args[i])
			os.Exit(1)
		}
	}

	loadEnvFiles()

	cfg, err := loadConfig(configFlag)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	if listenFlag != "" {
		cfg.Feed.Listen = listenFlag
	}

	setupLogging(cfg.Logging, debugFlag, os.Stderr)

	printStep("Building completion pipeline...")
	engine, gw, bus, err := buildPipeline(cfg)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}

	metrics := monitoring.NewMetricsCollector()
	metrics.Observe(bus)

	var feedOpts []termfeed.Option
	if cfg.MonitoringEnabled() {
		stateDir, err := config.StateDir()
		if err != nil {
			tui.PrintError(err.Error())
			os.Exit(1)
		}

		telemetryPath := cfg.Monitoring.TelemetryPath
		if telemetryPath == "" {
			telemetryPath = filepath.Join(stateDir, config.DefaultTelemetryFile)
		}
		tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
			Enabled: true,
			LogPath: telemetryPath,
		})
		if err != nil {
			tui.PrintError("telemetry setup failed: " + err.Error())
			os.Exit(1)
		}
		tracker.Observe(bus)
		defer func() { _ = tracker.Close() }()

		usagePath := cfg.Monitoring.UsageDBPath
		if usagePath == "" {
			usagePath = filepath.Join(stateDir, config.DefaultUsageDBFile)
		}
		store, err := monitoring.NewUsageStore(usagePath)
		if err != nil {
			tui.PrintError("usage store setup failed: " + err.Error())
			os.Exit(1)
		}
		store.Observe(bus)
		defer func() { _ = store.Close() }()
		feedOpts = append(feedOpts, termfeed.WithUsageStore(store))
	}

	feed := termfeed.NewServer(cfg.Feed.Listen, engine, gw, metrics, bus, feedOpts...)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- feed.Start() }()

	tui.PrintSuccess("Terminal gateway serving on " + cfg.Feed.Listen)
	tui.PrintInfo("Feed:  ws://" + cfg.Feed.Listen + "/feed")
	tui.PrintInfo("Stats: http://" + cfg.Feed.Listen + "/stats")
	if active, ok := gw.ActiveProvider(); ok {
		tui.PrintInfo("Active provider: " + active.String())
	} else {
		tui.PrintWarning("No active provider configured; completions will fail until one is set")
	}

	status := tui.NewStatusLine(engine)
	if active, ok := gw.ActiveProvider(); ok {
		status.SetProvider(active.String(), cfg.Providers[active.String()].Model)
	}
	status.EnableFooter(true)
	status.StartAutoRefresh(tui.FooterRefreshInterval)
	defer status.StopAutoRefresh()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErrCh:
		if err != nil {
			tui.PrintError("feed server failed: " + err.Error())
			os.Exit(1)
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := feed.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown did not complete cleanly")
		}
	}
}

func printServeHelp() {
	fmt.Println("Run the terminal feed daemon")
	fmt.Println()
	fmt.Println("Usage: terminal-gateway serve [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE    Config file (default: ~/.config/terminal-gateway/config.yaml)")
	fmt.Println("  --listen ADDR        Listen address (default: 127.0.0.1:18080)")
	fmt.Println("  -d, --debug          Enable debug logging")
	fmt.Println("  -h, --help           Show this help")
	fmt.Println()
	fmt.Println("The daemon accepts terminal lines over WebSocket at /feed, keeps them in")
	fmt.Println("a bounded buffer, and grounds every completion request in the most recent")
	fmt.Println("output. Operational metrics are served at /stats (loopback only).")
}
