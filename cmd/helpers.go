package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pairadmin/terminal-gateway/internal/config"
)

// loadEnvFiles loads .env files so ${VAR} references in the config resolve.
// Variables already set in the environment always win.
func loadEnvFiles() {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		_ = godotenv.Load(filepath.Join(home, ".config", "terminal-gateway", ".env"))
	}
}

// setupLogging configures the global zerolog logger. debug forces the debug
// level regardless of the configured one.
func setupLogging(cfg config.LoggingConfig, debug bool, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// loadConfig resolves the config path (flag value, then the conventional
// location) and loads it. A missing file yields the defaults so commands
// work without any setup.
func loadConfig(configFlag string) (*config.Config, error) {
	path := configFlag
	if path == "" {
		path = config.DefaultConfigPath()
		if path == "" {
			return config.Default(), nil
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// Print helpers for command chrome; single-line results go through tui.
func printHeader(title string) {
	fmt.Printf("\033[1m\033[0;36m========================================\033[0m\n")
	fmt.Printf("\033[1m\033[0;36m       %s\033[0m\n", title)
	fmt.Printf("\033[1m\033[0;36m========================================\033[0m\n")
	fmt.Println()
}

func printStep(msg string) {
	fmt.Printf("\033[0;36m>>>\033[0m %s\n", msg)
}
