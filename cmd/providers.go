package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pairadmin/terminal-gateway/internal/tui"
	"github.com/pairadmin/terminal-gateway/internal/utils"
)

// runProvidersCommand lists the supported providers and their configuration
// state: model, credential presence, and which one is active.
func runProvidersCommand(args []string) {
	var configFlag string

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printProvidersHelp()
			return
		case "-c", "--config":
			if i+1 < len(args) {
				configFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
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

	printHeader("Providers")

	for _, entry := range tui.SupportedProviders {
		pcfg, configured := cfg.Providers[entry.Name]
		active := configured && cfg.Active == entry.Name

		marker := " "
		if active {
			marker = fmt.Sprintf("%s*%s", tui.ColorGreen, tui.ColorReset)
		}
		fmt.Printf("%s %s%s%s (%s)\n", marker, tui.ColorBold, entry.DisplayName, tui.ColorReset, entry.Name)

		if !configured {
			fmt.Printf("    %snot configured%s\n", tui.ColorDim, tui.ColorReset)
			if entry.EnvVar != "" {
				hint := fmt.Sprintf("set %s or add api_key under providers.%s", entry.EnvVar, entry.Name)
				if os.Getenv(entry.EnvVar) != "" {
					hint = fmt.Sprintf("%s is set; add providers.%s to the config to enable", entry.EnvVar, entry.Name)
				}
				fmt.Printf("    %s%s%s\n", tui.ColorDim, hint, tui.ColorReset)
			}
			fmt.Println()
			continue
		}

		model := pcfg.Model
		if model == "" {
			model = entry.DefaultModel + " (default)"
		}
		fmt.Printf("    Model:    %s\n", model)

		if pcfg.APIKey != "" {
			fmt.Printf("    API key:  %s\n", utils.MaskKey(pcfg.APIKey))
		} else if entry.EnvVar != "" && os.Getenv(entry.EnvVar) != "" {
			fmt.Printf("    API key:  from %s\n", entry.EnvVar)
		}
		if pcfg.Endpoint != "" {
			fmt.Printf("    Endpoint: %s\n", pcfg.Endpoint)
		}
		if pcfg.Region != "" {
			fmt.Printf("    Region:   %s\n", pcfg.Region)
		}
		if len(entry.Models) > 0 {
			fmt.Printf("    %sKnown models: %s%s\n", tui.ColorDim, strings.Join(entry.Models, ", "), tui.ColorReset)
		}
		fmt.Println()
	}

	if cfg.Active == "" {
		tui.PrintWarning("No active provider set (active_provider in the config file)")
	}
}

func printProvidersHelp() {
	fmt.Println("List supported providers and their configuration state")
	fmt.Println()
	fmt.Println("Usage: terminal-gateway providers [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE   Config file (default: ~/.config/terminal-gateway/config.yaml)")
	fmt.Println("  -h, --help          Show this help")
}
