// Command terminal-gateway runs the terminal-context completion pipeline:
// a daemon that ingests terminal output and serves grounded LLM completions,
// plus one-shot CLI commands for asking questions and inspecting providers.
package main

import (
	"fmt"
	"os"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "serve":
		runServeCommand(args)
	case "ask":
		runAskCommand(args)
	case "providers":
		runProvidersCommand(args)
	case "version", "--version", "-v":
		fmt.Printf("terminal-gateway %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Terminal Gateway - context-aware LLM completions for your terminal")
	fmt.Println()
	fmt.Println("Usage: terminal-gateway COMMAND [OPTIONS]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Run the feed daemon (WebSocket ingestion + stats endpoints)")
	fmt.Println("  ask          Send one completion, grounding it in piped terminal output")
	fmt.Println("  providers    List supported providers and their configuration state")
	fmt.Println("  version      Print the version")
	fmt.Println("  help         Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  terminal-gateway serve -c ~/.config/terminal-gateway/config.yaml")
	fmt.Println("  make 2>&1 | terminal-gateway ask \"why did the build fail?\"")
	fmt.Println("  terminal-gateway ask --stream \"explain the last stack trace\" < build.log")
	fmt.Println("  terminal-gateway providers")
}
