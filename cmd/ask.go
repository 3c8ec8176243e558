package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/pairadmin/terminal-gateway/internal/adapters"
	"github.com/pairadmin/terminal-gateway/internal/gateway"
	"github.com/pairadmin/terminal-gateway/internal/tui"
)

// runAskCommand sends one completion grounded in piped terminal output.
// Everything read from stdin becomes buffered context; the prompt is the
// remaining command line arguments joined.
func runAskCommand(args []string) {
	var (
		configFlag   string
		providerFlag string
		modelFlag    string
		maxTokens    int
		streamFlag   bool
		noContext    bool
		debugFlag    bool
		promptParts  []string
	)

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printAskHelp()
			return
		case "-c", "--config":
			if i+1 < len(args) {
				configFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
		case "-p", "--provider":
			if i+1 < len(args) {
				providerFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --provider requires a value")
				os.Exit(1)
			}
		case "-m", "--model":
			if i+1 < len(args) {
				modelFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --model requires a value")
				os.Exit(1)
			}
		case "-t", "--max-tokens":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil || n <= 0 {
					fmt.Fprintf(os.Stderr, "Error: invalid --max-tokens '%s'\n", args[i+1])
					os.Exit(1)
				}
				maxTokens = n
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --max-tokens requires a value")
				os.Exit(1)
			}
		case "--stream":
			streamFlag = true
			i++
		case "--no-context":
			noContext = true
			i++
		case "-d", "--debug":
			debugFlag = true
			i++
		default:
			if strings.HasPrefix(args[i], "-") {
				fmt.Fprintf(os.Stderr, "Error: unknown option: %s\n", args[i])
				os.Exit(1)
			}
			promptParts = append(promptParts, args[i])
			i++
		}
	}

	prompt := strings.TrimSpace(strings.Join(promptParts, " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "Error: no prompt given")
		fmt.Fprintln(os.Stderr, "Usage: terminal-gateway ask [OPTIONS] PROMPT")
		os.Exit(1)
	}

	loadEnvFiles()

	cfg, err := loadConfig(configFlag)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}

	setupLogging(cfg.Logging, debugFlag, os.Stderr)

	engine, gw, _, err := buildPipeline(cfg)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}

	if providerFlag != "" {
		if err := gw.SetActiveProvider(adapters.ProviderFromString(providerFlag)); err != nil {
			tui.PrintError(err.Error())
			os.Exit(1)
		}
	}
	if _, ok := gw.ActiveProvider(); !ok {
		tui.PrintError("no active provider; configure one in the config file or pass --provider")
		os.Exit(1)
	}

	// Piped stdin is the terminal context; the bounded buffer keeps the tail.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			engine.AddLine(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			tui.PrintError("reading stdin: " + err.Error())
			os.Exit(1)
		}
	}

	req := &adapters.CompletionRequest{
		Model:       modelFlag,
		Messages:    []adapters.Message{{Role: adapters.RoleUser, Content: prompt}},
		MaxTokens:   maxTokens,
		SkipContext: noContext,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if streamFlag {
		askStreaming(ctx, gw, req)
		return
	}

	resp, err := gw.Send(ctx, req)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	fmt.Println(resp.Content)
	printUsageSummary(resp.Provider.String(), resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
}

// askStreaming prints chunks as they arrive.
func askStreaming(ctx context.Context, gw *gateway.Gateway, req *adapters.CompletionRequest) {
	active, _ := gw.ActiveProvider()

	stream, err := gw.SendStreaming(ctx, req)
	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
	defer func() { _ = stream.Close() }()

	var usage *adapters.UsageInfo
	wrote := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if wrote {
				fmt.Println()
			}
			tui.PrintError(err.Error())
			os.Exit(1)
		}
		if chunk.Content != "" {
			fmt.Print(chunk.Content)
			wrote = true
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	if wrote {
		fmt.Println()
	}
	if usage != nil {
		printUsageSummary(active.String(), req.Model, usage.InputTokens, usage.OutputTokens)
	}
}

// printUsageSummary writes a dim usage line to stderr when it is a terminal,
// keeping piped stdout clean.
func printUsageSummary(provider, model string, inputTokens, outputTokens int) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return
	}
	label := provider
	if model != "" {
		label += "/" + model
	}
	fmt.Fprintf(os.Stderr, "%s[%s: %d in / %d out tokens]%s\n",
		tui.ColorDim, label, inputTokens, outputTokens, tui.ColorReset)
}

func printAskHelp() {
	fmt.Println("Ask one question grounded in terminal output")
	fmt.Println()
	fmt.Println("Usage: terminal-gateway ask [OPTIONS] PROMPT")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE      Config file (default: ~/.config/terminal-gateway/config.yaml)")
	fmt.Println("  -p, --provider NAME    Override the active provider")
	fmt.Println("  -m, --model NAME       Override the model")
	fmt.Println("  -t, --max-tokens N     Completion token budget")
	fmt.Println("  --stream               Stream the response as it is generated")
	fmt.Println("  --no-context           Skip terminal context injection")
	fmt.Println("  -d, --debug            Enable debug logging")
	fmt.Println("  -h, --help             Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  make 2>&1 | terminal-gateway ask \"why did the build fail?\"")
	fmt.Println("  terminal-gateway ask --stream \"summarize the errors\" < test.log")
	fmt.Println("  terminal-gateway ask -p ollama -m llama3.1 \"what does this panic mean?\"")
}
