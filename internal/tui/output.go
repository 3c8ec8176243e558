// Package tui renders CLI output: colored status markers and the session
// status line. Colors are plain ANSI; the persistent footer is the only
// surface gated on stdout being a terminal.
package tui

import (
	"fmt"
	"os"
)

// ANSI escape sequences shared by every rendering helper.
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintInfo prints an informational line.
func PrintInfo(msg string) {
	fmt.Printf("%s[i]%s %s\n", ColorCyan, ColorReset, msg)
}

// PrintSuccess prints a success line.
func PrintSuccess(msg string) {
	fmt.Printf("%s[OK]%s %s\n", ColorGreen, ColorReset, msg)
}

// PrintWarning prints a warning line.
func PrintWarning(msg string) {
	fmt.Printf("%s[!]%s %s\n", ColorYellow, ColorReset, msg)
}

// PrintError prints an error line to stderr.
func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "%s[x]%s %s\n", ColorRed, ColorReset, msg)
}
