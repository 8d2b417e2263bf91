package main

import (
	"fmt"
	"os"
)

// ANSI escapes. Suppressed by --no-color or the NO_COLOR env var.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func colorEnabled() bool {
	if noColor {
		return false
	}
	return os.Getenv("NO_COLOR") == ""
}

func colorize(code, text string) string {
	if !colorEnabled() {
		return text
	}
	return code + text + ansiReset
}

// emit writes a prefixed status line to stderr so command output on
// stdout stays pipeable.
func emit(code, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(code, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { emit(ansiGreen, "✓ ", format, args...) }

func printError(format string, args ...any) { emit(ansiRed, "✗ ", format, args...) }

func printWarning(format string, args ...any) { emit(ansiYellow, "⚠ ", format, args...) }

func printStep(format string, args ...any) { emit(ansiCyan, "→ ", format, args...) }

// printStatus renders a "Label: value" line with the label in bold.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(ansiBold, label+":"), val)
}
