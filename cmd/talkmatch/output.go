package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleStep    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleBold    = lipgloss.NewStyle().Bold(true)
)

func colorize(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(styleSuccess, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(styleError, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(styleWarning, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(styleBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(styleStep, "→ "+msg))
}
