// Package ui provides terminal output helpers for bkup: colors, status
// symbols and rendering of plans and reports.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Color function types for styled output.
var (
	// Success is used for completed actions (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error is used for failures (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning is used for warnings and newer-file copies (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for directory creation and headings (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
	// Bold is used for emphasis.
	Bold = color.New(color.Bold).SprintFunc()
	// Dim is used for secondary information (faint).
	Dim = color.New(color.Faint).SprintFunc()
	// Header is used for section headers (bold cyan).
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
	SymbolPending = "○"
)

// Color modes accepted by Configure.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

func status(paint func(...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string {
	return status(Success, SymbolSuccess, msg)
}

// StatusError returns a red X with optional message.
func StatusError(msg string) string {
	return status(Error, SymbolError, msg)
}

// StatusWarning returns a yellow warning with optional message.
func StatusWarning(msg string) string {
	return status(Warning, SymbolWarning, msg)
}

// StatusSkipped returns a dimmed skip symbol with optional message.
func StatusSkipped(msg string) string {
	return status(Dim, SymbolSkipped, msg)
}

// StatusPending returns a pending circle with optional message.
func StatusPending(msg string) string {
	return status(Info, SymbolPending, msg)
}

// Configure applies a color mode. "auto" enables colors only when stdout is a
// terminal and NO_COLOR is unset; noColor forces colors off.
func Configure(mode string, noColor bool) error {
	if noColor {
		DisableColors()
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ColorAuto:
		if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
			DisableColors()
		} else {
			EnableColors()
		}
	case ColorAlways:
		EnableColors()
	case ColorNever:
		DisableColors()
	default:
		return fmt.Errorf("invalid color mode %q: want auto, always or never", mode)
	}
	return nil
}

// DisableColors disables all color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}
