// Package output provides styled terminal output for the Bowerbird CLI.
//
// All user-facing messages go through this package so styling stays
// consistent. Functions use lipgloss for styling but abstract away the
// details from callers.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	verboseMode bool

	// Writer is where messages are printed. Overridable for tests.
	Writer io.Writer = os.Stdout
)

// SetVerbose enables or disables verbose output for debugging.
// Called by the CLI when the --verbose flag is set.
func SetVerbose(v bool) {
	verboseMode = v
}

// Success prints a success message in bold green.
//
// Example:
//
//	output.Success("Installed auth-jwt")
func Success(msg string) {
	fmt.Fprintln(Writer, successStyle.Render("✓ "+msg))
}

// Error prints an error message in bold red.
func Error(msg string) {
	fmt.Fprintln(Writer, errorStyle.Render("✗ "+msg))
}

// Info prints an informational message in cyan.
func Info(msg string) {
	fmt.Fprintln(Writer, infoStyle.Render(msg))
}

// Step prints an indented step message in gray.
// Use this for per-file results or next steps.
func Step(msg string) {
	fmt.Fprintln(Writer, stepStyle.Render("  "+msg))
}

// Verbose prints a message only when verbose mode is enabled.
func Verbose(msg string) {
	if verboseMode {
		fmt.Fprintln(Writer, stepStyle.Render("› "+msg))
	}
}
