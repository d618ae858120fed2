// Package diff renders unified diffs for plan previews.
package diff

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true)
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("green"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("red"))
)

// Unified produces a plain unified diff between old and new content.
// Returns "" when the contents are identical.
func Unified(path string, old, newer []byte) string {
	if string(old) == string(newer) {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(newer)),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return out
}

// FileHeader returns a terminal-width rule naming the file a diff covers.
func FileHeader(path string) string {
	width := terminalWidth()
	label := " " + path + " "
	if len(label) >= width {
		return hunkStyle.Render(label)
	}
	rule := strings.Repeat("─", width-len(label))
	return hunkStyle.Render(label+rule) + "\n"
}

// terminalWidth returns the terminal width, defaulting to 80 if unable to detect
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// Render colorizes a unified diff for terminal display.
func Render(unified string) string {
	if unified == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.SplitAfter(unified, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			b.WriteString(headerStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "@@"):
			b.WriteString(hunkStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "+"):
			b.WriteString(addedStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "-"):
			b.WriteString(removedStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}
