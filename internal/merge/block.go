package merge

import (
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Marked regions let multiple features share one file: each feature owns
// exactly the lines between its own begin/end sentinels and never touches
// anything else. Sentinels are unique per feature id.

func beginSentinel(feature string) string { return fmt.Sprintf(">>> bowerbird:%s >>>", feature) }
func endSentinel(feature string) string   { return fmt.Sprintf("<<< bowerbird:%s <<<", feature) }

// commentTokens returns the comment leader/trailer for a file type.
func commentTokens(p string) (prefix, suffix string) {
	switch path.Ext(p) {
	case ".go":
		return "// ", ""
	case ".md", ".html":
		return "<!-- ", " -->"
	default:
		// yaml, dotenv, Dockerfile, Makefile, shell
		return "# ", ""
	}
}

// renderBlock wraps body in the feature's sentinel lines.
func renderBlock(p, feature string, body []byte) []byte {
	prefix, suffix := commentTokens(p)
	var b bytes.Buffer
	b.WriteString(prefix + beginSentinel(feature) + suffix + "\n")
	b.Write(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(prefix + endSentinel(feature) + suffix + "\n")
	return b.Bytes()
}

// hasBlock reports whether existing already carries the feature's begin
// sentinel.
func hasBlock(existing []byte, feature string) bool {
	return bytes.Contains(existing, []byte(beginSentinel(feature)))
}

// upsertBlock replaces the feature's marked region in existing, or appends
// a new region when none is present. Content outside the region is never
// touched. Returns the updated file and whether anything changed.
func upsertBlock(existing []byte, p, feature string, body []byte) ([]byte, bool) {
	block := renderBlock(p, feature, body)

	begin := beginSentinel(feature)
	end := endSentinel(feature)

	lines := strings.SplitAfter(string(existing), "\n")
	beginIdx, endIdx := -1, -1
	for i, line := range lines {
		if beginIdx == -1 && strings.Contains(line, begin) {
			beginIdx = i
			continue
		}
		if beginIdx != -1 && strings.Contains(line, end) {
			endIdx = i
			break
		}
	}

	if beginIdx == -1 || endIdx == -1 {
		// No region yet: append, separated by a blank line.
		var b bytes.Buffer
		b.Write(existing)
		if len(existing) > 0 {
			if existing[len(existing)-1] != '\n' {
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
		}
		b.Write(block)
		return b.Bytes(), true
	}

	var b bytes.Buffer
	for _, line := range lines[:beginIdx] {
		b.WriteString(line)
	}
	b.Write(block)
	for _, line := range lines[endIdx+1:] {
		b.WriteString(line)
	}
	updated := b.Bytes()
	return updated, !bytes.Equal(updated, existing)
}
