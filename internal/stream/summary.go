package stream

import (
	"fmt"
	"strings"
)

const (
	maxSummaryLines     = 6
	maxSummaryLineChars = 200
)

// SummarizeToolOutput shortens tool output for display: at most six lines,
// each capped in length, followed by a count of what was left out.
// Blank output yields "".
func SummarizeToolOutput(output string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(output, "\r\n", "\n"))
	if normalized == "" {
		return ""
	}

	lines := strings.Split(normalized, "\n")
	shown := lines
	if len(shown) > maxSummaryLines {
		shown = shown[:maxSummaryLines]
	}

	truncatedLine := false
	var sb strings.Builder
	for i, line := range shown {
		if len(line) > maxSummaryLineChars {
			line = line[:maxSummaryLineChars] + "... (truncated)"
			truncatedLine = true
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}

	if len(lines) > len(shown) {
		fmt.Fprintf(&sb, "\n... (%d more lines, %d lines / %d chars total)",
			len(lines)-len(shown), len(lines), len(normalized))
	} else if truncatedLine && len(lines) > 1 {
		fmt.Fprintf(&sb, "\n... (%d lines / %d chars total)", len(lines), len(normalized))
	}
	return sb.String()
}

// IsIgnorableToolOutput reports whether a tool event is bookkeeping noise
// not worth showing.
func IsIgnorableToolOutput(toolName, output string) bool {
	if strings.EqualFold(strings.TrimSpace(toolName), "report_intent") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(output), "Intent logged")
}
