package prompt

import (
	"regexp"
	"sort"
	"strings"
)

// Signal is a sentinel token emitted by the assistant.
type Signal string

const (
	// SignalComplete means the assistant believes all work is done.
	SignalComplete Signal = "COMPLETE"
	// SignalAllTasksComplete means no open tasks remain in the backlog.
	SignalAllTasksComplete Signal = "ALL_TASKS_COMPLETE"
	// SignalNoOpenIssues means there were no open issues to work on.
	SignalNoOpenIssues Signal = "NO_OPEN_ISSUES"
	// SignalHangOnASecond asks for a pause; it does not stop the loop.
	SignalHangOnASecond Signal = "HANG_ON_A_SECOND"
)

var terminalSignals = map[Signal]bool{
	SignalComplete:         true,
	SignalAllTasksComplete: true,
	SignalNoOpenIssues:     true,
}

// IsTerminal reports whether the signal stops the loop.
func (s Signal) IsTerminal() bool {
	return terminalSignals[s]
}

var (
	promiseTag = regexp.MustCompile(`(?i)<promise>\s*([A-Za-z_]+)\s*</promise>`)

	// Underscored tokens are distinctive enough to match anywhere as whole words.
	underscoreToken = regexp.MustCompile(`(?i)\b(ALL_TASKS_COMPLETE|NO_OPEN_ISSUES|HANG_ON_A_SECOND)\b`)
)

type match struct {
	signal Signal
	pos    int
}

// TryGetTerminalSignal returns the first terminal signal in output.
// Matching is case-insensitive. COMPLETE is only recognised inside
// <promise></promise> or alone on a line, so prose like "complete the task"
// does not stop the loop.
func TryGetTerminalSignal(output string) (Signal, bool) {
	for _, m := range findSignals(output) {
		if m.signal.IsTerminal() {
			return m.signal, true
		}
	}
	return "", false
}

// DetectSignals returns every distinct signal in output, terminal or not,
// in order of first appearance.
func DetectSignals(output string) []Signal {
	var out []Signal
	seen := make(map[Signal]bool)
	for _, m := range findSignals(output) {
		if seen[m.signal] {
			continue
		}
		seen[m.signal] = true
		out = append(out, m.signal)
	}
	return out
}

func findSignals(output string) []match {
	var found []match

	for _, loc := range promiseTag.FindAllStringSubmatchIndex(output, -1) {
		sig := Signal(strings.ToUpper(output[loc[2]:loc[3]]))
		if sig.IsTerminal() || sig == SignalHangOnASecond {
			found = append(found, match{signal: sig, pos: loc[0]})
		}
	}

	for _, loc := range underscoreToken.FindAllStringSubmatchIndex(output, -1) {
		found = append(found, match{signal: Signal(strings.ToUpper(output[loc[2]:loc[3]])), pos: loc[2]})
	}

	offset := 0
	for _, line := range strings.SplitAfter(output, "\n") {
		if strings.EqualFold(strings.TrimSpace(line), string(SignalComplete)) {
			found = append(found, match{signal: SignalComplete, pos: offset})
		}
		offset += len(line)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	return found
}
