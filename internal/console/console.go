// Package console renders loop progress for humans.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/yarlson/coralph/internal/backlog"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/prompt"
)

var (
	colorHeading = lipgloss.Color("#5FAFFF")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")
)

type styles struct {
	heading lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	error   lipgloss.Style
	muted   lipgloss.Style
}

func newStyles() styles {
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(colorHeading),
		success: lipgloss.NewStyle().Bold(true).Foreground(colorSuccess),
		warning: lipgloss.NewStyle().Foreground(colorWarning),
		error:   lipgloss.NewStyle().Foreground(colorError),
		muted:   lipgloss.NewStyle().Foreground(colorMuted),
	}
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Options configures a Sink.
type Options struct {
	// Color enables styling. Callers normally pass IsTerminal(out).
	Color bool

	// EchoOutput prints each turn's output after it finishes. Used when the
	// assistant output was not already streamed live.
	EchoOutput bool

	// BacklogFile names the backlog in messages.
	BacklogFile string
}

// Sink writes human-readable loop output. Regular output goes to out;
// warnings and errors go to errOut. It implements loop.Observer.
type Sink struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	opts   Options
	styles styles
}

var _ loop.Observer = (*Sink)(nil)

// New creates a Sink.
func New(out, errOut io.Writer, opts Options) *Sink {
	return &Sink{out: out, errOut: errOut, opts: opts, styles: newStyles()}
}

func (s *Sink) render(style lipgloss.Style, text string) string {
	if !s.opts.Color {
		return text
	}
	return style.Render(text)
}

func (s *Sink) println(w io.Writer, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(w, text)
}

// Writer returns the regular output for live streaming. Writes hold the
// sink's lock so streamed chunks never interleave with observer lines.
func (s *Sink) Writer() io.Writer {
	return lockedWriter{s: s}
}

type lockedWriter struct {
	s *Sink
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.out.Write(p)
}

func (s *Sink) LoopStarted(maxIterations int) {
	s.println(s.out, s.render(s.styles.muted, fmt.Sprintf("Starting loop (max %d iterations)", maxIterations)))
}

func (s *Sink) IterationStarted(iteration, maxIterations int) {
	s.println(s.out, "\n"+s.render(s.styles.heading, fmt.Sprintf("=== Iteration %d/%d ===", iteration, maxIterations))+"\n")
}

func (s *Sink) IterationFinished(turn loop.Turn) {
	if turn.Err != nil {
		s.println(s.errOut, s.render(s.styles.error, turn.Output))
	} else if s.opts.EchoOutput && strings.TrimSpace(turn.Output) != "" {
		s.println(s.out, turn.Output)
	}

	for _, sig := range turn.Signals {
		if sig == prompt.SignalHangOnASecond {
			s.println(s.out, s.render(s.styles.muted, "Assistant asked to pause (HANG_ON_A_SECOND); continuing with the next iteration."))
			break
		}
	}
}

func (s *Sink) CompleteIgnored(int) {
	file := filepath.Base(s.opts.BacklogFile)
	if file == "." || file == "" {
		file = "the task backlog"
	}
	s.Warning(fmt.Sprintf("COMPLETE signal ignored: open tasks remain in %s", file))
}

func (s *Sink) SignalDetected(_ int, signal prompt.Signal) {
	s.println(s.out, "\n"+s.render(s.styles.success, fmt.Sprintf("%s detected, stopping.", signal))+"\n")
}

func (s *Sink) Notice(msg string) {
	s.println(s.out, msg)
}

func (s *Sink) Warning(msg string) {
	s.println(s.errOut, s.render(s.styles.warning, msg))
}

// Error prints a fatal message.
func (s *Sink) Error(msg string) {
	s.println(s.errOut, s.render(s.styles.error, msg))
}

func (s *Sink) LoopStopped(result loop.RunResult) {
	switch result.Outcome {
	case loop.RunOutcomeFatalError:
		s.Error(result.Message)
	case loop.RunOutcomeTerminalSignal, loop.RunOutcomeBudgetExhausted:
		s.println(s.out, s.render(s.styles.muted, fmt.Sprintf("Finished after %d iteration(s) in %s.",
			result.IterationsRun, result.ElapsedTime.Round(time.Second))))
	}
}

// BacklogChanged prints a one-line summary of a backlog snapshot.
func (s *Sink) BacklogChanged(snap backlog.Snapshot) {
	line := SummaryLine(snap)
	if snap.Err != nil {
		s.Warning(line)
		return
	}
	s.println(s.out, s.render(s.styles.muted, line))
}

// SummaryLine describes a backlog snapshot in one line.
func SummaryLine(snap backlog.Snapshot) string {
	if snap.Err != nil {
		return fmt.Sprintf("Backlog unreadable: %v", snap.Err)
	}
	if !snap.Exists {
		return "Backlog: none"
	}
	c := snap.Counts
	line := fmt.Sprintf("Backlog: %d open, %d in progress, %d done, %d blocked",
		c.Open, c.InProgress, c.Done, c.Blocked)
	if snap.Next != nil {
		line += fmt.Sprintf("; next: %s (%s)", snap.Next.Title, snap.Next.ID)
	}
	return line
}
