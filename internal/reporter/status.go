// Package reporter builds the status summary shown by `coralph status`.
package reporter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yarlson/coralph/internal/backlog"
	"github.com/yarlson/coralph/internal/filecache"
	"github.com/yarlson/coralph/internal/issues"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/state"
)

const progressBarWidth = 20

// Status is a read-only view of the working files and the last run.
type Status struct {
	BacklogFile   string
	BacklogExists bool

	// BacklogErr is set when the backlog exists but cannot be parsed.
	BacklogErr error

	Counts backlog.Counts
	Next   *backlog.Task

	IssuesFile string

	// OpenIssues is -1 when the issues file is missing or malformed.
	OpenIssues int

	LastIteration *loop.IterationRecord
	LastRun       *state.LastRun
}

// StatusGenerator reads status from the working directory.
type StatusGenerator struct {
	cache       *filecache.Cache
	root        string
	backlogPath string
	issuesPath  string
}

// NewStatusGenerator creates a generator for root. Relative file paths
// resolve against root.
func NewStatusGenerator(cache *filecache.Cache, root, backlogPath, issuesPath string) *StatusGenerator {
	return &StatusGenerator{
		cache:       cache,
		root:        root,
		backlogPath: resolve(root, backlogPath),
		issuesPath:  resolve(root, issuesPath),
	}
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// GetStatus gathers the current status. Unreadable pieces are reported in
// the result; only cancellation is returned as an error.
func (g *StatusGenerator) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		BacklogFile: g.backlogPath,
		IssuesFile:  g.issuesPath,
		OpenIssues:  -1,
	}

	doc, exists, err := backlog.NewStore(g.backlogPath, g.cache).Load(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	status.BacklogExists = exists
	status.BacklogErr = err
	if err == nil && exists {
		status.Counts = backlog.Summarize(doc.Tasks)
		status.Next = backlog.NextOpen(doc.Tasks)
	}

	if entry, err := g.cache.TryRead(ctx, g.issuesPath); err == nil && entry.Exists {
		if all, err := issues.Parse(entry.Content); err == nil {
			status.OpenIssues = len(issues.Open(all))
		}
	}

	if rec, err := loop.LatestRecord(state.IterationLogsDirPath(g.root)); err == nil {
		status.LastIteration = rec
	}
	if run, err := state.LoadLastRun(g.root); err == nil {
		status.LastRun = run
	}

	return status, nil
}

// FormatStatus formats a status for CLI display.
func FormatStatus(status *Status) string {
	var sb strings.Builder

	sb.WriteString("## Status\n\n")

	sb.WriteString("### Backlog\n")
	_, _ = fmt.Fprintf(&sb, "File: %s\n", status.BacklogFile)
	switch {
	case !status.BacklogExists:
		sb.WriteString("Not generated yet (created on the next run)\n")
	case status.BacklogErr != nil:
		_, _ = fmt.Fprintf(&sb, "Unreadable: %v\n", status.BacklogErr)
	default:
		c := status.Counts
		percent := 0
		if c.Total > 0 {
			percent = c.Done * 100 / c.Total
		}
		_, _ = fmt.Fprintf(&sb, "Progress: %s %d%%\n", ProgressBar(percent, progressBarWidth), percent)
		_, _ = fmt.Fprintf(&sb, "Total: %d\n", c.Total)
		_, _ = fmt.Fprintf(&sb, "Open: %d\n", c.Open)
		_, _ = fmt.Fprintf(&sb, "In progress: %d\n", c.InProgress)
		_, _ = fmt.Fprintf(&sb, "Done: %d\n", c.Done)
		_, _ = fmt.Fprintf(&sb, "Blocked: %d\n", c.Blocked)
	}
	sb.WriteString("\n")

	sb.WriteString("### Next Task\n")
	if status.Next != nil {
		_, _ = fmt.Fprintf(&sb, "Next Task: %s (%s)\n", status.Next.Title, status.Next.ID)
		_, _ = fmt.Fprintf(&sb, "Issue: #%d %s\n", status.Next.IssueNumber, status.Next.IssueTitle)
	} else {
		sb.WriteString("Next Task: none\n")
	}
	sb.WriteString("\n")

	sb.WriteString("### Issues\n")
	if status.OpenIssues >= 0 {
		_, _ = fmt.Fprintf(&sb, "Open issues: %d (%s)\n", status.OpenIssues, filepath.Base(status.IssuesFile))
	} else {
		_, _ = fmt.Fprintf(&sb, "Open issues: unknown (%s missing or malformed)\n", filepath.Base(status.IssuesFile))
	}

	if rec := status.LastIteration; rec != nil {
		sb.WriteString("\n### Last Iteration\n")
		_, _ = fmt.Fprintf(&sb, "ID: %s\n", rec.IterationID)
		_, _ = fmt.Fprintf(&sb, "Iteration: %d\n", rec.Iteration)
		_, _ = fmt.Fprintf(&sb, "Outcome: %s\n", rec.Outcome)
		if rec.Signal != "" {
			signal := rec.Signal
			if rec.SignalIgnored {
				signal += " (ignored)"
			}
			_, _ = fmt.Fprintf(&sb, "Signal: %s\n", signal)
		}
		if d := rec.Duration(); d > 0 {
			_, _ = fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(d))
		}
	}

	if run := status.LastRun; run != nil {
		sb.WriteString("\n### Last Run\n")
		_, _ = fmt.Fprintf(&sb, "Outcome: %s\n", run.Outcome)
		if run.Signal != "" {
			_, _ = fmt.Fprintf(&sb, "Signal: %s\n", run.Signal)
		}
		_, _ = fmt.Fprintf(&sb, "Iterations: %d\n", run.IterationsRun)
		_, _ = fmt.Fprintf(&sb, "Exit code: %d\n", run.ExitCode)
		if !run.FinishedAt.IsZero() {
			_, _ = fmt.Fprintf(&sb, "Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
		}
		if run.Message != "" {
			_, _ = fmt.Fprintf(&sb, "Message: %s\n", run.Message)
		}
	}

	return sb.String()
}
