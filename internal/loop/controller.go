package loop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/assistant"
	"github.com/yarlson/coralph/internal/backlog"
	"github.com/yarlson/coralph/internal/filecache"
	"github.com/yarlson/coralph/internal/issues"
	"github.com/yarlson/coralph/internal/memory"
	"github.com/yarlson/coralph/internal/prompt"
)

// RunOutcome represents the final outcome of a loop run.
type RunOutcome string

const (
	// RunOutcomeRunning is the zero state before the loop stops.
	RunOutcomeRunning RunOutcome = "running"
	// RunOutcomeTerminalSignal indicates the assistant reported a terminal signal.
	RunOutcomeTerminalSignal RunOutcome = "stopped_by_terminal_signal"
	// RunOutcomeBudgetExhausted indicates the iteration or time budget ran out.
	RunOutcomeBudgetExhausted RunOutcome = "stopped_by_budget_exhaustion"
	// RunOutcomeFatalError indicates the loop could not proceed.
	RunOutcomeFatalError RunOutcome = "stopped_by_fatal_error"
	// RunOutcomeCanceled indicates a stop was requested.
	RunOutcomeCanceled RunOutcome = "canceled"
)

var validRunOutcomes = map[RunOutcome]bool{
	RunOutcomeRunning:         true,
	RunOutcomeTerminalSignal:  true,
	RunOutcomeBudgetExhausted: true,
	RunOutcomeFatalError:      true,
	RunOutcomeCanceled:        true,
}

// IsValid returns true if the outcome is a valid value.
func (o RunOutcome) IsValid() bool {
	return validRunOutcomes[o]
}

// Process exit codes.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitCanceled = 130
)

// RunResult contains the results from a loop run.
type RunResult struct {
	Outcome RunOutcome

	// Signal is the terminal signal that stopped the loop, if any.
	Signal prompt.Signal

	// Message is a human-readable description of the outcome.
	Message string

	// IterationsRun is the number of assistant turns taken.
	IterationsRun int

	Records     []*IterationRecord
	ElapsedTime time.Duration
}

// ExitCode maps the outcome to a process exit code.
func (r RunResult) ExitCode() int {
	switch r.Outcome {
	case RunOutcomeTerminalSignal, RunOutcomeBudgetExhausted:
		return ExitOK
	case RunOutcomeCanceled:
		return ExitCanceled
	default:
		return ExitFatal
	}
}

// Committer persists a file to version control if it has local changes.
type Committer interface {
	CommitPathIfDirty(ctx context.Context, path, message string) (bool, error)
}

// FeedbackSource fetches reviewer feedback for issues worked on in PR mode.
type FeedbackSource interface {
	FetchPRFeedback(ctx context.Context, issueNumbers []int) (map[int]issues.PRFeedback, error)
}

// Deps contains the collaborators of the Controller.
type Deps struct {
	Cache   *filecache.Cache
	Backlog *backlog.Store
	Runner  assistant.Runner

	// Committer is optional; without it progress is never auto-committed.
	Committer Committer

	// Feedback is optional and only used in PR mode.
	Feedback FeedbackSource

	Observer Observer

	// RecordsDir receives one JSON record per iteration when set.
	RecordsDir string
}

// Options configures a run.
type Options struct {
	MaxIterations int
	MaxMinutes    int

	PromptTemplate string
	IssuesFile     string
	ProgressFile   string

	PRMode bool

	// MaxProgressBytes bounds the progress text embedded in prompts (0 = no bound).
	MaxProgressBytes int

	// StallThreshold warns after this many identical outputs or failures in a row (0 = off).
	StallThreshold int
}

// Controller drives iterations until a terminal signal, budget exhaustion,
// a fatal error or cancellation.
type Controller struct {
	deps     Deps
	opts     Options
	observer Observer
	progress *memory.ProgressFile
}

// NewController creates a loop controller.
func NewController(deps Deps, opts Options) *Controller {
	obs := deps.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	c := &Controller{deps: deps, opts: opts, observer: obs}
	if opts.ProgressFile != "" {
		c.progress = memory.NewProgressFile(opts.ProgressFile)
	}
	return c
}

// Run executes the loop. Cached file state is dropped at the start of every
// iteration and before a COMPLETE claim is checked, so edits made by the
// assistant during a turn are always seen, even when they keep the file size
// and modification time.
func (c *Controller) Run(ctx context.Context) RunResult {
	start := time.Now()
	result := RunResult{Outcome: RunOutcomeRunning, Records: []*IterationRecord{}}

	finish := func(outcome RunOutcome, msg string) RunResult {
		result.Outcome = outcome
		result.Message = msg
		result.ElapsedTime = time.Since(start)
		c.observer.LoopStopped(result)
		return result
	}
	canceled := func() RunResult {
		c.observer.Warning("Cancellation requested, stopping.")
		return finish(RunOutcomeCanceled, "loop cancelled")
	}

	if ctx.Err() != nil {
		return canceled()
	}

	issuesJSON, err := c.readIssues(ctx)
	if err != nil {
		return finish(RunOutcomeFatalError, err.Error())
	}
	hasOpen, err := prompt.TryGetHasOpenIssues(issuesJSON)
	if err != nil {
		return finish(RunOutcomeFatalError, fmt.Sprintf("failed to parse issues file %s: %v", c.opts.IssuesFile, err))
	}
	if !hasOpen {
		c.observer.Notice(string(prompt.SignalNoOpenIssues))
		c.cleanupBacklog("no open issues remained")
		result.Signal = prompt.SignalNoOpenIssues
		return finish(RunOutcomeTerminalSignal, "no open issues")
	}

	c.observer.LoopStarted(c.opts.MaxIterations)
	budget := NewBudgetTracker(BudgetLimits{MaxIterations: c.opts.MaxIterations, MaxMinutes: c.opts.MaxMinutes})
	stall := NewStallDetector(c.opts.StallThreshold)

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			return canceled()
		}

		if status := budget.CheckBudget(); !status.CanContinue {
			c.observer.Notice(fmt.Sprintf("%s; keeping backlog %s for resume", status.Reason, c.deps.Backlog.Path()))
			return finish(RunOutcomeBudgetExhausted, status.Reason)
		}

		c.observer.IterationStarted(iteration, c.opts.MaxIterations)

		c.invalidateWorkingFiles()
		if fresh, err := c.readIssues(ctx); err != nil {
			c.observer.Warning(fmt.Sprintf("Warning: %v; using previous issues", err))
		} else {
			issuesJSON = fresh
		}
		progress := c.readProgress(ctx)

		backlogJSON, err := c.deps.Backlog.Ensure(ctx, issuesJSON)
		if err != nil {
			if ctx.Err() != nil {
				return canceled()
			}
			c.observer.Warning(fmt.Sprintf("Warning: failed to prepare task backlog: %v", err))
		}

		promptText := prompt.BuildCombinedPrompt(c.opts.PromptTemplate, issuesJSON,
			prompt.TruncateProgress(progress, c.opts.MaxProgressBytes),
			prompt.Options{
				PRMode:      c.opts.PRMode,
				PRFeedback:  c.fetchFeedback(ctx, issuesJSON),
				BacklogJSON: backlogJSON,
			})

		if ctx.Err() != nil {
			return canceled()
		}

		record := NewIterationRecord(iteration)
		record.PromptBytes = len(promptText)

		output, runErr := c.deps.Runner.RunTurn(ctx, promptText)
		if runErr != nil && ctx.Err() != nil {
			record.Error = runErr.Error()
			record.Complete(OutcomeCanceled)
			c.saveRecord(&result, record)
			return canceled()
		}
		if runErr != nil {
			output = FormatRunnerError(runErr)
			record.Error = runErr.Error()
			record.Complete(OutcomeRunnerError)
		} else {
			record.Complete(OutcomeSuccess)
		}
		record.SetOutput(output)
		budget.RecordIteration()
		result.IterationsRun++

		signal, found := prompt.TryGetTerminalSignal(output)
		turn := Turn{
			Iteration: iteration,
			Output:    output,
			Err:       runErr,
			Signal:    signal,
			Signals:   prompt.DetectSignals(output),
			Duration:  record.Duration(),
		}
		c.observer.IterationFinished(turn)

		if st := stall.Record(output, runErr != nil); st.Stalled {
			c.observer.Warning(fmt.Sprintf("Warning: %s", st.Description))
		}

		if !found {
			c.saveRecord(&result, record)
			continue
		}
		record.Signal = string(signal)

		if signal == prompt.SignalComplete {
			c.invalidateWorkingFiles()
		}
		if signal == prompt.SignalComplete && c.backlogHasOpenTasks(ctx) {
			record.SignalIgnored = true
			c.saveRecord(&result, record)
			c.observer.CompleteIgnored(iteration)
			continue
		}
		c.saveRecord(&result, record)

		result.Signal = signal
		c.observer.SignalDetected(iteration, signal)
		c.commitProgress(ctx)
		if backlog.ShouldDeleteForTerminalSignal(string(signal)) {
			c.cleanupBacklog("terminal signal " + string(signal))
		}
		return finish(RunOutcomeTerminalSignal, fmt.Sprintf("%s detected at iteration %d", signal, iteration))
	}
}

// readIssues returns the issues file content; a missing file reads as "[]".
func (c *Controller) readIssues(ctx context.Context) (string, error) {
	entry, err := c.deps.Cache.TryRead(ctx, c.opts.IssuesFile)
	if err != nil {
		return "", fmt.Errorf("failed to read issues file %s: %w", c.opts.IssuesFile, err)
	}
	if !entry.Exists {
		return "[]", nil
	}
	return entry.Content, nil
}

func (c *Controller) readProgress(ctx context.Context) string {
	if c.progress == nil {
		return ""
	}
	text, err := c.progress.Read(ctx, c.deps.Cache)
	if err != nil {
		c.observer.Warning(fmt.Sprintf("Warning: %s: %v", c.progress.Path(), err))
		return ""
	}
	return text
}

// invalidateWorkingFiles drops cached copies of every file the assistant may
// edit during a turn. The cache trusts size and modification time, which miss
// same-size rewrites inside one timestamp tick.
func (c *Controller) invalidateWorkingFiles() {
	c.deps.Cache.Invalidate(c.opts.IssuesFile)
	c.deps.Cache.Invalidate(c.deps.Backlog.Path())
	if c.progress != nil {
		c.deps.Cache.Invalidate(c.progress.Path())
	}
}

// backlogHasOpenTasks reads the persisted backlog. A missing backlog has no
// open tasks; an unreadable or malformed one is assumed to have some.
func (c *Controller) backlogHasOpenTasks(ctx context.Context) bool {
	open, err := c.deps.Backlog.HasOpenTasks(ctx)
	if err != nil {
		c.observer.Warning(fmt.Sprintf("Warning: could not read task backlog, assuming open tasks remain: %v", err))
	}
	return open
}

func (c *Controller) fetchFeedback(ctx context.Context, issuesJSON string) map[int]issues.PRFeedback {
	if !c.opts.PRMode || c.deps.Feedback == nil {
		return nil
	}
	all, err := issues.Parse(issuesJSON)
	if err != nil {
		return nil
	}
	open := issues.Open(all)
	if len(open) == 0 {
		return nil
	}
	numbers := make([]int, 0, len(open))
	for _, is := range open {
		numbers = append(numbers, is.Number)
	}

	feedback, err := c.deps.Feedback.FetchPRFeedback(ctx, numbers)
	if err != nil {
		c.observer.Warning(fmt.Sprintf("Warning: failed to fetch PR feedback: %v", err))
		return nil
	}
	return feedback
}

func (c *Controller) commitProgress(ctx context.Context) {
	if c.deps.Committer == nil || c.opts.ProgressFile == "" {
		return
	}
	msg := "chore: update " + filepath.Base(c.opts.ProgressFile)
	committed, err := c.deps.Committer.CommitPathIfDirty(ctx, c.opts.ProgressFile, msg)
	if err != nil {
		c.observer.Warning(fmt.Sprintf("Warning: failed to commit %s: %v", c.opts.ProgressFile, err))
		return
	}
	if committed {
		c.observer.Notice("Auto-committed " + c.opts.ProgressFile)
	}
}

func (c *Controller) cleanupBacklog(reason string) {
	deleted, err := c.deps.Backlog.Delete()
	if err != nil {
		c.observer.Warning(fmt.Sprintf("Warning: failed to delete generated tasks backlog '%s': %v", c.deps.Backlog.Path(), err))
		return
	}
	if deleted {
		log.Info().Str("backlog_file", c.deps.Backlog.Path()).Str("reason", reason).Msg("deleted task backlog")
	}
}

func (c *Controller) saveRecord(result *RunResult, record *IterationRecord) {
	result.Records = append(result.Records, record)
	if c.deps.RecordsDir == "" {
		return
	}
	if _, err := SaveRecord(c.deps.RecordsDir, record); err != nil {
		log.Warn().Err(err).Str("iteration_id", record.IterationID).Msg("failed to save iteration record")
	}
}

// FormatRunnerError renders a runner failure as iteration output:
// "ERROR: <type>: <message>".
func FormatRunnerError(err error) string {
	return fmt.Sprintf("ERROR: %s: %s", errorTypeName(err), err.Error())
}

func errorTypeName(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if name := typeName(e); name != "" && name[0] >= 'A' && name[0] <= 'Z' {
			return name
		}
	}
	return "Error"
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
