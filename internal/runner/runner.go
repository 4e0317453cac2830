// Package runner assembles the loop collaborators from configuration and
// runs one coralph session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/assistant"
	"github.com/yarlson/coralph/internal/backlog"
	"github.com/yarlson/coralph/internal/config"
	"github.com/yarlson/coralph/internal/console"
	"github.com/yarlson/coralph/internal/events"
	"github.com/yarlson/coralph/internal/filecache"
	gitpkg "github.com/yarlson/coralph/internal/git"
	"github.com/yarlson/coralph/internal/issues"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/memory"
	"github.com/yarlson/coralph/internal/metrics"
	"github.com/yarlson/coralph/internal/provider"
	"github.com/yarlson/coralph/internal/startup"
	"github.com/yarlson/coralph/internal/state"
)

// Options carries run settings that do not live in the config file.
type Options struct {
	// GitHubToken authenticates issue refresh, PR feedback and PR-mode detection.
	GitHubToken string

	// OpenAIKey is required by the openai provider.
	OpenAIKey string

	// Color forces console styling on or off; nil means detect a terminal.
	Color *bool

	Version string
}

// session holds resources that must be released after the loop ends.
type session struct {
	closers []func()
	cancel  context.CancelFunc
}

func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Run executes the loop in workDir with cfg. Setup failures are returned as a
// fatal RunResult; the loop outcome decides the exit code otherwise.
func Run(ctx context.Context, workDir string, cfg *config.Config, opts Options, stdout, stderr io.Writer) loop.RunResult {
	startedAt := time.Now()

	color := console.IsTerminal(stdout)
	if opts.Color != nil {
		color = *opts.Color
	}

	providerName, _ := provider.Normalize(cfg.Assistant.Provider)
	backlogPath := resolvePath(workDir, cfg.Files.GeneratedTasks)
	sink := console.New(stdout, stderr, console.Options{
		Color:       color,
		EchoOutput:  !cfg.Assistant.Stream || !provider.IsSubprocess(providerName),
		BacklogFile: backlogPath,
	})

	sess := &session{}
	defer sess.close()

	result, eventsWriter, err := run(ctx, workDir, cfg, opts, sink, backlogPath, sess)
	if err != nil {
		result = loop.RunResult{Outcome: loop.RunOutcomeFatalError, Message: err.Error()}
		sink.Error(result.Message)
		if eventsWriter != nil {
			events.NewObserver(eventsWriter).LoopStopped(result)
		}
	}

	if err := state.SaveLastRun(workDir, state.LastRun{
		SessionID:     sessionID(eventsWriter),
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
		Outcome:       string(result.Outcome),
		Signal:        string(result.Signal),
		Message:       result.Message,
		IterationsRun: result.IterationsRun,
		ExitCode:      result.ExitCode(),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to save last run")
	}
	return result
}

func run(ctx context.Context, workDir string, cfg *config.Config, opts Options, sink *console.Sink, backlogPath string, sess *session) (loop.RunResult, *events.Writer, error) {
	if err := state.EnsureCoralphDir(workDir); err != nil {
		return loop.RunResult{}, nil, fmt.Errorf("failed to create .coralph directory: %w", err)
	}

	promptPath := resolvePath(workDir, cfg.Files.Prompt)
	template, err := startup.LoadPromptTemplate(promptPath)
	if err != nil {
		return loop.RunResult{}, nil, err
	}

	progressPath := resolvePath(workDir, cfg.Files.Progress)
	if created, err := memory.NewProgressFile(progressPath).Ensure(); err != nil {
		return loop.RunResult{}, nil, fmt.Errorf("failed to create progress file: %w", err)
	} else if created {
		log.Info().Str("progress_file", progressPath).Msg("created progress file")
	}

	cache := filecache.New()
	issuesPath := resolvePath(workDir, cfg.Files.Issues)
	var git gitpkg.Manager = gitpkg.NewShellManager(workDir)
	isRepo := git.IsRepo(ctx)
	branch := ""
	if isRepo {
		if b, err := git.CurrentBranch(ctx); err == nil {
			branch = b
		} else {
			log.Debug().Err(err).Msg("could not resolve current branch")
		}
	}

	gh, err := resolveGitHub(ctx, cfg, git, opts.GitHubToken)
	if err != nil {
		return loop.RunResult{}, nil, err
	}

	if cfg.GitHub.RefreshIssues {
		if gh == nil {
			return loop.RunResult{}, nil, errors.New("--refresh-issues requires a GitHub repository (set --repo or add a GitHub remote)")
		}
		n, err := issues.Refresh(ctx, gh, issuesPath, cache)
		if err != nil {
			return loop.RunResult{}, nil, fmt.Errorf("failed to refresh issues from %s: %w", gh.Repo(), err)
		}
		sink.Notice(fmt.Sprintf("Refreshed %d open issue(s) from %s", n, gh.Repo()))
	}

	prMode := resolvePRMode(ctx, cfg, gh, opts.GitHubToken, sink)

	runner, err := newAssistantRunner(workDir, cfg, opts, sink, assistant.DefaultTools(cache, assistant.StateFiles{
		Issues:   issuesPath,
		Progress: progressPath,
		Backlog:  backlogPath,
	}))
	if err != nil {
		return loop.RunResult{}, nil, err
	}

	observers := loop.MultiObserver{sink, loop.LogObserver{}}

	eventsWriter, err := openEventStream(workDir, cfg.Events.Path, sink, sess)
	if err != nil {
		return loop.RunResult{}, nil, err
	}
	if eventsWriter != nil {
		observers = append(observers, events.NewObserver(eventsWriter))
		if err := eventsWriter.Emit(events.TypeAgentStart, 0, map[string]any{
			"model":         cfg.Assistant.Model,
			"provider":      cfg.Assistant.Provider,
			"maxIterations": cfg.Loop.MaxIterations,
			"version":       opts.Version,
			"prMode":        prMode,
			"branch":        branch,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to write agent_start event")
		}
	}

	if cfg.Metrics.Addr != "" {
		recorder := metrics.NewRecorder()
		addr, err := recorder.Serve(ctx, cfg.Metrics.Addr)
		if err != nil {
			return loop.RunResult{}, eventsWriter, fmt.Errorf("failed to start metrics server: %w", err)
		}
		sink.Notice(fmt.Sprintf("Metrics available at http://%s/metrics", addr))
		observers = append(observers, recorder)
	}

	store := backlog.NewStore(backlogPath, cache)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	sess.cancel = cancelWatch
	watcher := backlog.NewWatcher(store, sink.BacklogChanged)
	watcherDone := make(chan struct{})
	sess.closers = append(sess.closers, func() { <-watcherDone })
	go func() {
		defer close(watcherDone)
		if err := watcher.Run(watchCtx); err != nil {
			log.Warn().Err(err).Str("backlog_file", backlogPath).Msg("backlog watcher stopped")
		}
	}()

	deps := loop.Deps{
		Cache:      cache,
		Backlog:    store,
		Runner:     runner,
		Observer:   observers,
		RecordsDir: state.IterationLogsDirPath(workDir),
	}
	if isRepo {
		log.Info().Str("branch", branch).Bool("pr_mode", prMode).Msg("git repository detected")
		deps.Committer = git
	} else {
		log.Info().Str("dir", workDir).Msg("not a git repository, progress will not be auto-committed")
	}
	if gh != nil && prMode {
		deps.Feedback = gh
	}

	controller := loop.NewController(deps, loop.Options{
		MaxIterations:    cfg.Loop.MaxIterations,
		MaxMinutes:       cfg.Loop.MaxMinutes,
		PromptTemplate:   template,
		IssuesFile:       issuesPath,
		ProgressFile:     progressPath,
		PRMode:           prMode,
		MaxProgressBytes: cfg.Loop.MaxProgressBytes,
		StallThreshold:   cfg.Loop.StallThreshold,
	})

	return controller.Run(ctx), eventsWriter, nil
}

func sessionID(w *events.Writer) string {
	if w == nil {
		return events.NewSessionID()
	}
	return w.SessionID()
}

func resolvePath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

// resolveGitHub binds a GitHub client to the configured repository, or to
// the one behind the configured git remote. It returns nil when neither
// names a GitHub repository.
func resolveGitHub(ctx context.Context, cfg *config.Config, git gitpkg.Manager, token string) (*issues.GitHub, error) {
	owner, repo, ok := issues.SplitRepo(cfg.GitHub.Repo)
	if !ok && git.IsRepo(ctx) {
		if remote, err := git.RemoteURL(ctx, cfg.GitHub.Remote); err == nil {
			owner, repo, ok = issues.ParseGitHubRemote(remote)
		}
	}
	if !ok {
		return nil, nil
	}

	client, err := issues.NewGitHubClient(token, cfg.GitHub.APIURL)
	if err != nil {
		return nil, err
	}
	return issues.NewGitHub(client, owner, repo), nil
}

// resolvePRMode applies the configured mode. Auto detection needs a GitHub
// repository and a token; without them the loop pushes directly.
func resolvePRMode(ctx context.Context, cfg *config.Config, gh *issues.GitHub, token string, sink *console.Sink) bool {
	switch cfg.GitHub.PRMode {
	case config.PRModeOn:
		return true
	case config.PRModeOff:
		return false
	}
	if gh == nil || token == "" {
		return false
	}

	prMode, err := gh.DetectPRMode(ctx, cfg.GitHub.BypassUsers)
	if err != nil {
		sink.Warning(fmt.Sprintf("Warning: PR mode detection failed, using PR mode: %v", err))
	}
	log.Info().Bool("pr_mode", prMode).Str("repo", gh.Repo()).Msg("PR mode detected")
	return prMode
}

func newAssistantRunner(workDir string, cfg *config.Config, opts Options, sink *console.Sink, tools *assistant.ToolRegistry) (assistant.Runner, error) {
	name, err := provider.Normalize(cfg.Assistant.Provider)
	if err != nil {
		return nil, err
	}

	if !provider.IsSubprocess(name) {
		return assistant.NewOpenAIRunner(assistant.OpenAIConfig{
			APIKey:  opts.OpenAIKey,
			BaseURL: cfg.Assistant.BaseURL,
			Model:   cfg.Assistant.Model,
			Tools:   tools,
		})
	}

	var live io.Writer
	if cfg.Assistant.Stream {
		live = sink.Writer()
	}
	return assistant.NewSubprocessRunner(assistant.SubprocessConfig{
		Provider:  name,
		Command:   cfg.Assistant.CLIPath,
		Model:     cfg.Assistant.Model,
		WorkDir:   workDir,
		ExtraArgs: cfg.Assistant.Args,
		LogsDir:   state.AssistantLogsDirPath(workDir),
		Live:      live,
		ShowTools: cfg.Assistant.ShowTools,
	}), nil
}

// openEventStream opens the JSONL stream and writes its session header.
// "-" writes to stdout; an empty path disables the stream.
func openEventStream(workDir, path string, sink *console.Sink, sess *session) (*events.Writer, error) {
	if path == "" {
		return nil, nil
	}

	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		full := resolvePath(workDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create event stream directory: %w", err)
		}
		f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open event stream: %w", err)
		}
		sess.closers = append(sess.closers, func() { _ = f.Close() })
		out = f
	}

	w := events.NewWriter(out, events.NewSessionID())
	if err := w.WriteSessionHeader(workDir); err != nil {
		sink.Warning(fmt.Sprintf("Warning: failed to write event stream header: %v", err))
	}
	return w, nil
}
