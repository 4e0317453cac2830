// Package cmd implements the coralph command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yarlson/coralph/internal/config"
	"github.com/yarlson/coralph/internal/logging"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/runner"
)

// version is set at build time with -ldflags "-X github.com/yarlson/coralph/cmd.version=...".
var version = "dev"

var cfgFile string

// GetConfigFile returns the config file path from the flag.
func GetConfigFile() string {
	return cfgFile
}

// Root command flags
var (
	rootInit               bool
	rootMaxIterations      int
	rootMaxMinutes         int
	rootModel              string
	rootPromptFile         string
	rootProgressFile       string
	rootIssuesFile         string
	rootGeneratedTasksFile string
	rootRefreshIssues      bool
	rootRepo               string
	rootProvider           string
	rootCLIPath            string
	rootStream             bool
	rootShowTools          bool
	rootPRMode             string
	rootEventStream        string
	rootMetricsAddr        string
	rootLogLevel           string
)

// exitError carries a process exit code out of a command. Its message has
// already been shown to the user.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// NewRootCmd creates the root command for coralph CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coralph",
		Short: "Run an AI coding assistant in a loop over your issue backlog",
		Long: `Coralph runs a coding assistant repeatedly against a repository. Every
iteration it builds a fresh prompt from prompt.md, the open issues, the
generated task backlog and progress.txt, invokes the assistant once, and
stops when the assistant reports that all work is done or the budget runs out.

Run 'coralph --init' once to create prompt.md, issues.json, coralph.yaml and
progress.txt in the current repository.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runRoot,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./coralph.yaml over ~/.config/coralph/config.yaml)")
	rootCmd.Flags().BoolVar(&rootInit, "init", false, "initialize the repository for coralph and exit")
	rootCmd.Flags().IntVarP(&rootMaxIterations, "max-iterations", "n", config.DefaultMaxIterations, "maximum iterations")
	rootCmd.Flags().IntVar(&rootMaxMinutes, "max-minutes", config.DefaultMaxMinutes, "wall-clock budget in minutes (0 disables)")
	rootCmd.Flags().StringVar(&rootModel, "model", config.DefaultModel, "assistant model")
	rootCmd.Flags().StringVar(&rootPromptFile, "prompt-file", config.DefaultPromptFile, "prompt template file")
	rootCmd.Flags().StringVar(&rootProgressFile, "progress-file", config.DefaultProgressFile, "progress log file")
	rootCmd.Flags().StringVar(&rootIssuesFile, "issues-file", config.DefaultIssuesFile, "issues JSON file")
	rootCmd.Flags().StringVar(&rootGeneratedTasksFile, "generated-tasks-file", config.DefaultGeneratedTasksFile, "generated task backlog file")
	rootCmd.Flags().BoolVar(&rootRefreshIssues, "refresh-issues", false, "refresh the issues file from GitHub before starting")
	rootCmd.Flags().StringVar(&rootRepo, "repo", "", "GitHub repository as owner/name (default: from the git remote)")
	rootCmd.Flags().StringVar(&rootProvider, "provider", "", "assistant provider (copilot, claude or openai)")
	rootCmd.Flags().StringVar(&rootCLIPath, "cli-path", "", "path to the assistant CLI executable")
	rootCmd.Flags().BoolVar(&rootStream, "stream", true, "stream assistant output to the console")
	rootCmd.Flags().BoolVar(&rootShowTools, "show-tools", false, "show tool calls while streaming")
	rootCmd.Flags().StringVar(&rootPRMode, "pr-mode", string(config.DefaultPRMode), "pull request workflow: auto, on or off")
	rootCmd.Flags().StringVar(&rootEventStream, "event-stream", "", "write JSONL events to this file (- for stdout)")
	rootCmd.Flags().StringVar(&rootMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.Flags().StringVar(&rootLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newStatusCmd())

	return rootCmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if rootInit {
		return runInit(cmd, workDir)
	}

	cfg, err := config.LoadConfigWithFile(workDir, GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	closeLog, err := installLogging(workDir, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info().
		Str("version", version).
		Str("provider", cfg.Assistant.Provider).
		Str("model", cfg.Assistant.Model).
		Int("max_iterations", cfg.Loop.MaxIterations).
		Msg("coralph starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := runner.Run(ctx, workDir, cfg, runner.Options{
		GitHubToken: githubToken(),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		Version:     version,
	}, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if code := result.ExitCode(); code != loop.ExitOK {
		return &exitError{code: code, msg: result.Message}
	}
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("max-iterations", func() { cfg.Loop.MaxIterations = rootMaxIterations })
	set("max-minutes", func() { cfg.Loop.MaxMinutes = rootMaxMinutes })
	set("model", func() { cfg.Assistant.Model = rootModel })
	set("prompt-file", func() { cfg.Files.Prompt = rootPromptFile })
	set("progress-file", func() { cfg.Files.Progress = rootProgressFile })
	set("issues-file", func() { cfg.Files.Issues = rootIssuesFile })
	set("generated-tasks-file", func() { cfg.Files.GeneratedTasks = rootGeneratedTasksFile })
	set("refresh-issues", func() { cfg.GitHub.RefreshIssues = rootRefreshIssues })
	set("repo", func() { cfg.GitHub.Repo = rootRepo })
	set("provider", func() { cfg.Assistant.Provider = rootProvider })
	set("cli-path", func() { cfg.Assistant.CLIPath = rootCLIPath })
	set("stream", func() { cfg.Assistant.Stream = rootStream })
	set("show-tools", func() { cfg.Assistant.ShowTools = rootShowTools })
	set("pr-mode", func() { cfg.GitHub.PRMode = config.PRMode(strings.ToLower(rootPRMode)) })
	set("event-stream", func() { cfg.Events.Path = rootEventStream })
	set("metrics-addr", func() { cfg.Metrics.Addr = rootMetricsAddr })
	set("log-level", func() { cfg.Logging.Level = rootLogLevel })
}

func installLogging(workDir string, cfg *config.Config) (func(), error) {
	file := cfg.Logging.File
	if file != "" && !filepath.IsAbs(file) {
		file = filepath.Join(workDir, file)
	}
	closeLog, err := logging.Install(cfg.Logging.Level, file)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return closeLog, nil
}

func githubToken() string {
	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// Execute runs the root command and exits with its status code.
func Execute() {
	rootCmd := NewRootCmd()
	os.Exit(exitCode(rootCmd.Execute(), rootCmd.ErrOrStderr()))
}

// exitCode maps a command error to a process exit code. Errors that were
// not already reported are printed to stderr.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return loop.ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return loop.ExitFatal
}
