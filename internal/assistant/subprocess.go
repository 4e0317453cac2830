package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/provider"
	"github.com/yarlson/coralph/internal/stream"
)

// SubprocessConfig configures a CLI-backed runner.
type SubprocessConfig struct {
	// Provider selects argv layout and output parsing (copilot or claude).
	Provider string

	// Command is the executable; defaults to the provider's CLI name.
	Command string

	Model     string
	WorkDir   string
	ExtraArgs []string
	Env       map[string]string

	// LogsDir receives one raw stdout log per turn.
	LogsDir string

	// Live, when set, receives a readable rendering of stdout as it arrives.
	Live      io.Writer
	ShowTools bool
}

// defaultWaitDelay bounds how long a turn waits for stdout to close after the
// process exits or is cancelled. Background children of the CLI can hold the
// pipe open indefinitely.
const defaultWaitDelay = 5 * time.Second

// SubprocessRunner runs the assistant CLI once per turn.
type SubprocessRunner struct {
	cfg       SubprocessConfig
	turn      int
	now       func() time.Time
	waitDelay time.Duration
}

// NewSubprocessRunner creates a runner for cfg.
func NewSubprocessRunner(cfg SubprocessConfig) *SubprocessRunner {
	if cfg.Command == "" {
		cfg.Command = provider.DefaultCommand(cfg.Provider)
	}
	return &SubprocessRunner{cfg: cfg, now: time.Now, waitDelay: defaultWaitDelay}
}

// RunTurn executes the CLI with prompt. Stdout is teed to a log file and,
// when configured, to the live writer. Cancelling ctx kills the process.
func (r *SubprocessRunner) RunTurn(ctx context.Context, prompt string) (string, error) {
	r.turn++

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.buildArgs(prompt)...)
	cmd.Dir = r.cfg.WorkDir
	cmd.WaitDelay = r.waitDelay
	if len(r.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	logFile, logPath, err := r.openLog()
	if err != nil {
		return "", err
	}
	defer func() { _ = logFile.Close() }()

	var stdoutBuf, stderrBuf bytes.Buffer
	sinks := []io.Writer{logFile, &stdoutBuf}

	var livePipe *io.PipeWriter
	liveDone := make(chan struct{})
	if r.cfg.Live != nil {
		pr, pw := io.Pipe()
		livePipe = pw
		sinks = append(sinks, pw)
		proc := stream.NewProcessor(r.cfg.Live, stream.Options{Format: r.streamFormat(), ShowTools: r.cfg.ShowTools})
		go func() {
			defer close(liveDone)
			_ = proc.Process(pr)
			_, _ = io.Copy(io.Discard, pr)
		}()
	} else {
		close(liveDone)
	}
	stopLive := func() {
		if livePipe != nil {
			_ = livePipe.Close()
		}
		<-liveDone
	}

	cmd.Stdout = io.MultiWriter(sinks...)
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		stopLive()
		return "", fmt.Errorf("failed to start command %s: %w", r.cfg.Command, err)
	}
	log.Debug().Str("command", r.cfg.Command).Int("turn", r.turn).Str("log", logPath).Msg("assistant started")

	waitErr := cmd.Wait()
	stopLive()

	if ctx.Err() != nil {
		return "", fmt.Errorf("command cancelled: %w", ctx.Err())
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// The CLI exited cleanly but left a child holding stdout.
		log.Warn().Str("command", r.cfg.Command).Dur("wait_delay", r.waitDelay).Msg("assistant output still open after exit")
		waitErr = nil
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return "", &CommandError{
			Command:  filepath.Base(r.cfg.Command),
			ExitCode: exitCode,
			Stderr:   stderrBuf.String(),
			Err:      waitErr,
		}
	}

	text, err := r.extractText(&stdoutBuf)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (r *SubprocessRunner) buildArgs(prompt string) []string {
	var args []string
	switch r.cfg.Provider {
	case provider.Claude:
		args = append(args, "--output-format=stream-json", "--verbose")
		if r.cfg.Model != "" {
			args = append(args, "--model", r.cfg.Model)
		}
		args = append(args, r.cfg.ExtraArgs...)
		args = append(args, "-p", prompt)
	default:
		args = append(args, "-p", prompt, "--allow-all-tools")
		if r.cfg.Model != "" {
			args = append(args, "--model", r.cfg.Model)
		}
		args = append(args, r.cfg.ExtraArgs...)
	}
	return args
}

func (r *SubprocessRunner) streamFormat() stream.Format {
	if r.cfg.Provider == provider.Claude {
		return stream.FormatNDJSON
	}
	return stream.FormatText
}

func (r *SubprocessRunner) extractText(stdout io.Reader) (string, error) {
	if r.cfg.Provider != provider.Claude {
		data, err := io.ReadAll(stdout)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(stream.Sanitize(string(data))), nil
	}

	res, err := ParseClaudeOutput(stdout)
	if err != nil {
		return "", fmt.Errorf("failed to parse claude output: %w", err)
	}
	if res.IsError {
		return "", fmt.Errorf("claude reported an error: %s", strings.TrimSpace(res.Text()))
	}
	return res.Text(), nil
}

func (r *SubprocessRunner) openLog() (*os.File, string, error) {
	dir := r.cfg.LogsDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create assistant logs directory: %w", err)
	}
	path := filepath.Join(dir, logFilename(r.now(), r.turn))
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log file %s: %w", path, err)
	}
	return f, path, nil
}

func logFilename(ts time.Time, turn int) string {
	return fmt.Sprintf("%s-turn-%d.log", ts.Format("20060102-150405"), turn)
}
