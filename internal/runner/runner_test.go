package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/coralph/internal/config"
	gitpkg "github.com/yarlson/coralph/internal/git"
	"github.com/yarlson/coralph/internal/issues"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/prompt"
	"github.com/yarlson/coralph/internal/state"
)

const openIssues = `[{"number":7,"title":"Add hello","body":"- [ ] write it","state":"open"}]`

func noColor() *bool {
	b := false
	return &b
}

func setupWorkDir(t *testing.T, gitRepo bool) string {
	t.Helper()
	workDir := t.TempDir()
	if gitRepo {
		runCmd(t, workDir, "git", "init")
		runCmd(t, workDir, "git", "config", "user.email", "test@example.com")
		runCmd(t, workDir, "git", "config", "user.name", "Test User")
		runCmd(t, workDir, "git", "config", "commit.gpgsign", "false")
		runCmd(t, workDir, "git", "commit", "--allow-empty", "-m", "initial")
	}
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "prompt.md"), []byte("Work the backlog.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "issues.json"), []byte(openIssues), 0o644))
	return workDir
}

func writeAssistant(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mock-copilot.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testConfig(cliPath string) *config.Config {
	cfg := config.Default()
	cfg.Assistant.Provider = "copilot"
	cfg.Assistant.CLIPath = cliPath
	cfg.Assistant.Stream = false
	cfg.Loop.MaxIterations = 3
	cfg.GitHub.PRMode = config.PRModeOff
	return cfg
}

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestRun_AllTasksComplete(t *testing.T) {
	workDir := setupWorkDir(t, true)
	script := writeAssistant(t, `echo "did the work" >> progress.txt
echo "<promise>ALL_TASKS_COMPLETE</promise>"
`)
	cfg := testConfig(script)
	cfg.Events.Path = ".coralph/events.jsonl"

	var stdout, stderr bytes.Buffer
	result := Run(context.Background(), workDir, cfg, Options{Color: noColor(), Version: "test"}, &stdout, &stderr)

	assert.Equal(t, loop.RunOutcomeTerminalSignal, result.Outcome, stderr.String())
	assert.Equal(t, prompt.SignalAllTasksComplete, result.Signal)
	assert.Equal(t, 1, result.IterationsRun)
	assert.Equal(t, loop.ExitOK, result.ExitCode())

	output := stdout.String()
	assert.Contains(t, output, "=== Iteration 1/3 ===")
	assert.Contains(t, output, "ALL_TASKS_COMPLETE detected, stopping.")
	assert.Contains(t, output, "Auto-committed "+filepath.Join(workDir, "progress.txt"))

	assert.NoFileExists(t, filepath.Join(workDir, "generated_tasks.json"))

	log := runCmd(t, workDir, "git", "log", "--oneline")
	assert.Contains(t, log, "chore: update progress.txt")

	last, err := state.LoadLastRun(workDir)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, string(loop.RunOutcomeTerminalSignal), last.Outcome)
	assert.Equal(t, "ALL_TASKS_COMPLETE", last.Signal)

	evs := readEvents(t, filepath.Join(workDir, ".coralph", "events.jsonl"))
	require.GreaterOrEqual(t, len(evs), 4)
	assert.Equal(t, "session", evs[0]["type"])
	assert.Equal(t, last.SessionID, evs[0]["id"])
	assert.Equal(t, "agent_start", evs[1]["type"])
	assert.Equal(t, "test", evs[1]["version"])
	assert.Equal(t, "agent_end", evs[len(evs)-1]["type"])

	records, err := os.ReadDir(state.IterationLogsDirPath(workDir))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_CompleteIgnoredUntilBudget(t *testing.T) {
	workDir := setupWorkDir(t, false)
	script := writeAssistant(t, `echo "<promise>COMPLETE</promise>"`)
	cfg := testConfig(script)
	cfg.Loop.MaxIterations = 2

	var stdout, stderr bytes.Buffer
	result := Run(context.Background(), workDir, cfg, Options{Color: noColor()}, &stdout, &stderr)

	assert.Equal(t, loop.RunOutcomeBudgetExhausted, result.Outcome)
	assert.Equal(t, 2, result.IterationsRun)
	assert.Equal(t, 2, strings.Count(stderr.String(), "COMPLETE signal ignored: open tasks remain in generated_tasks.json"))
	assert.FileExists(t, filepath.Join(workDir, "generated_tasks.json"))
}

func TestRun_MissingPromptFile(t *testing.T) {
	workDir := setupWorkDir(t, false)
	require.NoError(t, os.Remove(filepath.Join(workDir, "prompt.md")))

	var stdout, stderr bytes.Buffer
	result := Run(context.Background(), workDir, testConfig("/bin/false"), Options{Color: noColor()}, &stdout, &stderr)

	assert.Equal(t, loop.RunOutcomeFatalError, result.Outcome)
	assert.Equal(t, loop.ExitFatal, result.ExitCode())
	assert.Contains(t, stderr.String(), "Prompt file not found: "+filepath.Join(workDir, "prompt.md"))
	assert.Contains(t, stderr.String(), "coralph --init")
}

func TestRun_NoOpenIssues(t *testing.T) {
	workDir := setupWorkDir(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "issues.json"), []byte(`[{"number":1,"title":"x","state":"closed"}]`), 0o644))
	marker := filepath.Join(t.TempDir(), "invoked")
	script := writeAssistant(t, "touch "+marker+"\n")

	var stdout, stderr bytes.Buffer
	result := Run(context.Background(), workDir, testConfig(script), Options{Color: noColor()}, &stdout, &stderr)

	assert.Equal(t, prompt.SignalNoOpenIssues, result.Signal)
	assert.Equal(t, 0, result.ExitCode())
	assert.NoFileExists(t, marker)
	assert.FileExists(t, filepath.Join(workDir, "progress.txt"))
}

func TestRun_RefreshIssuesWithoutRepository(t *testing.T) {
	workDir := setupWorkDir(t, false)
	cfg := testConfig("/bin/false")
	cfg.GitHub.RefreshIssues = true

	var stdout, stderr bytes.Buffer
	result := Run(context.Background(), workDir, cfg, Options{Color: noColor()}, &stdout, &stderr)

	assert.Equal(t, loop.RunOutcomeFatalError, result.Outcome)
	assert.Contains(t, result.Message, "--refresh-issues requires a GitHub repository")
}

func TestRun_OpenAIWithoutKey(t *testing.T) {
	workDir := setupWorkDir(t, false)
	cfg := testConfig("")
	cfg.Assistant.Provider = "openai"

	var stdout, stderr bytes.Buffer
	result := Run(context.Background(), workDir, cfg, Options{Color: noColor()}, &stdout, &stderr)

	assert.Equal(t, loop.ExitFatal, result.ExitCode())
	assert.Contains(t, result.Message, "API key")
}

func TestRun_Canceled(t *testing.T) {
	workDir := setupWorkDir(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	result := Run(ctx, workDir, testConfig("/bin/false"), Options{Color: noColor()}, &stdout, &stderr)

	assert.Equal(t, loop.RunOutcomeCanceled, result.Outcome)
	assert.Equal(t, loop.ExitCanceled, result.ExitCode())
}

func TestResolveGitHub(t *testing.T) {
	t.Run("explicit repo", func(t *testing.T) {
		cfg := config.Default()
		cfg.GitHub.Repo = "octo/widgets"
		gh, err := resolveGitHub(context.Background(), cfg, nil, "")
		require.NoError(t, err)
		require.NotNil(t, gh)
		assert.Equal(t, "octo/widgets", gh.Repo())
	})

	t.Run("from remote", func(t *testing.T) {
		workDir := setupWorkDir(t, true)
		runCmd(t, workDir, "git", "remote", "add", "origin", "git@github.com:octo/gadgets.git")

		gh, err := resolveGitHubIn(t, workDir, config.Default())
		require.NoError(t, err)
		require.NotNil(t, gh)
		assert.Equal(t, "octo/gadgets", gh.Repo())
	})

	t.Run("no github remote", func(t *testing.T) {
		workDir := setupWorkDir(t, true)
		runCmd(t, workDir, "git", "remote", "add", "origin", "https://gitlab.com/octo/gadgets.git")

		gh, err := resolveGitHubIn(t, workDir, config.Default())
		require.NoError(t, err)
		assert.Nil(t, gh)
	})
}

func resolveGitHubIn(t *testing.T, workDir string, cfg *config.Config) (*issues.GitHub, error) {
	t.Helper()
	return resolveGitHub(context.Background(), cfg, gitpkg.NewShellManager(workDir), "")
}

func runCmd(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_DATE=Thu, 07 Apr 2005 22:13:13 +0200", "GIT_COMMITTER_DATE=Thu, 07 Apr 2005 22:13:13 +0200")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("command failed: %s %v\n%s", name, args, string(output))
	}
	return string(output)
}
