package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// ShellManager implements Manager by shelling out to git.
type ShellManager struct {
	workDir string
}

// NewShellManager creates a ShellManager rooted at workDir. An empty workDir
// means the process working directory.
func NewShellManager(workDir string) *ShellManager {
	return &ShellManager{workDir: workDir}
}

// runGit executes a git command and returns its trimmed stdout.
func (m *ShellManager) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		stderrLower := strings.ToLower(stderrStr)
		command := "git " + strings.Join(args, " ")

		switch {
		case strings.Contains(stderrLower, "not a git repository"):
			return "", &GitError{Command: command, Output: stderrStr, Err: ErrNotAGitRepo}
		case strings.Contains(stderrLower, "ambiguous argument 'head'"),
			strings.Contains(stderrLower, "unknown revision"):
			return "", &GitError{Command: command, Output: stderrStr, Err: ErrNoCommits}
		}
		return "", &GitError{Command: command, Output: stderrStr, Err: err}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether the working directory is inside a git work tree.
func (m *ShellManager) IsRepo(ctx context.Context) bool {
	out, err := m.runGit(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CurrentBranch returns the current branch. It works in repositories
// without commits.
func (m *ShellManager) CurrentBranch(ctx context.Context) (string, error) {
	return m.runGit(ctx, "symbolic-ref", "--short", "HEAD")
}

// RemoteURL returns the URL configured for the named remote.
func (m *ShellManager) RemoteURL(ctx context.Context, name string) (string, error) {
	return m.runGit(ctx, "remote", "get-url", name)
}

// IsPathDirty reports whether path is modified, staged or untracked.
// Ignored files are never dirty.
func (m *ShellManager) IsPathDirty(ctx context.Context, path string) (bool, error) {
	out, err := m.runGit(ctx, "status", "--porcelain", "--", path)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CommitPathIfDirty stages and commits only path. It returns false without
// error when path has no changes.
func (m *ShellManager) CommitPathIfDirty(ctx context.Context, path, message string) (bool, error) {
	dirty, err := m.IsPathDirty(ctx, path)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	if _, err := m.runGit(ctx, "add", "--", path); err != nil {
		return false, err
	}

	if _, err := m.runGit(ctx, "commit", "-m", message, "--", path); err != nil {
		return false, &GitError{Command: "git commit", Output: err.Error(), Err: ErrCommitFailed}
	}

	log.Info().Str("path", path).Str("message", message).Msg("committed file")
	return true, nil
}

// HeadCommit returns the current HEAD commit hash.
func (m *ShellManager) HeadCommit(ctx context.Context) (string, error) {
	return m.runGit(ctx, "rev-parse", "HEAD")
}
