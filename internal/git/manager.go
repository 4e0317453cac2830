// Package git provides the version-control operations used by the loop.
package git

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common Git failures.
var (
	// ErrNotAGitRepo indicates the directory is not a git repository.
	ErrNotAGitRepo = errors.New("not a git repository")

	// ErrNoCommits indicates the repository has no commits yet.
	ErrNoCommits = errors.New("repository has no commits")

	// ErrNoChanges indicates there are no changes to commit.
	ErrNoChanges = errors.New("no changes to commit")

	// ErrCommitFailed indicates the commit operation failed.
	ErrCommitFailed = errors.New("commit failed")
)

// GitError represents a Git command error with additional context.
type GitError struct {
	// Command is the git command that failed.
	Command string
	// Output is the stderr output from the command.
	Output string
	// Err is the underlying error (typically a sentinel error).
	Err error
}

// Error returns a formatted error message.
func (e *GitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("git command %q failed: %s", e.Command, e.Output)
	}
	return fmt.Sprintf("git command %q failed", e.Command)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *GitError) Unwrap() error {
	return e.Err
}

// Manager defines the Git operations the loop and its wiring rely on.
type Manager interface {
	// IsRepo reports whether the working directory is inside a git repository.
	IsRepo(ctx context.Context) bool

	// CurrentBranch returns the name of the checked out branch.
	CurrentBranch(ctx context.Context) (string, error)

	// RemoteURL returns the fetch URL of the named remote.
	RemoteURL(ctx context.Context, name string) (string, error)

	// CommitPathIfDirty commits a single path when it has local changes and
	// reports whether a commit was made. Other pending changes are left alone.
	CommitPathIfDirty(ctx context.Context, path, message string) (bool, error)
}
