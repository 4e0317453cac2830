// Package assistant runs one turn of the coding assistant.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the assistant produced no output.
var ErrEmptyResponse = errors.New("assistant returned an empty response")

// Runner executes a single assistant turn for a prompt and returns its
// final output text.
type Runner interface {
	RunTurn(ctx context.Context, prompt string) (string, error)
}

// CommandError describes a failed assistant subprocess.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLines(stderr, 5)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
