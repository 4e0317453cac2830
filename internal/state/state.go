// Package state manages the .coralph working directory and the summary of
// the most recent run.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Directory names for the .coralph structure.
const (
	CoralphDir       = ".coralph"
	StateDir         = "state"
	LogsDir          = "logs"
	AssistantLogsDir = "assistant"
	IterationLogsDir = "iterations"
	LastRunFile      = "last-run.json"
)

// CoralphDirPath returns the path to the .coralph directory.
func CoralphDirPath(root string) string {
	return filepath.Join(root, CoralphDir)
}

// StateDirPath returns the path to the state directory.
func StateDirPath(root string) string {
	return filepath.Join(root, CoralphDir, StateDir)
}

// LogsDirPath returns the path to the logs directory.
func LogsDirPath(root string) string {
	return filepath.Join(root, CoralphDir, LogsDir)
}

// AssistantLogsDirPath returns the directory holding raw assistant output per turn.
func AssistantLogsDirPath(root string) string {
	return filepath.Join(root, CoralphDir, LogsDir, AssistantLogsDir)
}

// IterationLogsDirPath returns the directory holding iteration records.
func IterationLogsDirPath(root string) string {
	return filepath.Join(root, CoralphDir, LogsDir, IterationLogsDir)
}

// LastRunFilePath returns the path to the last run summary.
func LastRunFilePath(root string) string {
	return filepath.Join(root, CoralphDir, StateDir, LastRunFile)
}

// EnsureCoralphDir creates the .coralph directory structure if it doesn't
// exist. It is idempotent.
func EnsureCoralphDir(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("root directory does not exist: %s", root)
	}

	dirs := []string{
		CoralphDirPath(root),
		StateDirPath(root),
		LogsDirPath(root),
		AssistantLogsDirPath(root),
		IterationLogsDirPath(root),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// LastRun summarises the most recent loop run.
type LastRun struct {
	SessionID     string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       string    `json:"outcome"`
	Signal        string    `json:"signal,omitempty"`
	Message       string    `json:"message,omitempty"`
	IterationsRun int       `json:"iterations_run"`
	ExitCode      int       `json:"exit_code"`
}

// SaveLastRun writes the run summary into the state directory.
func SaveLastRun(root string, run LastRun) error {
	stateDir := StateDirPath(root)
	if _, err := os.Stat(stateDir); os.IsNotExist(err) {
		return fmt.Errorf(".coralph/state directory does not exist")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling last run: %w", err)
	}
	if err := os.WriteFile(LastRunFilePath(root), data, 0o644); err != nil {
		return fmt.Errorf("writing last run: %w", err)
	}
	return nil
}

// LoadLastRun reads the run summary. It returns nil when no run was recorded.
func LoadLastRun(root string) (*LastRun, error) {
	data, err := os.ReadFile(LastRunFilePath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading last run: %w", err)
	}

	var run LastRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing last run: %w", err)
	}
	return &run, nil
}
