// Package loop drives the iteration loop: it feeds the assistant a fresh
// prompt each turn and decides when to stop.
package loop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IterationOutcome represents the result of an iteration.
type IterationOutcome string

const (
	// OutcomeSuccess indicates the assistant turn finished.
	OutcomeSuccess IterationOutcome = "success"
	// OutcomeRunnerError indicates the assistant turn failed; the loop went on.
	OutcomeRunnerError IterationOutcome = "runner_error"
	// OutcomeCanceled indicates the turn was interrupted by cancellation.
	OutcomeCanceled IterationOutcome = "canceled"
)

var validOutcomes = map[IterationOutcome]bool{
	OutcomeSuccess:     true,
	OutcomeRunnerError: true,
	OutcomeCanceled:    true,
}

// IsValid returns true if the outcome is a valid value.
func (o IterationOutcome) IsValid() bool {
	return validOutcomes[o]
}

// maxRecordedOutput bounds the assistant output kept in a record.
const maxRecordedOutput = 16 * 1024

// IterationRecord is the audit record written for every iteration.
type IterationRecord struct {
	// IterationID is the unique identifier for this iteration.
	IterationID string `json:"iteration_id"`

	// Iteration is the 1-based iteration number within the run.
	Iteration int `json:"iteration"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// PromptBytes is the size of the prompt sent to the assistant.
	PromptBytes int `json:"prompt_bytes"`

	// Output is the assistant output, truncated for storage.
	Output string `json:"output,omitempty"`

	// Error is the runner error text, if the turn failed.
	Error string `json:"error,omitempty"`

	// Signal is the terminal signal found in the output, if any.
	Signal string `json:"signal,omitempty"`

	// SignalIgnored is set when COMPLETE was overridden by open backlog tasks.
	SignalIgnored bool `json:"signal_ignored,omitempty"`

	Outcome IterationOutcome `json:"outcome"`
}

// NewIterationRecord creates a record for the given iteration number.
func NewIterationRecord(iteration int) *IterationRecord {
	return &IterationRecord{
		IterationID: GenerateIterationID(),
		Iteration:   iteration,
		StartTime:   time.Now(),
	}
}

// Duration returns the duration of the iteration.
func (r *IterationRecord) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Complete marks the iteration as finished with the given outcome.
func (r *IterationRecord) Complete(outcome IterationOutcome) {
	r.EndTime = time.Now()
	r.Outcome = outcome
}

// SetOutput stores output, keeping only its tail when it is very long.
func (r *IterationRecord) SetOutput(output string) {
	if len(output) > maxRecordedOutput {
		output = "...[truncated]\n" + output[len(output)-maxRecordedOutput:]
	}
	r.Output = output
}

// GenerateIterationID generates a unique iteration ID.
func GenerateIterationID() string {
	return uuid.New().String()[:8]
}

// SaveRecord writes an iteration record to logsDir and returns its path.
func SaveRecord(logsDir string, record *IterationRecord) (string, error) {
	if record == nil {
		return "", errors.New("record cannot be nil")
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(logsDir, fmt.Sprintf("iteration-%s.json", record.IterationID))

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write record: %w", err)
	}

	return path, nil
}

// LoadRecord loads an iteration record from a file.
func LoadRecord(path string) (*IterationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var record IterationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &record, nil
}

// LatestRecord returns the most recently started record in logsDir,
// or nil when there are none.
func LatestRecord(logsDir string) (*IterationRecord, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	var records []*IterationRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "iteration-") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := LoadRecord(filepath.Join(logsDir, e.Name()))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil
	}

	sort.Slice(records, func(i, j int) bool { return records[i].StartTime.After(records[j].StartTime) })
	return records[0], nil
}
