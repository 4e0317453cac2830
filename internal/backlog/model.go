// Package backlog maintains generated_tasks.json, the persisted task list the
// assistant works through.
package backlog

import (
	"strings"
	"time"
)

// Status represents the normalised state of a generated task.
type Status string

const (
	// StatusOpen indicates the task has not been started.
	StatusOpen Status = "open"
	// StatusInProgress indicates the assistant is working on the task.
	StatusInProgress Status = "in_progress"
	// StatusDone indicates the task is finished.
	StatusDone Status = "done"
	// StatusBlocked indicates the task cannot progress.
	StatusBlocked Status = "blocked"
)

var validStatuses = map[Status]bool{
	StatusOpen:       true,
	StatusInProgress: true,
	StatusDone:       true,
	StatusBlocked:    true,
}

// IsValid returns true if the status is one of the closed set.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsOpen reports whether work remains on a task with this status.
func (s Status) IsOpen() bool {
	return s == StatusOpen || s == StatusInProgress
}

// NormalizeStatus maps free-text status values onto the closed set.
// Unrecognised values become StatusOpen.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "done", "completed", "complete":
		return StatusDone
	case "in_progress", "inprogress":
		return StatusInProgress
	case "blocked":
		return StatusBlocked
	default:
		return StatusOpen
	}
}

// Origin values for generated tasks.
const (
	OriginIssue     = "issue"
	OriginChecklist = "checklist"
)

// Task is one unit of work derived from an issue.
type Task struct {
	ID          string `json:"id"`
	StableKey   string `json:"stableKey"`
	IssueNumber int    `json:"issueNumber"`
	IssueTitle  string `json:"issueTitle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	Origin      string `json:"origin"`
	Order       int    `json:"order"`

	// Sequence is the parse position, used when Order is missing.
	Sequence int `json:"-"`
}

// DocumentVersion is written into newly generated backlogs.
const DocumentVersion = 1

// Document is the on-disk backlog.
type Document struct {
	Version          int       `json:"version"`
	GeneratedAtUTC   time.Time `json:"generatedAtUtc"`
	SourceIssueCount int       `json:"sourceIssueCount"`
	Tasks            []Task    `json:"tasks"`
}

// Counts summarises a backlog by status.
type Counts struct {
	Total      int
	Open       int
	InProgress int
	Done       int
	Blocked    int
}

// Remaining is the number of tasks still needing work.
func (c Counts) Remaining() int {
	return c.Open + c.InProgress
}

// Summarize counts tasks by status.
func Summarize(tasks []Task) Counts {
	var c Counts
	for _, t := range tasks {
		c.Total++
		switch t.Status {
		case StatusInProgress:
			c.InProgress++
		case StatusDone:
			c.Done++
		case StatusBlocked:
			c.Blocked++
		default:
			c.Open++
		}
	}
	return c
}

// NextOpen returns the first open or in-progress task by order, or nil.
func NextOpen(tasks []Task) *Task {
	var next *Task
	for i := range tasks {
		t := &tasks[i]
		if !t.Status.IsOpen() {
			continue
		}
		if next == nil || t.Order < next.Order {
			next = t
		}
	}
	return next
}
