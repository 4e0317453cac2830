package backlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedBacklog is returned when the backlog is neither a task array
// nor an object with a tasks array.
var ErrMalformedBacklog = errors.New("malformed backlog")

// rawTask accepts loosely typed input written by the assistant.
type rawTask struct {
	ID          json.RawMessage `json:"id"`
	StableKey   string          `json:"stableKey"`
	IssueNumber json.RawMessage `json:"issueNumber"`
	IssueTitle  string          `json:"issueTitle"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Origin      string          `json:"origin"`
	Order       json.RawMessage `json:"order"`
}

type rawDocument struct {
	Version          int             `json:"version"`
	GeneratedAtUTC   string          `json:"generatedAtUtc"`
	SourceIssueCount int             `json:"sourceIssueCount"`
	Tasks            json.RawMessage `json:"tasks"`
}

// Parse decodes a backlog in either of its two shapes and normalises every task.
func Parse(backlogJSON string) (Document, error) {
	trimmed := strings.TrimSpace(backlogJSON)
	if trimmed == "" {
		return Document{}, fmt.Errorf("%w: empty document", ErrMalformedBacklog)
	}

	var doc Document
	var tasksRaw json.RawMessage

	switch trimmed[0] {
	case '[':
		tasksRaw = json.RawMessage(trimmed)
	case '{':
		var rd rawDocument
		if err := json.Unmarshal([]byte(trimmed), &rd); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrMalformedBacklog, err)
		}
		if len(rd.Tasks) == 0 || string(rd.Tasks) == "null" {
			return Document{}, fmt.Errorf("%w: missing tasks array", ErrMalformedBacklog)
		}
		doc.Version = rd.Version
		doc.SourceIssueCount = rd.SourceIssueCount
		if ts, err := time.Parse(time.RFC3339Nano, rd.GeneratedAtUTC); err == nil {
			doc.GeneratedAtUTC = ts
		}
		tasksRaw = rd.Tasks
	default:
		return Document{}, fmt.Errorf("%w: unexpected top-level value", ErrMalformedBacklog)
	}

	var raws []rawTask
	if err := json.Unmarshal(tasksRaw, &raws); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedBacklog, err)
	}

	doc.Tasks = make([]Task, 0, len(raws))
	for i, r := range raws {
		doc.Tasks = append(doc.Tasks, normalize(r, i+1))
	}
	return doc, nil
}

func normalize(r rawTask, seq int) Task {
	t := Task{
		ID:          idString(r.ID),
		StableKey:   r.StableKey,
		IssueTitle:  r.IssueTitle,
		Title:       r.Title,
		Description: r.Description,
		Status:      NormalizeStatus(r.Status),
		Origin:      r.Origin,
		Sequence:    seq,
	}
	t.IssueNumber, _ = intValue(r.IssueNumber)
	if n, ok := intValue(r.Order); ok && n > 0 {
		t.Order = n
	} else {
		t.Order = seq
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("task-%03d", seq)
	}
	return t
}

func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// intValue reads a number or a numeric string.
func intValue(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// HasOpenTasks reports whether any task is open or in progress.
// A backlog that cannot be parsed counts as having open tasks.
func HasOpenTasks(backlogJSON string) bool {
	doc, err := Parse(backlogJSON)
	if err != nil {
		return true
	}
	for _, t := range doc.Tasks {
		if t.Status.IsOpen() {
			return true
		}
	}
	return false
}
