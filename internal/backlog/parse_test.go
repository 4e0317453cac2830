package backlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"open", StatusOpen},
		{"", StatusOpen},
		{"todo", StatusOpen},
		{"In Progress", StatusInProgress},
		{"in-progress", StatusInProgress},
		{"INPROGRESS", StatusInProgress},
		{"done", StatusDone},
		{"Completed", StatusDone},
		{" complete ", StatusDone},
		{"blocked", StatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusBlocked.IsValid())
	assert.False(t, Status("pending").IsValid())
}

func TestParse_BareArray(t *testing.T) {
	doc, err := Parse(`[
		{"id":"a","title":"first","status":"done","order":2},
		{"title":"second","status":"weird"}
	]`)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 2)

	assert.Equal(t, "a", doc.Tasks[0].ID)
	assert.Equal(t, StatusDone, doc.Tasks[0].Status)
	assert.Equal(t, 2, doc.Tasks[0].Order)
	assert.Equal(t, 1, doc.Tasks[0].Sequence)

	assert.Equal(t, "task-002", doc.Tasks[1].ID)
	assert.Equal(t, StatusOpen, doc.Tasks[1].Status)
	assert.Equal(t, 2, doc.Tasks[1].Order, "missing order falls back to sequence")
}

func TestParse_Document(t *testing.T) {
	doc, err := Parse(`{
		"version": 1,
		"generatedAtUtc": "2026-01-02T03:04:05Z",
		"sourceIssueCount": 1,
		"tasks": [{"id": 7, "issueNumber": "12", "title": "t", "status": "in_progress", "order": "3"}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, 1, doc.SourceIssueCount)
	assert.Equal(t, 2026, doc.GeneratedAtUTC.Year())
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "7", doc.Tasks[0].ID)
	assert.Equal(t, 12, doc.Tasks[0].IssueNumber)
	assert.Equal(t, 3, doc.Tasks[0].Order)
	assert.Equal(t, StatusInProgress, doc.Tasks[0].Status)
}

func TestParse_Malformed(t *testing.T) {
	inputs := map[string]string{
		"empty":          "",
		"whitespace":     "   \n",
		"truncated":      `[{"id":"a"`,
		"scalar":         `42`,
		"no tasks":       `{"version":1}`,
		"null tasks":     `{"tasks":null}`,
		"tasks not list": `{"tasks":{"id":"a"}}`,
		"string element": `["a"]`,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrMalformedBacklog)
		})
	}
}

func TestParse_EmptyTasksIsNotMalformed(t *testing.T) {
	doc, err := Parse(`{"tasks":[]}`)
	require.NoError(t, err)
	assert.Empty(t, doc.Tasks)
}

func TestHasOpenTasks(t *testing.T) {
	tests := []struct {
		name string
		json string
		want bool
	}{
		{"open task", `[{"status":"open"}]`, true},
		{"in progress task", `{"tasks":[{"status":"done"},{"status":"in_progress"}]}`, true},
		{"missing status defaults to open", `[{"title":"x"}]`, true},
		{"all done", `[{"status":"done"},{"status":"completed"}]`, false},
		{"blocked only", `[{"status":"blocked"}]`, false},
		{"empty list", `[]`, false},
		{"malformed assumes open", `{not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasOpenTasks(tt.json))
		})
	}
}

func TestSummarizeAndNextOpen(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: StatusDone, Order: 1},
		{ID: "b", Status: StatusOpen, Order: 4},
		{ID: "c", Status: StatusInProgress, Order: 3},
		{ID: "d", Status: StatusBlocked, Order: 2},
	}

	c := Summarize(tasks)
	assert.Equal(t, Counts{Total: 4, Open: 1, InProgress: 1, Done: 1, Blocked: 1}, c)
	assert.Equal(t, 2, c.Remaining())

	next := NextOpen(tasks)
	require.NotNil(t, next)
	assert.Equal(t, "c", next.ID)

	assert.Nil(t, NextOpen(tasks[:1]))
}
