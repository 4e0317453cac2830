package backlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/coralph/internal/issues"
)

func TestDerive(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))
	all := []issues.Issue{
		{Number: 101, Title: "Add hello command", Body: "Steps:\n- [ ] Create command\r\n- [x] Write docs\n* [ ] Add test"},
		{Number: 102, Title: "Closed one", State: "closed", Body: "- [ ] ignored"},
		{Number: 103, Title: "Fix typo in README!", Body: "There is a typo."},
	}

	doc := Derive(all, now)

	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, 2, doc.SourceIssueCount)
	assert.Equal(t, time.UTC, doc.GeneratedAtUTC.Location())
	require.Len(t, doc.Tasks, 4)

	first := doc.Tasks[0]
	assert.Equal(t, "issue-101-1", first.ID)
	assert.Equal(t, "101:create-command", first.StableKey)
	assert.Equal(t, "Create command", first.Title)
	assert.Equal(t, OriginChecklist, first.Origin)
	assert.Equal(t, StatusOpen, first.Status)
	assert.Equal(t, 1, first.Order)

	assert.Equal(t, StatusDone, doc.Tasks[1].Status)
	assert.Equal(t, "Add test", doc.Tasks[2].Title)
	assert.Equal(t, 3, doc.Tasks[2].Order)

	last := doc.Tasks[3]
	assert.Equal(t, "issue-103-1", last.ID)
	assert.Equal(t, "103:fix-typo-in-readme", last.StableKey)
	assert.Equal(t, OriginIssue, last.Origin)
	assert.Equal(t, "There is a typo.", last.Description)
	assert.Equal(t, 4, last.Order)
}

func TestDerive_IgnoresChecklistInCodeFence(t *testing.T) {
	doc := Derive([]issues.Issue{{Number: 1, Title: "T", Body: "```\n- [ ] not a task\n```"}}, time.Now())
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, OriginIssue, doc.Tasks[0].Origin)
}

func TestDerive_NoOpenIssues(t *testing.T) {
	doc := Derive(nil, time.Now())
	assert.NotNil(t, doc.Tasks)
	assert.Empty(t, doc.Tasks)
	assert.Zero(t, doc.SourceIssueCount)
}
