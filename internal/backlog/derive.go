package backlog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yarlson/coralph/internal/issues"
)

// checklistItem matches Markdown task-list lines: "- [ ] text", "* [x] text".
var checklistItem = regexp.MustCompile(`^\s*[-*+]\s+\[([ xX])\]\s+(.+?)\s*$`)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Derive builds a backlog from the open issues, preserving issue order.
// Each unchecked checklist item in an issue body becomes its own task and
// checked items are carried as done; an issue without a checklist becomes a
// single task.
func Derive(all []issues.Issue, now time.Time) Document {
	open := issues.Open(all)
	doc := Document{
		Version:          DocumentVersion,
		GeneratedAtUTC:   now.UTC(),
		SourceIssueCount: len(open),
		Tasks:            []Task{},
	}

	order := 0
	for _, issue := range open {
		items := parseChecklist(issue.Body)
		if len(items) == 0 {
			order++
			doc.Tasks = append(doc.Tasks, Task{
				ID:          fmt.Sprintf("issue-%d-1", issue.Number),
				StableKey:   stableKey(issue.Number, issue.Title),
				IssueNumber: issue.Number,
				IssueTitle:  issue.Title,
				Title:       issue.Title,
				Description: strings.TrimSpace(issue.Body),
				Status:      StatusOpen,
				Origin:      OriginIssue,
				Order:       order,
				Sequence:    order,
			})
			continue
		}

		for k, item := range items {
			order++
			status := StatusOpen
			if item.checked {
				status = StatusDone
			}
			doc.Tasks = append(doc.Tasks, Task{
				ID:          fmt.Sprintf("issue-%d-%d", issue.Number, k+1),
				StableKey:   stableKey(issue.Number, item.text),
				IssueNumber: issue.Number,
				IssueTitle:  issue.Title,
				Title:       item.text,
				Description: fmt.Sprintf("Part of #%d: %s", issue.Number, issue.Title),
				Status:      status,
				Origin:      OriginChecklist,
				Order:       order,
				Sequence:    order,
			})
		}
	}
	return doc
}

type checklistEntry struct {
	text    string
	checked bool
}

func parseChecklist(body string) []checklistEntry {
	var out []checklistEntry
	inFence := false
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := checklistItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, checklistEntry{text: m[2], checked: m[1] != " "})
	}
	return out
}

func stableKey(issueNumber int, title string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	return fmt.Sprintf("%d:%s", issueNumber, slug)
}
