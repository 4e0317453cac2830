// Package prompt assembles the per-iteration prompt sent to the assistant and
// reads control signals back out of its output.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/yarlson/coralph/internal/issues"
)

// Section headings, in the order they appear in a combined prompt.
const (
	SectionIssues         = "# ISSUES_JSON"
	SectionGeneratedTasks = "# GENERATED_TASKS_JSON"
	SectionPRFeedback     = "# PR_FEEDBACK"
	SectionProgress       = "# PROGRESS_SO_FAR"
	SectionInstructions   = "# INSTRUCTIONS"
	SectionOutputRules    = "# OUTPUT_RULES"
)

// EmptyProgress stands in for a blank progress file.
const EmptyProgress = "(empty)"

const preamble = `You are running inside a loop. Use the files and repository as your source of truth.
Stop condition: when everything is done, output EXACTLY: <promise>COMPLETE</promise>.`

const prModeHeader = `# WORKFLOW MODE: PULL REQUEST
You are operating in PR mode. The default branch is protected or you lack direct push rights.
- Do NOT push directly to main.
- Work on the branch coralph/issue-<number> for the issue you pick.
- Push that branch and open or update a pull request that references the issue.
- Address any reviewer feedback included below before starting new work.`

const outputRules = `- If you are done, output EXACTLY: <promise>COMPLETE</promise>
- Otherwise, output what you changed and what you will do next iteration.`

// Options carries the optional parts of a combined prompt.
type Options struct {
	// PRMode adds the pull-request workflow header.
	PRMode bool

	// PRFeedback is reviewer feedback keyed by issue number.
	// Only rendered in PR mode.
	PRFeedback map[int]issues.PRFeedback

	// BacklogJSON is the generated task backlog. Omitted when blank.
	BacklogJSON string
}

// BuildCombinedPrompt renders the prompt for one iteration. The output is
// deterministic for a given input and the section order is fixed.
func BuildCombinedPrompt(template, issuesJSON, progress string, opts Options) string {
	var sb strings.Builder

	sb.WriteString(preamble)
	sb.WriteString("\n\n")

	if opts.PRMode {
		sb.WriteString(prModeHeader)
		sb.WriteString("\n\n")
	}

	writeFenced(&sb, SectionIssues, "json", strings.TrimSpace(issuesJSON))

	if backlog := strings.TrimSpace(opts.BacklogJSON); backlog != "" {
		writeFenced(&sb, SectionGeneratedTasks, "json", backlog)
	}

	if opts.PRMode && len(opts.PRFeedback) > 0 {
		if data, err := json.MarshalIndent(opts.PRFeedback, "", "  "); err == nil {
			writeFenced(&sb, SectionPRFeedback, "json", string(data))
		}
	}

	progressText := strings.TrimSpace(progress)
	if progressText == "" {
		progressText = EmptyProgress
	}
	writeFenced(&sb, SectionProgress, "text", progressText)

	sb.WriteString(SectionInstructions)
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(template))
	sb.WriteString("\n\n")

	sb.WriteString(SectionOutputRules)
	sb.WriteString("\n")
	sb.WriteString(outputRules)
	return sb.String()
}

func writeFenced(sb *strings.Builder, heading, lang, body string) {
	sb.WriteString(heading)
	sb.WriteString("\n```")
	sb.WriteString(lang)
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n```\n\n")
}

// TryGetHasOpenIssues reports whether issuesJSON contains an open issue.
// Malformed input is an error rather than an empty list.
func TryGetHasOpenIssues(issuesJSON string) (bool, error) {
	return issues.HasOpen(issuesJSON)
}

// TruncateProgress keeps the last maxBytes of text, prefixed with a marker,
// so the newest notes survive. maxBytes <= 0 disables truncation.
func TruncateProgress(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := len(text) - maxBytes
	// Avoid splitting a line.
	if nl := strings.IndexByte(text[cut:], '\n'); nl >= 0 && nl < maxBytes-1 {
		cut += nl + 1
	}
	return "[earlier progress truncated]\n" + text[cut:]
}
