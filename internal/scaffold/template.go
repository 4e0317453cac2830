package scaffold

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yarlson/coralph/internal/config"
)

const (
	coreFeedbackHeading     = "# FEEDBACK LOOPS"
	templateFeedbackHeading = "## Feedback loops"
)

// BuildPrompt returns prompt.md content for the project type: the
// language template followed by the core workflow, with the core FEEDBACK
// LOOPS section replaced by the language's commands.
func BuildPrompt(projectType ProjectType) (string, error) {
	core, err := templates.ReadFile("templates/core.md")
	if err != nil {
		return "", err
	}
	if projectType == ProjectDotNet {
		return string(core), nil
	}

	lang, err := templates.ReadFile(fmt.Sprintf("templates/%s.md", projectType))
	if err != nil {
		return "", fmt.Errorf("no prompt template for %s: %w", projectType.Label(), err)
	}
	feedback, err := templates.ReadFile(fmt.Sprintf("templates/feedback-%s.md", projectType))
	if err != nil {
		return "", fmt.Errorf("no feedback loops for %s: %w", projectType.Label(), err)
	}

	adapted := replaceFeedbackLoops(string(core), string(feedback))
	cleaned := removeSection(string(lang), templateFeedbackHeading)
	return strings.TrimRight(cleaned, " \t\r\n") + "\n\n" + strings.TrimLeft(adapted, " \t\r\n"), nil
}

// replaceFeedbackLoops swaps the text between "# FEEDBACK LOOPS" and
// "# PROGRESS" for section. Content without both headings is returned as is.
func replaceFeedbackLoops(content, section string) string {
	start := strings.Index(content, coreFeedbackHeading)
	if start < 0 {
		return content
	}
	rel := strings.Index(content[start:], "\n# PROGRESS")
	if rel < 0 {
		return content
	}
	end := start + rel + 1

	prefix := strings.TrimRight(content[:start], " \t\r\n")
	suffix := strings.TrimLeft(content[end:], " \t\r\n")
	return prefix + "\n\n" + strings.TrimSpace(section) + "\n\n" + suffix
}

// removeSection drops a second-level markdown section and its body.
func removeSection(content, heading string) string {
	start := -1
	if strings.HasPrefix(content, heading) {
		start = 0
	} else if i := strings.Index(content, "\n"+heading); i >= 0 {
		start = i + 1
	}
	if start < 0 {
		return content
	}

	rest := content[start+len(heading):]
	next := strings.Index(rest, "\n## ")
	if next < 0 {
		return strings.TrimRight(content[:start], " \t\r\n")
	}
	end := start + len(heading) + next + 1
	return strings.TrimRight(content[:start], " \t\r\n") + "\n\n" + strings.TrimLeft(content[end:], " \t\r\n")
}

// GitignoreEntries lists the loop artifacts to ignore, relative to dir,
// deduplicated case-insensitively. Paths outside dir are dropped.
func GitignoreEntries(dir string, cfg *config.Config) []string {
	candidates := []string{
		"Coralph*",
		".coralph/",
		config.DefaultIssuesFile,
		config.DefaultGeneratedTasksFile,
		cfg.Files.Issues,
		cfg.Files.GeneratedTasks,
		cfg.Files.Progress,
	}

	seen := make(map[string]bool)
	var entries []string
	for _, c := range candidates {
		entry, ok := normalizeGitignorePath(dir, c)
		if !ok || seen[strings.ToLower(entry)] {
			continue
		}
		seen[strings.ToLower(entry)] = true
		entries = append(entries, entry)
	}
	return entries
}

func normalizeGitignorePath(dir, path string) (string, bool) {
	if strings.TrimSpace(path) == "" {
		return "", false
	}
	trailing := strings.HasSuffix(path, "/")

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(dir, full)
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(full))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	rel = filepath.ToSlash(rel)
	if trailing {
		rel += "/"
	}
	return rel, true
}

// MergeGitignoreBlock inserts or replaces the managed block in content.
// Merging the same entries twice yields the same text.
func MergeGitignoreBlock(content string, entries []string) string {
	block := gitignoreBlockStart + "\n" + strings.Join(entries, "\n") + "\n" + gitignoreBlockEnd + "\n"

	start := strings.Index(content, gitignoreBlockStart)
	end := strings.Index(content, gitignoreBlockEnd)
	if start >= 0 && end > start {
		replaceEnd := len(content)
		if nl := strings.IndexByte(content[end:], '\n'); nl >= 0 {
			replaceEnd = end + nl + 1
		}
		return strings.TrimRight(content[:start]+block+content[replaceEnd:], " \t\r\n") + "\n"
	}

	if strings.TrimSpace(content) == "" {
		return block
	}
	return strings.TrimRight(content, " \t\r\n") + "\n\n" + block
}
