package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/yarlson/coralph/internal/backlog"
	"github.com/yarlson/coralph/internal/filecache"
	"github.com/yarlson/coralph/internal/issues"
)

// Tool names exposed to API-backed assistants.
const (
	ToolListOpenIssues     = "list_open_issues"
	ToolListGeneratedTasks = "list_generated_tasks"
	ToolGetProgressSummary = "get_progress_summary"
	ToolSearchProgress     = "search_progress"
)

const defaultRecentEntries = 5

// ToolExecutor answers one tool call. Arguments are the raw JSON object sent
// by the model; the result is marshalled back as JSON.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (any, error)

// RegisteredTool pairs a function definition with its executor.
type RegisteredTool struct {
	Definition openai.FunctionDefinition
	Executor   ToolExecutor
}

// ToolRegistry holds the tools offered to the model.
type ToolRegistry struct {
	tools map[string]RegisteredTool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]RegisteredTool)}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.tools[tool.Definition.Name] = tool
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tools in the shape the chat completion API expects.
func (r *ToolRegistry) Definitions() []openai.Tool {
	out := make([]openai.Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		def := r.tools[name].Definition
		out = append(out, openai.Tool{Type: openai.ToolTypeFunction, Function: &def})
	}
	return out
}

// Execute runs the named tool and renders its result as JSON. Failures are
// reported to the model as {"error": ...} rather than ending the turn.
func (r *ToolRegistry) Execute(ctx context.Context, name, arguments string) string {
	tool, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	raw := json.RawMessage(strings.TrimSpace(arguments))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	result, err := tool.Executor(ctx, raw)
	if err != nil {
		return errorResult(err.Error())
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorResult(fmt.Sprintf("encoding %s result: %v", name, err))
	}
	return string(data)
}

func errorResult(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

// StateFiles names the loop files the default tools read.
type StateFiles struct {
	Issues   string
	Progress string
	Backlog  string
}

// DefaultTools registers the read-only state tools. Every read goes through
// cache, so tool answers agree with what the loop itself sees.
func DefaultTools(cache *filecache.Cache, files StateFiles) *ToolRegistry {
	st := stateTools{cache: cache, files: files}
	r := NewToolRegistry()

	r.Register(RegisteredTool{
		Definition: openai.FunctionDefinition{
			Name:        ToolListOpenIssues,
			Description: "List issues from the issues file. Closed issues are skipped unless includeClosed is true.",
			Parameters: objectSchema(map[string]any{
				"includeClosed": map[string]any{"type": "boolean", "description": "Also return closed issues."},
			}),
		},
		Executor: st.listOpenIssues,
	})
	r.Register(RegisteredTool{
		Definition: openai.FunctionDefinition{
			Name:        ToolListGeneratedTasks,
			Description: "List the generated task backlog with each task's status.",
			Parameters:  objectSchema(map[string]any{}),
		},
		Executor: st.listGeneratedTasks,
	})
	r.Register(RegisteredTool{
		Definition: openai.FunctionDefinition{
			Name:        ToolGetProgressSummary,
			Description: "Return the most recent entries of the progress log. Entries are separated by lines of ---.",
			Parameters: objectSchema(map[string]any{
				"recentEntries": map[string]any{"type": "integer", "description": "How many entries to return (default 5)."},
			}),
		},
		Executor: st.progressSummary,
	})
	r.Register(RegisteredTool{
		Definition: openai.FunctionDefinition{
			Name:        ToolSearchProgress,
			Description: "Find progress log lines containing searchTerm, ignoring case.",
			Parameters: objectSchema(map[string]any{
				"searchTerm": map[string]any{"type": "string", "description": "Text to look for."},
			}, "searchTerm"),
		},
		Executor: st.searchProgress,
	})
	return r
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

type stateTools struct {
	cache *filecache.Cache
	files StateFiles
}

type issueSummary struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	State  string `json:"state"`
}

type listIssuesResult struct {
	Count  int            `json:"count"`
	Issues []issueSummary `json:"issues"`
}

func (st stateTools) listOpenIssues(ctx context.Context, arguments json.RawMessage) (any, error) {
	var args struct {
		IncludeClosed bool `json:"includeClosed"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	content, err := st.read(ctx, st.files.Issues)
	if err != nil {
		return nil, err
	}
	all, err := issues.Parse(content)
	if err != nil {
		return nil, err
	}

	out := listIssuesResult{Issues: []issueSummary{}}
	for _, is := range all {
		if !args.IncludeClosed && !is.IsOpen() {
			continue
		}
		state := strings.ToLower(strings.TrimSpace(is.State))
		if state == "" {
			state = "open"
		}
		out.Issues = append(out.Issues, issueSummary{Number: is.Number, Title: is.Title, Body: is.Body, State: state})
	}
	out.Count = len(out.Issues)
	return out, nil
}

type taskSummary struct {
	ID          string         `json:"id"`
	IssueNumber int            `json:"issueNumber"`
	Title       string         `json:"title"`
	Status      backlog.Status `json:"status"`
}

type listTasksResult struct {
	Total     int           `json:"total"`
	Remaining int           `json:"remaining"`
	Tasks     []taskSummary `json:"tasks"`
}

func (st stateTools) listGeneratedTasks(ctx context.Context, _ json.RawMessage) (any, error) {
	content, err := st.read(ctx, st.files.Backlog)
	if err != nil {
		return nil, err
	}
	doc, err := backlog.Parse(content)
	if err != nil {
		return nil, err
	}

	tasks := doc.Tasks
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	out := listTasksResult{Tasks: make([]taskSummary, 0, len(tasks))}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, taskSummary{ID: t.ID, IssueNumber: t.IssueNumber, Title: t.Title, Status: t.Status})
	}
	counts := backlog.Summarize(tasks)
	out.Total = counts.Total
	out.Remaining = counts.Remaining()
	return out, nil
}

type progressSummaryResult struct {
	TotalEntries  int      `json:"totalEntries"`
	RecentEntries []string `json:"recentEntries"`
	Message       string   `json:"message,omitempty"`
}

func (st stateTools) progressSummary(ctx context.Context, arguments json.RawMessage) (any, error) {
	var args struct {
		RecentEntries int `json:"recentEntries"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RecentEntries <= 0 {
		args.RecentEntries = defaultRecentEntries
	}

	content, err := st.read(ctx, st.files.Progress)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return progressSummaryResult{RecentEntries: []string{}, Message: filepath.Base(st.files.Progress) + " is empty"}, nil
	}

	entries := splitProgressEntries(content)
	recent := entries
	if len(recent) > args.RecentEntries {
		recent = recent[len(recent)-args.RecentEntries:]
	}
	return progressSummaryResult{TotalEntries: len(entries), RecentEntries: recent}, nil
}

// splitProgressEntries splits the log on separator lines made only of dashes.
func splitProgressEntries(content string) []string {
	var entries []string
	var cur []string
	flush := func() {
		if text := strings.TrimSpace(strings.Join(cur, "\n")); text != "" {
			entries = append(entries, text)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= 3 && strings.Trim(trimmed, "-") == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return entries
}

type progressMatch struct {
	LineNumber int    `json:"lineNumber"`
	Text       string `json:"text"`
}

type searchProgressResult struct {
	SearchTerm string          `json:"searchTerm"`
	MatchCount int             `json:"matchCount"`
	Matches    []progressMatch `json:"matches"`
}

func (st stateTools) searchProgress(ctx context.Context, arguments json.RawMessage) (any, error) {
	var args struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	term := strings.TrimSpace(args.SearchTerm)
	if term == "" {
		return nil, errors.New("searchTerm cannot be empty")
	}

	content, err := st.read(ctx, st.files.Progress)
	if err != nil {
		return nil, err
	}

	out := searchProgressResult{SearchTerm: term, Matches: []progressMatch{}}
	needle := strings.ToLower(term)
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			out.Matches = append(out.Matches, progressMatch{LineNumber: i + 1, Text: strings.TrimSpace(line)})
		}
	}
	out.MatchCount = len(out.Matches)
	return out, nil
}

func (st stateTools) read(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", errors.New("file not configured")
	}
	entry, err := st.cache.TryRead(ctx, path)
	if err != nil {
		return "", err
	}
	if !entry.Exists {
		return "", fmt.Errorf("%s not found", filepath.Base(path))
	}
	return entry.Content, nil
}
