// Package issues models the issues file consumed by the loop and the
// GitHub collaborators that produce it.
package issues

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIssues is returned when the issues JSON cannot be parsed.
var ErrMalformedIssues = errors.New("malformed issues JSON")

// Issue is one entry of issues.json. Only Number and Title are expected;
// every other field is optional.
type Issue struct {
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	Body     string    `json:"body,omitempty"`
	State    string    `json:"state,omitempty"`
	URL      string    `json:"url,omitempty"`
	Labels   []Label   `json:"labels,omitempty"`
	Comments []Comment `json:"comments,omitempty"`
}

// Label is an issue label. Both `"bug"` and `{"name":"bug"}` decode.
type Label struct {
	Name string `json:"name"`
}

// UnmarshalJSON accepts a bare string or an object.
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.Name = s
		return nil
	}
	type plain Label
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Label(p)
	return nil
}

// Comment is a comment on an issue.
type Comment struct {
	Author string `json:"author,omitempty"`
	Body   string `json:"body"`
}

// IsOpen reports whether the issue still needs work. A missing state counts as open.
func (i Issue) IsOpen() bool {
	s := strings.TrimSpace(i.State)
	return s == "" || strings.EqualFold(s, "open")
}

// ParseError describes why issues JSON was rejected.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse issues JSON: %v", e.Err)
}

// Unwrap exposes ErrMalformedIssues and the decoder error.
func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedIssues, e.Err}
}

// Parse decodes issues JSON. The document must be a JSON array; blank input
// is rejected rather than read as "no issues".
func Parse(issuesJSON string) ([]Issue, error) {
	trimmed := strings.TrimSpace(issuesJSON)
	if trimmed == "" {
		return nil, &ParseError{Err: errors.New("empty document")}
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &ParseError{Err: errors.New("expected a JSON array of issues")}
	}

	var out []Issue
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, &ParseError{Err: err}
	}
	return out, nil
}

// Open filters to open issues, keeping order.
func Open(all []Issue) []Issue {
	out := make([]Issue, 0, len(all))
	for _, i := range all {
		if i.IsOpen() {
			out = append(out, i)
		}
	}
	return out
}

// HasOpen parses issuesJSON and reports whether any issue is open.
func HasOpen(issuesJSON string) (bool, error) {
	all, err := Parse(issuesJSON)
	if err != nil {
		return false, err
	}
	return len(Open(all)) > 0, nil
}

// Marshal renders issues as indented JSON with a trailing newline.
func Marshal(all []Issue) (string, error) {
	if all == nil {
		all = []Issue{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return "", fmt.Errorf("encoding issues: %w", err)
	}
	return buf.String(), nil
}
