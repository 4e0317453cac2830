package issues

import (
	"context"
	"fmt"
)

// Source produces the current set of open issues.
type Source interface {
	FetchOpenIssues(ctx context.Context) ([]Issue, error)
}

// FileWriter writes a tracked file and drops its cached content.
type FileWriter interface {
	Write(path, content string) error
}

// Refresh replaces the issues file with the source's open issues and returns
// how many were written.
func Refresh(ctx context.Context, src Source, path string, w FileWriter) (int, error) {
	fetched, err := src.FetchOpenIssues(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching issues: %w", err)
	}

	content, err := Marshal(fetched)
	if err != nil {
		return 0, err
	}
	if err := w.Write(path, content); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(fetched), nil
}
