package backlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Invalidator drops cached content for a path.
type Invalidator interface {
	Invalidate(path string)
}

var deletingSignals = map[string]bool{
	"COMPLETE":           true,
	"ALL_TASKS_COMPLETE": true,
	"NO_OPEN_ISSUES":     true,
}

// ShouldDeleteForTerminalSignal reports whether stopping on signal means the
// backlog is finished with. Anything else, including budget exhaustion,
// keeps the file so the run can resume.
func ShouldDeleteForTerminalSignal(signal string) bool {
	return deletingSignals[strings.ToUpper(strings.TrimSpace(signal))]
}

// TryDelete removes the backlog at path. It returns false without error when
// path is empty or the file is already gone. A successful delete invalidates
// the cached entry. Failures are returned for the caller to report.
func TryDelete(path string, cache Invalidator) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if cache != nil {
				cache.Invalidate(path)
			}
			return false, nil
		}
		return false, fmt.Errorf("deleting backlog %s: %w", path, err)
	}

	if cache != nil {
		cache.Invalidate(path)
	}
	return true, nil
}
