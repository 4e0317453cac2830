// Package memory manages progress.txt, the free-form notes the assistant
// carries from one iteration to the next.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yarlson/coralph/internal/filecache"
)

// ProgressFile manages the progress file at a single path.
type ProgressFile struct {
	path string
}

// NewProgressFile creates a ProgressFile manager for the given path.
func NewProgressFile(path string) *ProgressFile {
	return &ProgressFile{path: path}
}

// Ensure creates an empty progress file if none exists. It reports whether
// the file was created. Existing content is never touched.
func (p *ProgressFile) Ensure() (bool, error) {
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("creating progress directory: %w", err)
		}
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating progress file: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("closing progress file: %w", err)
	}
	return true, nil
}

// Read returns the progress text through cache. A missing file reads as empty.
func (p *ProgressFile) Read(ctx context.Context, cache *filecache.Cache) (string, error) {
	entry, err := cache.TryRead(ctx, p.path)
	if err != nil {
		return "", fmt.Errorf("reading progress file: %w", err)
	}
	return entry.Content, nil
}

// Path returns the file path of the progress file.
func (p *ProgressFile) Path() string {
	return p.path
}
