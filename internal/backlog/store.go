package backlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/filecache"
	"github.com/yarlson/coralph/internal/issues"
)

// Store owns the backlog file at a single path.
type Store struct {
	path  string
	cache *filecache.Cache
	now   func() time.Time
}

// NewStore creates a store for the backlog at path, reading through cache.
func NewStore(path string, cache *filecache.Cache) *Store {
	return &Store{path: path, cache: cache, now: time.Now}
}

// Path returns the backlog file path.
func (s *Store) Path() string {
	return s.path
}

// Ensure returns the current backlog, deriving and persisting one from
// issuesJSON when the file does not exist yet. An existing file is returned
// unchanged, including edits made by the assistant.
func (s *Store) Ensure(ctx context.Context, issuesJSON string) (string, error) {
	entry, err := s.cache.TryRead(ctx, s.path)
	if err != nil {
		return "", fmt.Errorf("reading backlog: %w", err)
	}
	if entry.Exists {
		return entry.Content, nil
	}

	all, err := issues.Parse(issuesJSON)
	if err != nil {
		return "", fmt.Errorf("deriving backlog: %w", err)
	}
	doc := Derive(all, s.now())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding backlog: %w", err)
	}
	content := string(data) + "\n"
	if err := s.cache.Write(s.path, content); err != nil {
		return "", fmt.Errorf("writing backlog: %w", err)
	}

	log.Info().
		Str("backlog_file", s.path).
		Int("tasks", len(doc.Tasks)).
		Int("issues", doc.SourceIssueCount).
		Msg("generated task backlog")
	return content, nil
}

// Read returns the backlog content and whether the file exists.
func (s *Store) Read(ctx context.Context) (string, bool, error) {
	entry, err := s.cache.TryRead(ctx, s.path)
	if err != nil {
		return "", false, fmt.Errorf("reading backlog: %w", err)
	}
	return entry.Content, entry.Exists, nil
}

// Load parses the backlog file. A missing file yields an empty document.
func (s *Store) Load(ctx context.Context) (Document, bool, error) {
	content, exists, err := s.Read(ctx)
	if err != nil || !exists {
		return Document{}, exists, err
	}
	doc, err := Parse(content)
	return doc, true, err
}

// HasOpenTasks reports whether the persisted backlog still has work in it.
// A missing backlog has none; an unreadable or malformed one is assumed to.
func (s *Store) HasOpenTasks(ctx context.Context) (bool, error) {
	content, exists, err := s.Read(ctx)
	if err != nil {
		return true, err
	}
	if !exists {
		return false, nil
	}
	return HasOpenTasks(content), nil
}

// Delete removes the backlog file. See TryDelete.
func (s *Store) Delete() (bool, error) {
	return TryDelete(s.path, s.cache)
}
