package backlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/coralph/internal/filecache"
)

const oneOpenIssue = `[{"number":1,"title":"Only issue","body":"do it"}]`

func newTestStore(t *testing.T) (*Store, *filecache.Cache) {
	t.Helper()
	cache := filecache.New()
	s := NewStore(filepath.Join(t.TempDir(), "generated_tasks.json"), cache)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s, cache
}

func TestStore_EnsureCreatesBacklog(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	content, err := s.Ensure(ctx, oneOpenIssue)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(onDisk), content)

	doc, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, StatusOpen, doc.Tasks[0].Status)
	assert.Contains(t, content, `"generatedAtUtc": "2026-01-01T00:00:00Z"`)
}

func TestStore_EnsureKeepsExistingBacklog(t *testing.T) {
	s, _ := newTestStore(t)
	existing := `[{"id":"mine","status":"done"}]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(existing), 0o644))

	content, err := s.Ensure(context.Background(), oneOpenIssue)
	require.NoError(t, err)
	assert.Equal(t, existing, content)
}

func TestStore_EnsureSeesExternalEdits(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Ensure(ctx, oneOpenIssue)
	require.NoError(t, err)

	edited := `{"tasks":[{"id":"issue-1-1","status":"done"}]}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(edited), 0o644))

	content, err := s.Ensure(ctx, oneOpenIssue)
	require.NoError(t, err)
	assert.Equal(t, edited, content)

	open, err := s.HasOpenTasks(ctx)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestStore_EnsureRejectsMalformedIssues(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Ensure(context.Background(), "{")
	assert.Error(t, err)
	assert.NoFileExists(t, s.Path())
}

func TestStore_HasOpenTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("missing backlog has none", func(t *testing.T) {
		s, _ := newTestStore(t)
		open, err := s.HasOpenTasks(ctx)
		require.NoError(t, err)
		assert.False(t, open)
	})

	t.Run("malformed backlog assumed open", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, os.WriteFile(s.Path(), []byte("garbage"), 0o644))
		open, err := s.HasOpenTasks(ctx)
		require.NoError(t, err)
		assert.True(t, open)
	})

	t.Run("unreadable backlog assumed open", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, os.Mkdir(s.Path(), 0o755))
		open, err := s.HasOpenTasks(ctx)
		assert.ErrorIs(t, err, filecache.ErrNotRegularFile)
		assert.True(t, open)
	})
}

func TestStore_DeleteInvalidatesCache(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Ensure(ctx, oneOpenIssue)
	require.NoError(t, err)

	deleted, err := s.Delete()
	require.NoError(t, err)
	assert.True(t, deleted)

	_, exists, err := s.Read(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}
