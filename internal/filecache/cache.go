// Package filecache caches the mutable state files read by the loop.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotRegularFile is returned when a tracked path points at a directory or device.
var ErrNotRegularFile = errors.New("not a regular file")

// Entry is the result of a cached read.
type Entry struct {
	Path    string
	Exists  bool
	Content string
	ReadAt  time.Time
}

type cached struct {
	entry   Entry
	size    int64
	modTime time.Time
}

// Cache maps file paths to their last read content.
// A cached entry is reused only while the file's size and modification time
// are unchanged. A same-size rewrite that lands inside one timestamp tick is
// not detected; callers that hand files to another process call Invalidate
// once that process is done.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cached
	flight  singleflight.Group

	now  func() time.Time
	stat func(string) (fs.FileInfo, error)
	read func(string) ([]byte, error)
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]cached),
		now:     time.Now,
		stat:    os.Stat,
		read:    os.ReadFile,
	}
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// TryRead returns the content of path. A missing file is reported with
// Exists=false and no error.
func (c *Cache) TryRead(ctx context.Context, path string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	k := key(path)
	info, statErr := c.stat(k)

	c.mu.Lock()
	hit, ok := c.entries[k]
	c.mu.Unlock()

	if ok && fresh(hit, info, statErr) {
		return hit.entry, nil
	}

	v, err, _ := c.flight.Do(k, func() (interface{}, error) {
		return c.load(path, k)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func fresh(hit cached, info fs.FileInfo, statErr error) bool {
	if statErr != nil {
		return !hit.entry.Exists && errors.Is(statErr, fs.ErrNotExist)
	}
	return hit.entry.Exists && hit.size == info.Size() && hit.modTime.Equal(info.ModTime())
}

func (c *Cache) load(path, k string) (Entry, error) {
	info, err := c.stat(k)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e := Entry{Path: path, ReadAt: c.now()}
			c.store(k, cached{entry: e})
			return e, nil
		}
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	data, err := c.read(k)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e := Entry{Path: path, ReadAt: c.now()}
			c.store(k, cached{entry: e})
			return e, nil
		}
		return Entry{}, fmt.Errorf("reading %s: %w", path, err)
	}

	e := Entry{Path: path, Exists: true, Content: string(data), ReadAt: c.now()}
	c.store(k, cached{entry: e, size: info.Size(), modTime: info.ModTime()})
	return e, nil
}

func (c *Cache) store(k string, v cached) {
	c.mu.Lock()
	c.entries[k] = v
	c.mu.Unlock()
}

// Invalidate drops any cached entry for path.
func (c *Cache) Invalidate(path string) {
	k := key(path)
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
	c.flight.Forget(k)
}

// Write replaces the content of path atomically and invalidates its entry.
func (c *Cache) Write(path, content string) error {
	defer c.Invalidate(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
