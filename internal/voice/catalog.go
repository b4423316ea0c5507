// Package voice lists the piper voice models installed in a directory.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/ttsd/internal/xfs"
	"github.com/fsnotify/fsnotify"
)

// Ext is the file extension of a piper voice model.
const Ext = ".onnx"

const debounce = 200 * time.Millisecond

// Catalog enumerates *.onnx files in a voice directory. Listings are cached
// only while Watch is running, since only then do changes invalidate them.
type Catalog struct {
	dir      string
	cached   []string
	mu       sync.RWMutex
	watching atomic.Bool
	reloads  atomic.Uint32
}

// NewCatalog creates a catalog for dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: xfs.ExpandTilde(dir)}
}

// Dir returns the voice directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns the voice names (file names without extension), sorted.
func (c *Catalog) List() ([]string, error) {
	if c.watching.Load() {
		c.mu.RLock()
		cached := c.cached
		c.mu.RUnlock()
		if cached != nil {
			return slices.Clone(cached), nil
		}
	}

	gen := c.reloads.Load()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list voices in %s: %w", c.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	slices.Sort(names)

	// A listing that raced with an invalidation is not cached.
	c.mu.Lock()
	if c.watching.Load() && gen == c.reloads.Load() {
		c.cached = names
	}
	c.mu.Unlock()
	return slices.Clone(names), nil
}

// Path returns the model file of the named voice.
func (c *Catalog) Path(name string) string {
	return filepath.Join(c.dir, name+Ext)
}

// Exists reports whether the named voice is installed. Names that would
// escape the voice directory never exist.
func (c *Catalog) Exists(name string) bool {
	if !validName(name) {
		return false
	}
	return xfs.Exists(c.Path(name))
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Invalidate drops the cached listing.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	count := c.reloads.Add(1)
	c.mu.Unlock()

	slog.Debug("Voice catalog invalidated", "dir", c.dir, "count", count)
}

// Invalidations returns how often the cache was dropped.
func (c *Catalog) Invalidations() uint32 {
	return c.reloads.Load()
}

// Watch caches listings and drops the cache whenever a voice file appears,
// disappears or changes. It blocks until ctx ends.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("failed to watch voice dir %s: %w", c.dir, err)
	}

	c.Invalidate()
	c.watching.Store(true)
	defer func() {
		c.watching.Store(false)
		c.Invalidate()
	}()

	slog.Info("Watching voice directory", "dir", c.dir)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, Ext) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}

			// Drop immediately so readers never see a removed voice, then
			// again after the burst settles.
			c.Invalidate()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, c.Invalidate)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

// Watching reports whether Watch is running.
func (c *Catalog) Watching() bool {
	return c.watching.Load()
}
