// Package importcache caches whatever a Load callback returns for an
// imported XMD file (§4.3's `import` statement, §4.4's `import`
// directive) keyed by its resolved path; the Engine in xmd.go stores the
// raw file text here, never the rendered result. An entry is invalidated
// once fsnotify reports the underlying file changed (events are
// debounced by 100ms). This follows the spec_sync watcher shape used
// elsewhere in the pack (debounced fsnotify.Watcher feeding a single
// apply/invalidate path) adapted from a Redis-backed config reloader to
// an in-memory file-content cache.
package importcache

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type entry struct {
	content string
}

// Cache memoizes Load results per resolved file path until fsnotify
// reports the file changed, removed, or renamed.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	dirs    map[string]int // watched directory -> refcount

	watcher *fsnotify.Watcher
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New starts an fsnotify watcher and returns a ready Cache. Call Close
// when the cache is no longer needed to release the watcher.
func New(logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &Cache{
		entries: make(map[string]entry),
		dirs:    make(map[string]int),
		watcher: w,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// Close stops the underlying watcher. Safe to call more than once.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.watcher.Close()
	})
	return err
}

// Load returns the cached content of path, calling render and caching
// its result on a miss. A later filesystem change to path evicts the
// entry so the next Load call calls render again.
func (c *Cache) Load(path string, render func() (string, error)) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	c.mu.RLock()
	if e, ok := c.entries[abs]; ok {
		c.mu.RUnlock()
		return e.content, nil
	}
	c.mu.RUnlock()

	content, err := render()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[abs] = entry{content: content}
	c.mu.Unlock()
	c.watchDir(abs)
	return content, nil
}

// watchDir adds abs's parent directory to the watcher the first time
// any cached path lives there; fsnotify on most platforms only reports
// events reliably at the directory level, not on individual files.
func (c *Cache) watchDir(abs string) {
	dir := filepath.Dir(abs)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirs[dir] == 0 {
		if err := c.watcher.Add(dir); err != nil {
			c.logger.Warn("importcache: watch directory failed", "dir", dir, "error", err)
			return
		}
	}
	c.dirs[dir]++
}

func (c *Cache) run() {
	var t *time.Timer
	pending := make(map[string]bool)
	var mu sync.Mutex

	flush := func() {
		mu.Lock()
		paths := pending
		pending = make(map[string]bool)
		mu.Unlock()

		c.mu.Lock()
		for p := range paths {
			delete(c.entries, p)
		}
		c.mu.Unlock()
	}

	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				continue
			}
			mu.Lock()
			pending[ev.Name] = true
			mu.Unlock()
			if t != nil {
				t.Stop()
			}
			t = time.AfterFunc(100*time.Millisecond, flush)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("importcache: watch error", "error", err)
		}
	}
}
