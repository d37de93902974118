package xbased

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// BSPCache is the xbase-sourcekit process's independent state (spec.md
// §4.8/§6): the compilation database for one root, flattened into a
// per-file argument map, invalidated whenever `<root>/.compile`'s mtime
// moves. It owns no reference to the daemon's State — the BSP server is a
// separate OS process (spec.md §1) with its own lifetime.
type BSPCache struct {
	mu   sync.Mutex
	root string
	path string

	loaded   bool
	lastMod  time.Time
	fileArgs map[string]compileEntry
}

type compileEntry struct {
	directory string
	arguments []string
}

// NewBSPCache constructs an empty cache for root; nothing is read from disk
// until the first Lookup (spec.md §4.8 "lazily rebuild" semantics).
func NewBSPCache(root string) *BSPCache {
	return &BSPCache{root: root, path: CompilePath(root)}
}

// IndexPaths returns the indexStorePath/indexDatabasePath the `initialize`
// response advertises, derived from the same per-project cache directory
// the daemon's compile-database refresher uses as SYMROOT (spec.md §4.8).
func IndexPaths(root, name string) (indexStorePath, indexDatabasePath string) {
	cache := CacheRoot(root, name)
	return filepath.Join(cache, "Index.noindex", "DataStore"), filepath.Join(cache, "Index.noindex", "DataStore", "Database")
}

// Lookup returns the compiler arguments for path, per spec.md §4.8's cache
// protocol: re-stat .compile, reload and clear the cache on any mtime
// mismatch, then lazily rebuild the flattened map if empty.
func (c *BSPCache) Lookup(path string) ([]string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(); err != nil {
		return nil, "", err
	}

	entry, ok := c.fileArgs[path]
	if !ok {
		if abs, err := filepath.Abs(path); err == nil {
			entry, ok = c.fileArgs[abs]
		}
	}
	if !ok {
		return nil, "", fmt.Errorf("Missing compile arguments for %s", path)
	}
	return entry.arguments, entry.directory, nil
}

func (c *BSPCache) refreshLocked() error {
	info, err := os.Stat(c.path)
	if err != nil {
		return unexpected("stat .compile", err)
	}
	if c.loaded && info.ModTime().Equal(c.lastMod) {
		return nil
	}

	// The daemon holds an exclusive gofrs/flock lock over `.compile.lock`
	// while regenerating (compiledb.go); a shared lock here pairs with
	// that so this read never observes a torn write.
	lock := flock.New(c.path + ".lock")
	lockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := lock.TryRLockContext(lockCtx, 20*time.Millisecond)
	if err != nil || !locked {
		return unexpected("acquiring compile database read lock", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return unexpected("reading .compile", err)
	}
	var commands []CompileCommand
	if err := json.Unmarshal(data, &commands); err != nil {
		return unexpected("decoding .compile", err)
	}

	c.fileArgs = flattenCompileCommands(commands)
	c.lastMod = info.ModTime()
	c.loaded = true
	return nil
}

// flattenCompileCommands builds the {path -> args} map spec.md §4.8 calls
// for, keyed by the absolute source path.
func flattenCompileCommands(commands []CompileCommand) map[string]compileEntry {
	m := make(map[string]compileEntry, len(commands))
	for _, cmd := range commands {
		key := cmd.File
		if !filepath.IsAbs(key) {
			key = filepath.Join(cmd.Directory, cmd.File)
		}
		m[key] = compileEntry{directory: cmd.Directory, arguments: cmd.Arguments}
	}
	return m
}
