package xbased

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCompileDB(t *testing.T, root string, commands []CompileCommand) {
	t.Helper()
	data, err := json.Marshal(commands)
	if err != nil {
		t.Fatalf("marshal fixture compile db: %v", err)
	}
	if err := os.WriteFile(CompilePath(root), data, 0o644); err != nil {
		t.Fatalf("writing fixture .compile: %v", err)
	}
}

// TestBSPCache_LazyLoadAndLookup verifies spec.md §4.8's base case: the
// cache reads nothing until the first Lookup, then resolves a known file.
func TestBSPCache_LazyLoadAndLookup(t *testing.T) {
	root := t.TempDir()
	writeCompileDB(t, root, []CompileCommand{
		{Directory: root, File: filepath.Join(root, "Foo.swift"), Arguments: []string{"swiftc", "Foo.swift"}},
	})

	cache := NewBSPCache(root)
	if cache.loaded || cache.fileArgs != nil {
		t.Fatal("expected nothing loaded before the first Lookup")
	}
	args, dir, err := cache.Lookup(filepath.Join(root, "Foo.swift"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if dir != root {
		t.Errorf("got directory %q, want %q", dir, root)
	}
	if len(args) != 2 || args[0] != "swiftc" {
		t.Errorf("got args %v", args)
	}
}

func TestBSPCache_LookupMissingFile(t *testing.T) {
	root := t.TempDir()
	writeCompileDB(t, root, nil)

	cache := NewBSPCache(root)
	if _, _, err := cache.Lookup(filepath.Join(root, "Nope.swift")); err == nil {
		t.Fatal("expected an error for a file absent from the compile database")
	}
}

// TestBSPCache_ReloadsOnMtimeChange verifies spec.md §8 scenario 6: once
// `.compile`'s mtime moves, the next Lookup observes the regenerated
// contents instead of serving the stale cached map.
func TestBSPCache_ReloadsOnMtimeChange(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "Foo.swift")
	writeCompileDB(t, root, []CompileCommand{
		{Directory: root, File: target, Arguments: []string{"swiftc", "-DFIRST"}},
	})

	cache := NewBSPCache(root)
	first, _, err := cache.Lookup(target)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if len(first) != 2 || first[1] != "-DFIRST" {
		t.Fatalf("unexpected first args: %v", first)
	}

	// Rewrite with different content and force the mtime forward: some
	// filesystems coalesce same-second mtimes, and the cache's
	// invalidation check is mtime-based, not content-based.
	writeCompileDB(t, root, []CompileCommand{
		{Directory: root, File: target, Arguments: []string{"swiftc", "-DSECOND"}},
	})
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(CompilePath(root), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, _, err := cache.Lookup(target)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if len(second) != 2 || second[1] != "-DSECOND" {
		t.Fatalf("expected reloaded args after mtime change, got %v", second)
	}
}

func TestIndexPaths(t *testing.T) {
	store, db := IndexPaths("/tmp/App", "App")
	if filepath.Base(store) != "DataStore" {
		t.Errorf("unexpected index store path %q", store)
	}
	if filepath.Base(db) != "Database" {
		t.Errorf("unexpected index database path %q", db)
	}
}
