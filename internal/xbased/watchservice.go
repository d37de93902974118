package xbased

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchService owns the OS-level recursive watcher for one root and a
// keyed registry of Watchables, per spec.md §3/§4.5. Its dispatch loop
// runs on its own goroutine and removes discarded listeners; request
// handlers add and remove listeners too. Every write to the listeners map
// happens while holding State's mutex (spec.md §3 "Serialization
// invariant").
type WatchService struct {
	root  string
	state *State
	log   *slog.Logger

	watcher    *fsnotify.Watcher
	normalizer *Normalizer
	listeners  map[string]Watchable

	stopCh chan struct{}
	doneCh chan struct{}
}

func newWatchService(root string, ignore []string, st *State) *WatchService {
	return &WatchService{
		root:       root,
		state:      st,
		log:        st.Log.With("root", root),
		normalizer: NewNormalizer(ignore),
		listeners:  make(map[string]Watchable),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// add inserts watchable under its Identity(). Must be called with State's
// lock held. If the key collides, spec.md §4.5 says to log an error but
// not replace — the caller's prior contains_key check (see Dispatcher) is
// the authoritative gate against duplicates.
func (w *WatchService) add(watchable Watchable) {
	key := watchable.Identity()
	if _, exists := w.listeners[key]; exists {
		w.log.Error("watchable key collision, not replacing", "key", key)
		return
	}
	w.listeners[key] = watchable
}

func (w *WatchService) contains(key string) bool {
	_, ok := w.listeners[key]
	return ok
}

// remove deletes and returns the Watchable under key, or NotFound(Watchable,
// key) if absent (spec.md §4.5).
func (w *WatchService) remove(key string) (Watchable, error) {
	wtc, ok := w.listeners[key]
	if !ok {
		return nil, newNotFound(KindWatchable, key)
	}
	delete(w.listeners, key)
	return wtc, nil
}

// listenersOwnedBy reports whether pid currently owns at least one
// registered Watchable, the "client-watching flag" invariant of spec.md §3.
func (w *WatchService) listenersOwnedBy(pid PID) bool {
	for _, wtc := range w.listeners {
		if wtc.Owner() == pid {
			return true
		}
	}
	return false
}

// start spins up the recursive watcher and the background dispatch loop.
// Must be called with State's lock held (from watchServiceFor).
func (w *WatchService) start() {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Error("creating fsnotify watcher", "error", err)
		close(w.doneCh)
		return
	}
	w.watcher = fsw

	if err := addRecursive(fsw, w.root); err != nil {
		w.log.Error("watching project root", "error", err)
	}

	go w.dispatchLoop()
}

// stop signals the dispatch loop to exit and waits for it, joining the
// WatchService's goroutine per SPEC_FULL.md §6's open-question resolution.
func (w *WatchService) stop() {
	close(w.stopCh)
	<-w.doneCh
}

// dispatchLoop implements the algorithm of spec.md §4.5. It runs entirely
// on its own goroutine and acquires State's mutex once per raw
// notification, holding it through the full discard/trigger pass — the
// "strictly sequential per root" guarantee of spec.md §5.
func (w *WatchService) dispatchLoop() {
	defer close(w.doneCh)
	defer func() {
		if w.watcher != nil {
			w.watcher.Close()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case raw, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleRaw(raw)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("fsnotify error", "error", err)
		}
	}
}

func (w *WatchService) handleRaw(raw fsnotify.Event) {
	now := time.Now()

	// Step 1: normalize.
	ev, ok := w.normalizer.Normalize(raw, now)
	if !ok {
		return
	}

	// Step 2: rename-away artifacts are skipped outright.
	if ev.IsRename() && !pathExists(ev.Path) {
		return
	}

	// A newly created directory must be watched too, for true recursion.
	if ev.IsCreate() {
		if info, err := os.Stat(ev.Path); err == nil && info.IsDir() {
			_ = addRecursive(w.watcher, ev.Path)
		}
	}

	// Step 3: acquire the shared mutex.
	w.state.Lock()
	defer w.state.Unlock()

	// Step 4: invoke the compile-DB refresher; errors are logged only.
	if proj, err := w.state.Projects.get(w.root); err == nil {
		if proj.ShouldGenerate(ev) {
			regenerated, err := proj.UpdateCompileDatabase(context.Background())
			if err != nil {
				w.log.Error("compile database refresh failed", "error", err)
			} else if regenerated {
				w.state.Clients.echoMsg(w.root, "compiledb", "new compilation database generated ✅")
			}
		}
	}

	// Step 5: re-acquire this root's WatchService; if it has gone away the
	// project was removed concurrently and this goroutine is about to be
	// joined by dropWatchService — nothing further to do.
	if _, ok := w.state.Services[w.root]; !ok {
		return
	}

	// Steps 6-7: discard wins the tie-break over trigger; discarded keys
	// are collected in a loop-local slice so nothing leaks across
	// WatchService instances (SPEC_FULL.md §6 open-item resolution).
	var discards []string
	for key, watchable := range w.listeners {
		if watchable.ShouldDiscard(w.state, ev) {
			if err := watchable.Discard(w.state); err != nil {
				w.log.Error("discard failed", "key", key, "error", err)
			}
			discards = append(discards, key)
			continue
		}
		if watchable.ShouldTrigger(ev) {
			if err := watchable.Trigger(context.Background(), w.state, ev); err != nil {
				w.log.Error("trigger failed", "key", key, "error", err)
			}
		}
	}
	for _, key := range discards {
		owner := w.listeners[key].Owner()
		delete(w.listeners, key)
		if client, err := w.state.Clients.get(owner); err == nil {
			w.state.Clients.setWatching(client, w.listenersOwnedBy(owner))
		}
	}

	// Step 8: advance the debounce clock.
	w.normalizer.Advance(ev.Path, now)
}

// addRecursive walks dir and registers every subdirectory with fsw,
// approximating a recursive watch (fsnotify itself only watches a single
// directory level), matching the shape of the joyshmitz-slb daemon watcher
// in the example pack.
func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint: the walk continues past unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base != "." && len(base) > 0 && base[0] == '.' && path != dir {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

