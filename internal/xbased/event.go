package xbased

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a normalized filesystem event. The four concrete
// kinds are mutually exclusive; Other triggers nothing (spec.md §4.4).
type EventKind int

const (
	EventOther EventKind = iota
	EventCreate
	EventRemove
	EventRename
	EventContentUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	case EventContentUpdate:
		return "content-update"
	default:
		return "other"
	}
}

// Event is the normalized representation of a raw fsnotify notification,
// per spec.md §3's Event entity.
type Event struct {
	Path string
	Kind EventKind
	Seen bool
}

func (e Event) IsCreate() bool        { return e.Kind == EventCreate }
func (e Event) IsRemove() bool        { return e.Kind == EventRemove }
func (e Event) IsRename() bool        { return e.Kind == EventRename }
func (e Event) IsContentUpdate() bool { return e.Kind == EventContentUpdate }

// pathExists reports whether a path is still present on disk, used by the
// normalizer and the dispatch loop to detect rename-away artifacts.
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// DefaultDebounceThreshold is the window (spec.md §4.4, §9) within which a
// repeated notification for the same path collapses into a single "seen"
// event, chosen so editor-save storms collapse to one build trigger.
const DefaultDebounceThreshold = 150 * time.Millisecond

// Normalizer turns raw fsnotify.Event values into Events, applying ignore
// globs and the seen-before debounce memo. One Normalizer is owned by each
// WatchService and used by the single goroutine that runs its dispatch
// loop, matching the "strictly sequential per root" guarantee in spec.md
// §5; mu guards the memo all the same.
type Normalizer struct {
	ignore    []string
	threshold time.Duration

	mu       sync.Mutex
	lastPath string
	lastAt   time.Time
}

// NewNormalizer builds a Normalizer with the given ignore globs. A path is
// ignored when a glob matches the whole path, matches its base name, or
// equals one of its directory components (e.g. "DerivedData").
func NewNormalizer(ignore []string) *Normalizer {
	return &Normalizer{ignore: ignore, threshold: DefaultDebounceThreshold}
}

// Advance updates the debounce clock; called once per processed event by
// the WatchService dispatch loop (spec.md §4.5 step 8).
func (n *Normalizer) Advance(path string, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastPath = path
	n.lastAt = at
}

// Normalize converts a raw fsnotify event into an Event, or reports ok=false
// when the notification should be dropped entirely (spec.md §4.4).
func (n *Normalizer) Normalize(raw fsnotify.Event, now time.Time) (Event, bool) {
	if n.matchesIgnore(raw.Name) {
		return Event{}, false
	}

	kind := classify(raw.Op)
	if kind == EventOther {
		return Event{}, false
	}

	n.mu.Lock()
	seen := n.lastPath == raw.Name && now.Sub(n.lastAt) < n.threshold
	n.mu.Unlock()

	return Event{Path: raw.Name, Kind: kind, Seen: seen}, true
}

func (n *Normalizer) matchesIgnore(path string) bool {
	base := filepath.Base(path)
	for _, glob := range n.ignore {
		if ok, _ := filepath.Match(glob, path); ok {
			return true
		}
		if ok, _ := filepath.Match(glob, base); ok {
			return true
		}
		if strings.Contains(path, string(filepath.Separator)+glob+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func classify(op fsnotify.Op) EventKind {
	switch {
	case op&fsnotify.Create != 0:
		return EventCreate
	case op&fsnotify.Remove != 0:
		return EventRemove
	case op&fsnotify.Rename != 0:
		return EventRename
	case op&fsnotify.Write != 0, op&fsnotify.Chmod != 0:
		return EventContentUpdate
	default:
		return EventOther
	}
}
