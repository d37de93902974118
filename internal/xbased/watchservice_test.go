package xbased

import (
	"context"
	"testing"
)

// fakeWatchable is a minimal Watchable for exercising WatchService's
// registry mechanics without a real filesystem watcher or xcodebuild
// invocation (spec.md §3's Watchable trait).
type fakeWatchable struct {
	id       string
	owner    PID
	discard  bool
	triggers int
}

func (f *fakeWatchable) Identity() string                      { return f.id }
func (f *fakeWatchable) Owner() PID                             { return f.owner }
func (f *fakeWatchable) ShouldTrigger(ev Event) bool            { return true }
func (f *fakeWatchable) ShouldDiscard(st *State, ev Event) bool { return f.discard }
func (f *fakeWatchable) Discard(st *State) error                { return nil }
func (f *fakeWatchable) Trigger(ctx context.Context, st *State, ev Event) error {
	f.triggers++
	return nil
}

func newTestWatchService(t *testing.T) *WatchService {
	t.Helper()
	st := NewState(testLogger())
	return newWatchService(t.TempDir(), nil, st)
}

// TestWatchService_UniqueKeyInvariant verifies spec.md §8 property 2: within
// one WatchService, no two Watchables share an identity string.
func TestWatchService_UniqueKeyInvariant(t *testing.T) {
	svc := newTestWatchService(t)
	first := &fakeWatchable{id: "Build:Debug:WithScheme(App)", owner: 1}
	second := &fakeWatchable{id: "Build:Debug:WithScheme(App)", owner: 2}

	svc.add(first)
	svc.add(second) // collision: logged, not replacing per spec.md §4.5

	got, err := svc.remove(first.id)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got != first {
		t.Error("expected the original watchable to survive a colliding add")
	}
}

func TestWatchService_RemoveUnknown(t *testing.T) {
	svc := newTestWatchService(t)
	if _, err := svc.remove("nope"); err == nil {
		t.Fatal("expected NotFound for an unknown key")
	} else if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
}

func TestWatchService_ContainsAndRemove(t *testing.T) {
	svc := newTestWatchService(t)
	w := &fakeWatchable{id: "Run:Debug:WithTarget(Lib)", owner: 1}
	svc.add(w)

	if !svc.contains(w.id) {
		t.Fatal("expected contains to report the newly added watchable")
	}
	if _, err := svc.remove(w.id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if svc.contains(w.id) {
		t.Fatal("expected the key to be absent after remove")
	}
}

// TestWatchService_ListenersOwnedBy verifies spec.md §8 property 3: the
// client-watching flag equals whether the listener map has any Watchable
// owned by that PID.
func TestWatchService_ListenersOwnedBy(t *testing.T) {
	svc := newTestWatchService(t)
	svc.add(&fakeWatchable{id: "a", owner: 1})
	svc.add(&fakeWatchable{id: "b", owner: 2})

	if !svc.listenersOwnedBy(1) {
		t.Error("expected pid 1 to own a listener")
	}
	if !svc.listenersOwnedBy(2) {
		t.Error("expected pid 2 to own a listener")
	}
	if svc.listenersOwnedBy(3) {
		t.Error("expected pid 3 to own nothing")
	}

	if _, err := svc.remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if svc.listenersOwnedBy(1) {
		t.Error("expected pid 1 to own nothing after its only listener is removed")
	}
}

func TestSharedShouldTrigger(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"content-update", Event{Kind: EventContentUpdate, Path: "/x"}, true},
		{"rename", Event{Kind: EventRename, Path: "/x"}, true},
		{"create", Event{Kind: EventCreate, Path: "/x"}, true},
		{"remove", Event{Kind: EventRemove, Path: "/x"}, true},
		{"unseen vanished other", Event{Kind: EventOther, Path: "/does/not/exist/at/all", Seen: false}, true},
		{"seen vanished other", Event{Kind: EventOther, Path: "/does/not/exist/at/all", Seen: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sharedShouldTrigger(tt.ev); got != tt.want {
				t.Errorf("sharedShouldTrigger(%+v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
}
