package xbased

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want EventKind
	}{
		{fsnotify.Create, EventCreate},
		{fsnotify.Remove, EventRemove},
		{fsnotify.Rename, EventRename},
		{fsnotify.Write, EventContentUpdate},
		{fsnotify.Chmod, EventContentUpdate},
		{fsnotify.Op(0), EventOther},
	}
	for _, tt := range tests {
		if got := classify(tt.op); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestNormalizer_IgnoreGlobs(t *testing.T) {
	n := NewNormalizer([]string{"*.xcuserstate", "DerivedData"})

	if _, ok := n.Normalize(fsnotify.Event{Name: "/p/foo.xcuserstate", Op: fsnotify.Write}, time.Now()); ok {
		t.Error("expected ignored glob to drop the event")
	}
	if _, ok := n.Normalize(fsnotify.Event{Name: "/p/DerivedData/x.o", Op: fsnotify.Write}, time.Now()); ok {
		t.Error("expected ignored directory component to drop the event")
	}
	if _, ok := n.Normalize(fsnotify.Event{Name: "/p/Foo.swift", Op: fsnotify.Write}, time.Now()); !ok {
		t.Error("expected non-ignored path to produce an event")
	}
}

func TestNormalizer_OtherKindDropped(t *testing.T) {
	n := NewNormalizer(nil)
	if _, ok := n.Normalize(fsnotify.Event{Name: "/p/Foo.swift", Op: fsnotify.Op(0)}, time.Now()); ok {
		t.Error("expected an event with no recognized op to be dropped")
	}
}

// TestNormalizer_SeenDebounce verifies spec.md §4.4's debounce rule: a
// repeated notification for the same path within the threshold is marked
// Seen, collapsing editor-save storms into one event.
func TestNormalizer_SeenDebounce(t *testing.T) {
	n := NewNormalizer(nil)
	base := time.Now()

	ev, ok := n.Normalize(fsnotify.Event{Name: "/p/Foo.swift", Op: fsnotify.Write}, base)
	if !ok || ev.Seen {
		t.Fatalf("first event should not be marked seen, got ok=%v seen=%v", ok, ev.Seen)
	}
	n.Advance(ev.Path, base)

	ev2, ok := n.Normalize(fsnotify.Event{Name: "/p/Foo.swift", Op: fsnotify.Write}, base.Add(50*time.Millisecond))
	if !ok || !ev2.Seen {
		t.Fatalf("event within threshold should be marked seen, got ok=%v seen=%v", ok, ev2.Seen)
	}

	ev3, ok := n.Normalize(fsnotify.Event{Name: "/p/Foo.swift", Op: fsnotify.Write}, base.Add(DefaultDebounceThreshold+time.Millisecond))
	if !ok || ev3.Seen {
		t.Fatalf("event past threshold should not be marked seen, got ok=%v seen=%v", ok, ev3.Seen)
	}
}

func TestEventKindPredicates(t *testing.T) {
	tests := []struct {
		ev   Event
		is   func(Event) bool
		want bool
	}{
		{Event{Kind: EventCreate}, Event.IsCreate, true},
		{Event{Kind: EventCreate}, Event.IsRemove, false},
		{Event{Kind: EventRemove}, Event.IsRemove, true},
		{Event{Kind: EventRename}, Event.IsRename, true},
		{Event{Kind: EventContentUpdate}, Event.IsContentUpdate, true},
		{Event{Kind: EventOther}, Event.IsCreate, false},
	}
	for i, tt := range tests {
		if got := tt.is(tt.ev); got != tt.want {
			t.Errorf("case %d: got %v want %v", i, got, tt.want)
		}
	}
}
