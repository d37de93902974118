package xbased

import "context"

// Watchable is the trait spec.md §3/§4.5 describes: a unit of work
// registered under a stable identity string within one root's WatchService,
// whose behavior methods receive a borrowed, already-locked reference to
// the shared State (spec.md §3 "Ownership", §4.1).
type Watchable interface {
	// Identity is this Watchable's stable map key.
	Identity() string

	// ShouldTrigger reports whether ev should cause Trigger to run.
	ShouldTrigger(ev Event) bool
	// Trigger runs the watchable's action (a build or a build+run cycle).
	// Errors are logged by the caller; the watchable is retained regardless
	// (spec.md §4.5 step 6, §7).
	Trigger(ctx context.Context, st *State, ev Event) error

	// ShouldDiscard reports whether this watchable should be removed
	// before ShouldTrigger is even consulted (spec.md §4.5 tie-break:
	// discard wins over trigger).
	ShouldDiscard(st *State, ev Event) bool
	// Discard releases any resources the watchable owns (e.g. killing a
	// spawned process). Errors are logged only; removal proceeds
	// regardless (spec.md §4.5 step 6).
	Discard(st *State) error

	// Owner is the PID that registered this watchable, used to recompute
	// a client's watching flag after any mutation of the listener map
	// (SPEC_FULL.md §6, the corrected Stop-handler behavior).
	Owner() PID
}

// sharedShouldTrigger implements the policy spec.md §4.6 describes as
// common to both Build and Run watchables: true for content-update,
// rename, create, or remove, or for any event whose path no longer exists
// and has not been seen before (tool-generated swapfiles rename-then-delete;
// treating un-seen vanished paths as triggers keeps builds honest during
// refactors).
func sharedShouldTrigger(ev Event) bool {
	if ev.IsContentUpdate() || ev.IsRename() || ev.IsCreate() || ev.IsRemove() {
		return true
	}
	return !ev.Seen && !pathExists(ev.Path)
}
