package xbased

import (
	"log/slog"
	"sync"
)

// State is the single process-wide shared state container spec.md §3/§4.1
// describes: one mutex guarding the Project registry, the Client registry,
// and the set of per-root WatchServices. Every request handler and every
// filesystem-event dispatch loop acquires mu, performs its mutation, and
// releases — the "Serialization invariant" of spec.md §3.
type State struct {
	mu sync.Mutex

	Projects *ProjectRegistry
	Clients  *ClientRegistry
	Services map[string]*WatchService // root -> WatchService

	Log *slog.Logger
}

// NewState constructs an empty shared state container.
func NewState(log *slog.Logger) *State {
	if log == nil {
		log = slog.Default()
	}
	return &State{
		Projects: newProjectRegistry(log),
		Clients:  newClientRegistry(log),
		Services: make(map[string]*WatchService),
		Log:      log,
	}
}

// Lock/Unlock expose the single mutex directly: handlers acquire it,
// mutate, and release, exactly as spec.md §4.1 prescribes. Watchable
// behavior methods are invoked by a WatchService's dispatch loop while it
// already holds this lock, matching the "borrowed, locked reference"
// ownership note in spec.md §3.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// watchServiceFor returns the WatchService for root, creating it (and its
// background dispatch goroutine) on first use. Must be called with the
// lock held.
func (s *State) watchServiceFor(root string, ignore []string) *WatchService {
	if svc, ok := s.Services[root]; ok {
		return svc
	}
	svc := newWatchService(root, ignore, s)
	s.Services[root] = svc
	svc.start()
	return svc
}

// dropWatchService removes and joins the WatchService for root, per
// SPEC_FULL.md §6's resolution of the "join the WatchService task on
// removal" open item. Must be called with the lock held; it releases the
// lock internally while waiting for the goroutine to exit, since the
// goroutine itself needs to acquire the lock to notice the shutdown and
// exit cleanly (spec.md §4.5's termination condition 5).
func (s *State) dropWatchService(root string) {
	svc, ok := s.Services[root]
	if !ok {
		return
	}
	delete(s.Services, root)
	s.mu.Unlock()
	svc.stop()
	s.mu.Lock()
}
