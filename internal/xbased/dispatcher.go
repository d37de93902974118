package xbased

import (
	"context"
	"fmt"
)

// Dispatcher handles the client-facing RPC requests of spec.md §6: Build,
// Run, Register, and Drop. It holds no state of its own beyond a reference
// to the shared State container; every method below acquires st.Lock()
// for the duration of its mutation, per spec.md §4.1.
type Dispatcher struct {
	state *State
}

func NewDispatcher(st *State) *Dispatcher { return &Dispatcher{state: st} }

// RegisterRequest attaches a client, creating its project and WatchService
// on first use (spec.md §6 Register).
type RegisterRequest struct {
	Client   ClientRef
	Notifier Notifier
}

func (d *Dispatcher) Register(ctx context.Context, req RegisterRequest) error {
	d.state.Lock()
	defer d.state.Unlock()

	proj, err := d.state.Projects.add(req.Client.Root, req.Client.PID)
	if err != nil {
		return err
	}

	logger := newLogger(req.Notifier, d.state.Log, abbreviatedRoot(req.Client.Root))
	client := &Client{PID: req.Client.PID, Root: req.Client.Root, Address: req.Client.Address, logger: logger}
	d.state.Clients.add(client)

	d.state.watchServiceFor(req.Client.Root, proj.WatchIgnore())
	return nil
}

// DropRequest detaches a client (spec.md §6 Drop).
type DropRequest struct {
	Client ClientRef
}

func (d *Dispatcher) Drop(ctx context.Context, req DropRequest) error {
	d.state.Lock()
	defer d.state.Unlock()

	d.state.Clients.remove(req.Client.PID)
	if _, removed := d.state.Projects.remove(req.Client.Root, req.Client.PID); removed {
		d.state.dropWatchService(req.Client.Root)
	}
	return nil
}

// BuildRequest is spec.md §6's Build{settings, ops}.
type BuildRequest struct {
	Client   ClientRef
	Settings BuildSettings
	Ops      Operation
}

func (d *Dispatcher) Build(ctx context.Context, req BuildRequest) error {
	d.state.Lock()
	defer d.state.Unlock()

	client, err := d.state.Clients.get(req.Client.PID)
	if err != nil {
		return err
	}

	if req.Ops == OpOnce {
		watchable := NewBuildWatchable(req.Client.PID, req.Client.Root, req.Settings, client.logger)
		return watchable.Trigger(ctx, d.state, Event{})
	}

	svc, err := d.requireService(req.Client.Root)
	if err != nil {
		return err
	}

	if req.Ops == OpWatch {
		watchable := NewBuildWatchable(req.Client.PID, req.Client.Root, req.Settings, client.logger)
		key := watchable.Identity()
		if svc.contains(key) {
			d.state.Clients.echoErrTo(client, (&AlreadyWatchingError{Key: key}).Error())
		} else {
			svc.add(watchable)
		}
	} else { // OpStop
		key := buildIdentity("Build", req.Settings)
		if _, err := svc.remove(key); err != nil {
			return err
		}
	}

	// SPEC_FULL.md §6: recompute the watching flag from the listener map
	// rather than unconditionally clearing it on Stop (the corrected
	// behavior for the REDESIGN FLAG in spec.md §9).
	d.state.Clients.setWatching(client, svc.listenersOwnedBy(req.Client.PID))
	return nil
}

// RunRequest is spec.md §6's Run{settings, device?, ops}.
type RunRequest struct {
	Client   ClientRef
	Settings BuildSettings
	Device   *Device
	Ops      Operation
}

func (d *Dispatcher) Run(ctx context.Context, req RunRequest) error {
	d.state.Lock()
	defer d.state.Unlock()

	client, err := d.state.Clients.get(req.Client.PID)
	if err != nil {
		return err
	}

	if req.Ops == OpOnce {
		watchable := NewRunWatchable(req.Client.PID, req.Client.Root, req.Settings, req.Device, client.logger)
		return watchable.Trigger(ctx, d.state, Event{})
	}

	svc, err := d.requireService(req.Client.Root)
	if err != nil {
		return err
	}

	if req.Ops == OpWatch {
		watchable := NewRunWatchable(req.Client.PID, req.Client.Root, req.Settings, req.Device, client.logger)
		key := watchable.Identity()
		if svc.contains(key) {
			d.state.Clients.echoErrTo(client, (&AlreadyWatchingError{Key: key}).Error())
		} else {
			svc.add(watchable)
			if err := watchable.Trigger(ctx, d.state, Event{}); err != nil {
				d.state.Clients.setWatching(client, svc.listenersOwnedBy(req.Client.PID))
				return fmt.Errorf("initial run failed: %w", err)
			}
		}
	} else { // OpStop
		key := buildIdentity("Run", req.Settings)
		watchable, err := svc.remove(key)
		if err != nil {
			return err
		}
		if err := watchable.Discard(d.state); err != nil {
			d.state.Log.Error("discard failed", "key", key, "error", err)
		}
	}

	d.state.Clients.setWatching(client, svc.listenersOwnedBy(req.Client.PID))
	return nil
}

func (d *Dispatcher) requireService(root string) (*WatchService, error) {
	svc, ok := d.state.Services[root]
	if !ok {
		return nil, newNotFound(KindProject, root)
	}
	return svc, nil
}
