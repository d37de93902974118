package xbased

import (
	"context"
	"strings"
	"testing"
)

// fakeStream is a canned StepStream for dispatcher tests, standing in for
// the external xcodebuild driver (spec.md §1).
type fakeStream struct {
	lines []string
	i     int
	err   error
}

func (s *fakeStream) Next() (string, bool) {
	if s.i >= len(s.lines) {
		return "", false
	}
	line := s.lines[s.i]
	s.i++
	return line, true
}
func (s *fakeStream) Close() error { return s.err }

// fakeRunner is a canned Runner for dispatcher/Run tests.
type fakeRunner struct {
	proc *Process
	err  error
}

func (r *fakeRunner) Run(ctx context.Context, logger *Logger) (*Process, error) {
	return r.proc, r.err
}

// fakeProject implements Project directly so dispatcher tests never shell
// out to a real xcodebuild/xcrun (spec.md §1 treats both as external
// collaborators the core only consumes through an interface).
type fakeProject struct {
	root    string
	name    string
	clients []PID

	buildErr error
	runner   Runner
	runErr   error

	updateCompileDBCalls int
}

func (p *fakeProject) Root() string              { return p.root }
func (p *fakeProject) Name() string               { return p.name }
func (p *fakeProject) Kind() string               { return "xcodeproj" }
func (p *fakeProject) Targets() map[string]string { return nil }
func (p *fakeProject) WatchIgnore() []string      { return nil }
func (p *fakeProject) ConfigPath() string         { return "" }

func (p *fakeProject) Clients() []PID {
	out := make([]PID, len(p.clients))
	copy(out, p.clients)
	return out
}

func (p *fakeProject) addClient(pid PID) {
	for _, existing := range p.clients {
		if existing == pid {
			return
		}
	}
	p.clients = append(p.clients, pid)
}

func (p *fakeProject) removeClient(pid PID) bool {
	for i, existing := range p.clients {
		if existing == pid {
			p.clients = append(p.clients[:i], p.clients[i+1:]...)
			break
		}
	}
	return len(p.clients) == 0
}

func (p *fakeProject) ShouldGenerate(ev Event) bool { return ev.IsCreate() || ev.IsRemove() || ev.IsRename() }

func (p *fakeProject) Build(ctx context.Context, settings BuildSettings) (StepStream, string, error) {
	if p.buildErr != nil {
		return nil, "xcodebuild (fake)", p.buildErr
	}
	return &fakeStream{lines: []string{"BUILD SUCCEEDED"}}, "xcodebuild (fake)", nil
}

func (p *fakeProject) Run(ctx context.Context, settings BuildSettings, device *Device) (Runner, error) {
	return p.runner, p.runErr
}

func (p *fakeProject) UpdateCompileDatabase(ctx context.Context) (bool, error) {
	p.updateCompileDBCalls++
	return false, nil
}

// testHarness wires a State with one fake project and registered client,
// bypassing the real filesystem-backed project registry/parser.
type testHarness struct {
	state   *State
	root    string
	proj    *fakeProject
	client  *Client
	sink    *recordingNotifier
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	root := t.TempDir()
	st := NewState(testLogger())
	proj := &fakeProject{root: root, name: "App"}

	st.Lock()
	st.Projects.projects[root] = proj
	proj.addClient(100)
	sink := &recordingNotifier{}
	client := &Client{PID: 100, Root: root, logger: newLogger(sink, testLogger(), abbreviatedRoot(root))}
	st.Clients.add(client)
	st.watchServiceFor(root, nil)
	st.Unlock()

	h := &testHarness{state: st, root: root, proj: proj, client: client, sink: sink}
	t.Cleanup(func() {
		st.Lock()
		st.dropWatchService(root)
		st.Unlock()
	})
	return h
}

func (h *testHarness) clientRef() ClientRef {
	return ClientRef{PID: h.client.PID, Root: h.root}
}

// TestDispatcher_BuildOnce verifies spec.md §8 scenario 2: a Once build
// invokes the project's build, drains the stream, and adds no watchable.
func TestDispatcher_BuildOnce(t *testing.T) {
	h := newTestHarness(t)
	d := NewDispatcher(h.state)

	err := d.Build(context.Background(), BuildRequest{
		Client:   h.clientRef(),
		Settings: BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug},
		Ops:      OpOnce,
	})
	if err != nil {
		t.Fatalf("Build once: %v", err)
	}

	h.state.Lock()
	svc := h.state.Services[h.root]
	hasListener := svc.contains(buildIdentity("Build", BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug}))
	h.state.Unlock()
	if hasListener {
		t.Error("a Once build must not register a watchable")
	}
	if len(h.sink.lines) == 0 {
		t.Error("expected the build output to reach the client's logger")
	}
}

// TestDispatcher_BuildWatchDuplicate verifies spec.md §8's round-trip
// property: two consecutive Watch requests with identical settings yield
// exactly one watchable and an "already watching" echo on the second.
func TestDispatcher_BuildWatchDuplicate(t *testing.T) {
	h := newTestHarness(t)
	d := NewDispatcher(h.state)
	settings := BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug}

	if err := d.Build(context.Background(), BuildRequest{Client: h.clientRef(), Settings: settings, Ops: OpWatch}); err != nil {
		t.Fatalf("first watch: %v", err)
	}
	if err := d.Build(context.Background(), BuildRequest{Client: h.clientRef(), Settings: settings, Ops: OpWatch}); err != nil {
		t.Fatalf("second watch: %v", err)
	}

	h.state.Lock()
	svc := h.state.Services[h.root]
	count := 0
	for range svc.listeners {
		count++
	}
	h.state.Unlock()
	if count != 1 {
		t.Errorf("expected exactly one watchable after duplicate Watch, got %d", count)
	}

	found := false
	for _, n := range h.sink.notifications {
		if strings.Contains(n, "Already watching with Build:Debug:WithScheme(App)!!") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an 'already watching' echo, got %v", h.sink.notifications)
	}
}

// TestDispatcher_StopRecomputesWatchingFlag verifies the corrected
// Stop-handler behavior SPEC_FULL.md §6 calls for (spec.md §9 REDESIGN
// FLAG): the watching flag is recomputed from the listener map, not
// unconditionally cleared.
func TestDispatcher_StopRecomputesWatchingFlag(t *testing.T) {
	h := newTestHarness(t)
	d := NewDispatcher(h.state)
	ctx := context.Background()

	buildSettings := BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug}
	runSettings := BuildSettings{Method: WithTarget("Lib"), Configuration: ConfigurationDebug}
	h.proj.runner = &fakeRunner{proc: &Process{}}

	if err := d.Build(ctx, BuildRequest{Client: h.clientRef(), Settings: buildSettings, Ops: OpWatch}); err != nil {
		t.Fatalf("watch build: %v", err)
	}
	if err := d.Run(ctx, RunRequest{Client: h.clientRef(), Settings: runSettings, Ops: OpWatch}); err != nil {
		t.Fatalf("watch run: %v", err)
	}
	if !h.client.isWatching() {
		t.Fatal("expected watching flag set after two watchables added")
	}

	if err := d.Build(ctx, BuildRequest{Client: h.clientRef(), Settings: buildSettings, Ops: OpStop}); err != nil {
		t.Fatalf("stop build: %v", err)
	}
	if !h.client.isWatching() {
		t.Error("expected watching flag to remain true: the run watchable is still registered")
	}

	if err := d.Run(ctx, RunRequest{Client: h.clientRef(), Settings: runSettings, Ops: OpStop}); err != nil {
		t.Fatalf("stop run: %v", err)
	}
	if h.client.isWatching() {
		t.Error("expected watching flag to clear once the last watchable is removed")
	}
}

// TestDispatcher_StopUnknownKey verifies spec.md §8's round-trip property:
// Stop on an unknown key returns NotFound without side effect.
func TestDispatcher_StopUnknownKey(t *testing.T) {
	h := newTestHarness(t)
	d := NewDispatcher(h.state)

	err := d.Build(context.Background(), BuildRequest{
		Client:   h.clientRef(),
		Settings: BuildSettings{Method: WithScheme("Ghost"), Configuration: ConfigurationDebug},
		Ops:      OpStop,
	})
	if err == nil {
		t.Fatal("expected NotFound for stopping an unregistered watchable")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}

// TestDispatcher_RunStopRemovesWatchable verifies the removal half of
// spec.md §8 scenario 5: Stop on a Run watchable removes it from the
// WatchService (the fake process here has nothing to kill).
func TestDispatcher_RunStopRemovesWatchable(t *testing.T) {
	h := newTestHarness(t)
	d := NewDispatcher(h.state)
	ctx := context.Background()
	h.proj.runner = &fakeRunner{proc: &Process{}}
	settings := BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug}

	if err := d.Run(ctx, RunRequest{Client: h.clientRef(), Settings: settings, Ops: OpWatch}); err != nil {
		t.Fatalf("watch run: %v", err)
	}
	if err := d.Run(ctx, RunRequest{Client: h.clientRef(), Settings: settings, Ops: OpStop}); err != nil {
		t.Fatalf("stop run: %v", err)
	}

	h.state.Lock()
	svc := h.state.Services[h.root]
	stillThere := svc.contains(buildIdentity("Run", settings))
	h.state.Unlock()
	if stillThere {
		t.Error("expected the run watchable to be removed after Stop")
	}
}

// TestDispatcher_RegisterThenDrop verifies spec.md §8 scenario 1.
func TestDispatcher_RegisterThenDrop(t *testing.T) {
	root := newTestProjectRoot(t, "App")
	st := NewState(testLogger())
	d := NewDispatcher(st)
	ctx := context.Background()
	sink := &recordingNotifier{}

	if err := d.Register(ctx, RegisterRequest{Client: ClientRef{PID: 100, Root: root}, Notifier: sink}); err != nil {
		t.Fatalf("register: %v", err)
	}

	st.Lock()
	proj, err := st.Projects.get(root)
	if err != nil {
		st.Unlock()
		t.Fatalf("expected project to exist after register: %v", err)
	}
	if got := proj.Clients(); len(got) != 1 || got[0] != 100 {
		st.Unlock()
		t.Fatalf("expected clients [100], got %v", got)
	}
	if _, ok := st.Services[root]; !ok {
		st.Unlock()
		t.Fatal("expected a WatchService to be created on register")
	}
	st.Unlock()

	if err := d.Drop(ctx, DropRequest{Client: ClientRef{PID: 100, Root: root}}); err != nil {
		t.Fatalf("drop: %v", err)
	}

	st.Lock()
	defer st.Unlock()
	if _, err := st.Projects.get(root); err == nil {
		t.Fatal("expected project to be removed after last client drops")
	}
	if _, ok := st.Services[root]; ok {
		t.Fatal("expected the WatchService to be joined and removed on project teardown")
	}
}
