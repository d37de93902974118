package xbased

import (
	"context"
	"fmt"
	"os/exec"
)

// Runner is the capability spec.md §4.6 describes: {run(logger) ->
// Process}, dispatched by target platform. Launching a simulator vs a
// plain binary is, per spec.md §1, an external collaborator ("simulator and
// binary launchers"); Runner is the interface the core consumes.
type Runner interface {
	Run(ctx context.Context, logger *Logger) (*Process, error)
}

// runnerFor selects a Runner by platform tag, defaulting to a plain binary
// launch when the platform is unknown or unset.
func runnerFor(platform string, proj *xcodeProject, settings BuildSettings, device *Device) Runner {
	switch platform {
	case "iOS", "watchOS", "tvOS", "visionOS":
		return &simulatorRunner{proj: proj, settings: settings, device: device}
	default:
		return &binaryRunner{proj: proj, settings: settings}
	}
}

// binaryRunner launches a built macOS binary directly.
type binaryRunner struct {
	proj     *xcodeProject
	settings BuildSettings
}

func (r *binaryRunner) Run(ctx context.Context, logger *Logger) (*Process, error) {
	path := builtProductPath(r.proj, r.settings)
	cmd := exec.CommandContext(ctx, path)
	pr, pw, err := pipePair()
	if err != nil {
		return nil, unexpected("creating run output pipe", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, unexpected("starting built binary", err)
	}
	pw.Close()
	go streamPipeTo(pr, logger)
	return newProcess(cmd), nil
}

// simulatorRunner installs and launches the built app on a simulator via
// `xcrun simctl`.
type simulatorRunner struct {
	proj     *xcodeProject
	settings BuildSettings
	device   *Device
}

func (r *simulatorRunner) Run(ctx context.Context, logger *Logger) (*Process, error) {
	udid := "booted"
	if r.device != nil && r.device.UDID != "" {
		udid = r.device.UDID
	}
	appPath := builtProductPath(r.proj, r.settings) + ".app"

	install := exec.CommandContext(ctx, "xcrun", "simctl", "install", udid, appPath)
	if out, err := install.CombinedOutput(); err != nil {
		return nil, unexpected(fmt.Sprintf("simctl install: %s", string(out)), err)
	}

	cmd := exec.CommandContext(ctx, "xcrun", "simctl", "launch", "--console", udid, r.settings.Method.Name())
	pr, pw, err := pipePair()
	if err != nil {
		return nil, unexpected("creating run output pipe", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, unexpected("starting simctl launch", err)
	}
	pw.Close()
	go streamPipeTo(pr, logger)
	return newProcess(cmd), nil
}

func builtProductPath(proj *xcodeProject, settings BuildSettings) string {
	root := cacheRoot(proj.root, proj.name)
	return root + "/Build/Products/" + string(settings.Configuration) + "/" + settings.Method.Name()
}

// RunWatchable is the concrete Watchable for Run requests (spec.md §4.6):
// on watch-add it builds first, and only on success spawns a runner; its
// Discard kills the managed process.
type RunWatchable struct {
	owner    PID
	root     string
	settings BuildSettings
	device   *Device
	logger   *Logger

	build *BuildWatchable
	proc  *Process
}

func NewRunWatchable(owner PID, root string, settings BuildSettings, device *Device, logger *Logger) *RunWatchable {
	return &RunWatchable{
		owner:    owner,
		root:     root,
		settings: settings,
		device:   device,
		logger:   logger,
		build:    NewBuildWatchable(owner, root, settings, logger),
	}
}

// Identity renders "Run:<configuration>:<method>" (spec.md §9).
func (r *RunWatchable) Identity() string {
	return buildIdentity("Run", r.settings)
}

func (r *RunWatchable) Owner() PID { return r.owner }

func (r *RunWatchable) ShouldTrigger(ev Event) bool { return sharedShouldTrigger(ev) }

// ShouldDiscard is true once the spawned process has exited (spec.md
// §4.6), observed via the reaper goroutine newProcess starts rather than
// by polling ProcessState directly (which stays nil until something calls
// Wait, and nothing else does).
func (r *RunWatchable) ShouldDiscard(st *State, ev Event) bool {
	if r.proc == nil {
		return false
	}
	return r.proc.Exited()
}

// Discard kills the spawned process, the responsibility spec.md §4.6
// assigns a Run watchable's discard().
func (r *RunWatchable) Discard(st *State) error {
	if r.proc == nil {
		return nil
	}
	return r.proc.Kill()
}

// Trigger builds, and on success (re)spawns the managed process, killing
// any previous instance first (spec.md §4.6).
func (r *RunWatchable) Trigger(ctx context.Context, st *State, ev Event) error {
	if err := r.build.Trigger(ctx, st, ev); err != nil {
		return err
	}

	proj, err := st.Projects.get(r.root)
	if err != nil {
		return err
	}
	runner, err := proj.Run(ctx, r.settings, r.device)
	if err != nil {
		return err
	}

	if r.proc != nil {
		_ = r.proc.Kill()
	}
	proc, err := runner.Run(ctx, r.logger)
	if err != nil {
		client, cerr := st.Clients.get(r.owner)
		if cerr == nil {
			st.Clients.echoErrTo(client, fmt.Sprintf("run failed: %v", err))
		}
		return err
	}
	r.proc = proc
	return nil
}
