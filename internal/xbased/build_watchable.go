package xbased

import (
	"context"
	"fmt"
)

// BuildWatchable is the concrete Watchable spec.md §4.6 describes for Build
// requests. It never discards on its own (only an explicit Stop removes
// it); should_trigger follows the shared policy in watchable.go.
type BuildWatchable struct {
	owner    PID
	root     string
	settings BuildSettings
	logger   *Logger

	triggered bool // false until the first Trigger, used to pick "Build:" vs "Rebuild:"
}

// NewBuildWatchable constructs the Watchable a Build{ops:Watch} request
// promotes into (spec.md §4.6).
func NewBuildWatchable(owner PID, root string, settings BuildSettings, logger *Logger) *BuildWatchable {
	return &BuildWatchable{owner: owner, root: root, settings: settings, logger: logger}
}

// Identity renders "Build:<configuration>:<method>", the canonical,
// field-order-independent rendering spec.md §9 calls for (e.g.
// "Build:Debug:WithScheme(App)").
func (b *BuildWatchable) Identity() string {
	return buildIdentity("Build", b.settings)
}

func buildIdentity(kind string, settings BuildSettings) string {
	return fmt.Sprintf("%s:%s:%s", kind, settings.Configuration, settings.Method)
}

func (b *BuildWatchable) Owner() PID { return b.owner }

func (b *BuildWatchable) ShouldTrigger(ev Event) bool { return sharedShouldTrigger(ev) }

// ShouldDiscard is always false: build watchables never discard on events
// (spec.md §4.6), only via an explicit Stop handled by the dispatcher.
func (b *BuildWatchable) ShouldDiscard(st *State, ev Event) bool { return false }

// Discard is a no-op for Build watchables (spec.md §4.6): the build, if
// in flight, runs to completion and its result is discarded (spec.md §5
// "Cancellation").
func (b *BuildWatchable) Discard(st *State) error { return nil }

// Trigger runs one xcodebuild invocation and drains its step stream into
// the owning client's logger, per spec.md §4.6's trigger semantics.
func (b *BuildWatchable) Trigger(ctx context.Context, st *State, ev Event) error {
	proj, err := st.Projects.get(b.root)
	if err != nil {
		return err
	}
	client, err := st.Clients.get(b.owner)
	if err != nil {
		return err
	}

	title := "Build:" + b.settings.Method.Name()
	if b.triggered {
		title = "Rebuild:" + b.settings.Method.Name()
	}
	b.triggered = true
	b.logger.SetTitle(title)

	stream, invocation, err := proj.Build(ctx, b.settings)
	if err != nil {
		st.Clients.echoErrTo(client, fmt.Sprintf("build failed to start: %v", err))
		st.Log.Error("xcodebuild invocation failed", "invocation", invocation, "error", err)
		return &BuildError{Message: err.Error()}
	}

	drainStream(stream, b.logger)
	if err := stream.Close(); err != nil {
		st.Clients.echoErrTo(client, fmt.Sprintf("build failed: %v", err))
		st.Log.Error("xcodebuild invocation failed", "invocation", invocation, "error", err)
		return &BuildError{Message: err.Error()}
	}
	return nil
}

// drainStream copies every line of a StepStream into logger, per spec.md
// §4.6 "drain the stream into the logger".
func drainStream(stream StepStream, logger *Logger) {
	for {
		line, ok := stream.Next()
		if !ok {
			return
		}
		logger.Line(line)
	}
}
