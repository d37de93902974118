package xbased

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// Notifier is the minimal surface a Client's transport must provide so a
// Logger can push build output and watching-state changes back to the
// editor. spec.md §1 treats the editor transport itself as an external
// collaborator; this is the interface the core consumes.
type Notifier interface {
	// Log streams one line of build/run output, titled by the caller
	// (e.g. "Build:App", "Rebuild:App").
	Log(title, line string)
	// Notify sends a one-shot informational or error message not tied to
	// a particular build/run stream.
	Notify(level string, text string)
	// SetWatching pushes the client's watching flag (spec.md §6
	// "Watching semantics").
	SetWatching(bool)
}

// Logger is the per-client log sink (spec.md §3's Client.logger). It wraps
// a Notifier with slog-based daemon-side logging and, when the daemon's own
// stdout is a TTY, fatih/color styling on echoed text — mirroring the way
// go-tony/cmd/o colors terminal output.
type Logger struct {
	notifier Notifier
	slog     *slog.Logger
	prefix   string // abbreviatedRoot(Client.Root)

	mu    sync.Mutex
	title string
}

// newLogger binds n and log to a new per-client Logger, prefixing every
// echoed title with prefix (SPEC_FULL.md §7's root abbreviation) so a
// daemon juggling several registered clients can tell their output apart.
func newLogger(n Notifier, log *slog.Logger, prefix string) *Logger {
	return &Logger{notifier: n, slog: log, prefix: prefix}
}

// prefixedTitle renders title under this Logger's root prefix, e.g.
// "myapp/ios Build:App" for a client registered at .../myapp/ios.
func (l *Logger) prefixedTitle(title string) string {
	if l.prefix == "" {
		return title
	}
	return fmt.Sprintf("%s %s", l.prefix, title)
}

// SetTitle changes the title under which subsequent Line calls are grouped,
// e.g. "Build:App" on first build, "Rebuild:App" on subsequent triggers
// (spec.md §4.6).
func (l *Logger) SetTitle(title string) {
	l.mu.Lock()
	l.title = title
	l.mu.Unlock()
}

func (l *Logger) currentTitle() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.title
}

// Line drains one line of an xcodebuild step stream into the client.
func (l *Logger) Line(line string) {
	title := l.currentTitle()
	l.notifier.Log(l.prefixedTitle(title), line)
	l.slog.Debug("build output", "root", l.prefix, "title", title, "line", line)
}

// Info echoes an informational message, e.g. "new compilation database
// generated".
func (l *Logger) Info(name, text string) {
	styled := text
	if color.NoColor {
		styled = text
	} else {
		styled = color.GreenString(text)
	}
	l.notifier.Notify("info", styled)
	l.slog.Info(name, "root", l.prefix, "text", text)
}

// Error echoes an error message, e.g. "Already watching with <key>!!".
func (l *Logger) Error(text string) {
	styled := text
	if !color.NoColor {
		styled = color.RedString(text)
	}
	l.notifier.Notify("error", styled)
	l.slog.Error("echo_err", "root", l.prefix, "text", text)
}

// SyncState pushes the watching flag, per spec.md §6.
func (l *Logger) SyncState(watching bool) {
	l.notifier.SetWatching(watching)
	l.slog.Debug("sync_client_state", "watching", watching)
}
