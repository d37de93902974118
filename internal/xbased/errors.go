package xbased

import "fmt"

// Kind tags the entity a NotFoundError refers to, matching the taxonomy in
// spec.md §7: NotFound(kind, key).
type Kind string

const (
	KindProject   Kind = "Project"
	KindClient    Kind = "Client"
	KindWatchable Kind = "Watchable"
)

// NotFoundError is returned by registry lookups for an absent key.
type NotFoundError struct {
	Kind Kind
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func newNotFound(kind Kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// DefinitionLocatingError is returned when no project definition (an
// .xcodeproj or .xcworkspace) can be located at a root.
type DefinitionLocatingError struct {
	Root string
}

func (e *DefinitionLocatingError) Error() string {
	return fmt.Sprintf("no project definition found at %s", e.Root)
}

// BuildError wraps an xcodebuild failure that must be surfaced to a caller
// rather than merely logged (e.g. so a Run step can refuse to launch).
type BuildError struct {
	Message string
}

func (e *BuildError) Error() string { return "build failed: " + e.Message }

// UnexpectedError wraps OS-level watcher failures, I/O, or JSON errors that
// don't belong to a more specific category.
type UnexpectedError struct {
	Message string
	Err     error
}

func (e *UnexpectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

func unexpected(msg string, err error) error {
	return &UnexpectedError{Message: msg, Err: err}
}

// AlreadyWatchingError is returned (and echoed to the client) when a Watch
// request collides with an identity string already present in a
// WatchService's listener map.
type AlreadyWatchingError struct {
	Key string
}

func (e *AlreadyWatchingError) Error() string {
	return fmt.Sprintf("Already watching with %s!!", e.Key)
}
