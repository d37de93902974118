package xbased

import (
	"encoding/json"
	"fmt"
)

// BuildMethod selects how xcodebuild should be invoked: against a scheme
// (inside a workspace) or directly against a target.
type BuildMethod struct {
	Scheme string // non-empty for WithScheme
	Target string // non-empty for WithTarget
}

func WithScheme(name string) BuildMethod { return BuildMethod{Scheme: name} }
func WithTarget(name string) BuildMethod { return BuildMethod{Target: name} }

// String renders the canonical, field-order-independent form spec.md §9
// requires of identity strings: WithScheme(name) or WithTarget(name).
func (m BuildMethod) String() string {
	if m.Scheme != "" {
		return fmt.Sprintf("WithScheme(%s)", m.Scheme)
	}
	return fmt.Sprintf("WithTarget(%s)", m.Target)
}

// Name returns the scheme or target name this method targets, used for
// logger titles ("Build:<name>").
func (m BuildMethod) Name() string {
	if m.Scheme != "" {
		return m.Scheme
	}
	return m.Target
}

type buildMethodWire struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// MarshalJSON/UnmarshalJSON give BuildMethod an identity round trip over
// the wire (spec.md §8 "Serializing and deserializing any ... BuildMethod
// is the identity"), independent of the Go struct's field layout.
func (m BuildMethod) MarshalJSON() ([]byte, error) {
	if m.Scheme != "" {
		return json.Marshal(buildMethodWire{Kind: "scheme", Name: m.Scheme})
	}
	return json.Marshal(buildMethodWire{Kind: "target", Name: m.Target})
}

func (m *BuildMethod) UnmarshalJSON(data []byte) error {
	var w buildMethodWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "scheme":
		*m = WithScheme(w.Name)
	case "target":
		*m = WithTarget(w.Name)
	default:
		return fmt.Errorf("unknown build method kind %q", w.Kind)
	}
	return nil
}

// Configuration is the xcodebuild -configuration value.
type Configuration string

const (
	ConfigurationDebug   Configuration = "Debug"
	ConfigurationRelease Configuration = "Release"
)

// BuildSettings carries the parameters that vary a build/run invocation;
// spec.md §4.6.
type BuildSettings struct {
	Method        BuildMethod
	Configuration Configuration
}

// Device is the optional simulator UDID or destination string a Run
// request may carry (SPEC_FULL.md §5, supplemented from
// original_source/proto/src/types.rs's Device type).
type Device struct {
	UDID        string
	Destination string
}

func (d *Device) String() string {
	if d == nil {
		return ""
	}
	if d.UDID != "" {
		return d.UDID
	}
	return d.Destination
}

// Operation selects whether a Build/Run request is one-shot, promotes a
// Watchable, or removes one (spec.md §4.6).
type Operation int

const (
	OpOnce Operation = iota
	OpWatch
	OpStop
)

func (o Operation) String() string {
	switch o {
	case OpOnce:
		return "Once"
	case OpWatch:
		return "Watch"
	case OpStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// MarshalJSON/UnmarshalJSON give Operation an identity round trip over the
// wire (spec.md §8), serializing as its lowercase name rather than its
// underlying int.
func (o Operation) MarshalJSON() ([]byte, error) {
	switch o {
	case OpOnce:
		return json.Marshal("once")
	case OpWatch:
		return json.Marshal("watch")
	case OpStop:
		return json.Marshal("stop")
	default:
		return nil, fmt.Errorf("unknown operation %d", o)
	}
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "once":
		*o = OpOnce
	case "watch":
		*o = OpWatch
	case "stop":
		*o = OpStop
	default:
		return fmt.Errorf("unknown operation %q", s)
	}
	return nil
}

// ClientRef identifies the requesting client, carried on every client RPC
// request per spec.md §6.
type ClientRef struct {
	PID     PID
	Root    string
	Address string
}

// CompileCommand is one record of the compilation database, per spec.md's
// GLOSSARY: {directory, file, arguments}.
type CompileCommand struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
}
