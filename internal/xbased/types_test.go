package xbased

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestBuildMethodRoundTrip verifies spec.md §8's "serializing and
// deserializing any BuildMethod is the identity".
func TestBuildMethodRoundTrip(t *testing.T) {
	methods := []BuildMethod{WithScheme("App"), WithTarget("Lib")}
	for _, m := range methods {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal %v: %v", m, err)
		}
		var got BuildMethod
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if diff := cmp.Diff(m, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestBuildMethodString(t *testing.T) {
	if got := WithScheme("App").String(); got != "WithScheme(App)" {
		t.Errorf("got %q", got)
	}
	if got := WithTarget("Lib").String(); got != "WithTarget(Lib)" {
		t.Errorf("got %q", got)
	}
}

func TestOperationRoundTrip(t *testing.T) {
	for _, op := range []Operation{OpOnce, OpWatch, OpStop} {
		data, err := json.Marshal(op)
		if err != nil {
			t.Fatalf("marshal %v: %v", op, err)
		}
		var got Operation
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != op {
			t.Errorf("round trip mismatch: got %v want %v", got, op)
		}
	}
}

func TestBuildSettingsRoundTrip(t *testing.T) {
	settings := BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug}
	data, err := json.Marshal(settings)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got BuildSettings
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if diff := cmp.Diff(settings, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestBuildIdentityCanonical verifies spec.md §9's requirement that identity
// strings are a canonical, field-order-independent rendering: two
// BuildSettings values built differently but semantically equal yield the
// same identity.
func TestBuildIdentityCanonical(t *testing.T) {
	a := BuildSettings{Method: WithScheme("App"), Configuration: ConfigurationDebug}
	b := BuildSettings{Configuration: ConfigurationDebug, Method: WithScheme("App")}
	if buildIdentity("Build", a) != buildIdentity("Build", b) {
		t.Error("expected identical BuildSettings to render the same identity regardless of construction order")
	}
}

func TestOperationUnmarshalUnknown(t *testing.T) {
	var op Operation
	if err := json.Unmarshal([]byte(`"bogus"`), &op); err == nil {
		t.Error("expected error for unknown operation string")
	}
}

func TestBuildMethodUnmarshalUnknownKind(t *testing.T) {
	var m BuildMethod
	if err := json.Unmarshal([]byte(`{"kind":"bogus","name":"x"}`), &m); err == nil {
		t.Error("expected error for unknown build method kind")
	}
}
