package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{NotFound("missing %s", "x"), KindNotFound},
		{PermissionDenied("no"), KindPermissionDenied},
		{PreconditionFailed("too late"), KindPreconditionFailed},
		{ClientInput("bad"), KindClientInput},
		{Engine(errors.New("boom"), ""), KindEngine},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v)=%v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestEngineMessagePassthrough(t *testing.T) {
	engineErr := errors.New("executor 7 went away")

	if got := Engine(engineErr, "").Error(); got != "executor 7 went away" {
		t.Fatalf("Error()=%q, want the engine message verbatim", got)
	}
	if got := Engine(engineErr, "Error submitting flow %s", "daily").Error(); got != "Error submitting flow daily: executor 7 went away" {
		t.Fatalf("Error()=%q, want prefixed message", got)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("while handling request: %w", NotFound("missing"))
	if got := KindOf(err); got != KindNotFound {
		t.Fatalf("KindOf(wrapped)=%v, want NotFound", got)
	}
}

func TestEngineUnwraps(t *testing.T) {
	cause := errors.New("boom")
	if !errors.Is(Engine(cause, "context"), cause) {
		t.Fatal("Engine error does not unwrap to its cause")
	}
}
