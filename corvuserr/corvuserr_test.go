package corvuserr

import (
	"errors"
	"fmt"
	"testing"
)

var errTest = errors.New("this is a test")

func TestOfKind(t *testing.T) {
	if OfKind(errTest, KindNotFound) {
		t.Fatalf("did not expect not found error, got %T", errTest)
	}
	e := New(KindNotFound, "project not found", errTest)
	if !OfKind(e, KindNotFound) {
		t.Fatalf("expected not found error, got: %T", e)
	}
	if !errors.Is(e, NotFound) {
		t.Fatalf("expected e to match the NotFound sentinel via errors.Is")
	}
	if errors.Is(e, Conflict) {
		t.Fatalf("did not expect e to match the Conflict sentinel")
	}

	wrapped := fmt.Errorf("create project: %w", e)
	if !OfKind(wrapped, KindNotFound) {
		t.Fatalf("expected wrapped error to still report KindNotFound, got: %T", wrapped)
	}
	if !errors.Is(wrapped, NotFound) {
		t.Fatalf("expected wrapped error to match the NotFound sentinel")
	}
}

func TestUnwrap(t *testing.T) {
	e := New(KindDaemonError, "inspect container failed", errTest)
	if !errors.Is(e, errTest) {
		t.Fatalf("expected Unwrap to expose the original cause")
	}
}

func TestWrap(t *testing.T) {
	e := Wrap(KindBuildFailure, errTest)
	if e.Kind != KindBuildFailure {
		t.Fatalf("expected kind %q, got %q", KindBuildFailure, e.Kind)
	}
	if e.Message != "build_failure" {
		t.Fatalf("expected message to default to the kind string, got %q", e.Message)
	}
	if !errors.Is(e, errTest) {
		t.Fatalf("expected wrapped cause to be preserved")
	}
}

func TestErrorWithoutCause(t *testing.T) {
	e := New(KindBadRequest, "missing github_url", nil)
	if e.Error() != "missing github_url" {
		t.Fatalf("expected bare message, got %q", e.Error())
	}
}
