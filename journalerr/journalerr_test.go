package journalerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndError(t *testing.T) {
	e := New(CodeNotFound, "no such resource")
	if e.Code != CodeNotFound {
		t.Errorf("Code = %v, want %v", e.Code, CodeNotFound)
	}
	if e.Error() != "[NOT_FOUND] no such resource" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestWithCauseIncludedInMessage(t *testing.T) {
	cause := errors.New("disk full")
	e := New(CodeInternal, "commit failed").WithCause(cause)
	want := "[INTERNAL_ERROR] commit failed: disk full"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
	if !errors.Is(e, cause) {
		t.Errorf("errors.Is should see through Unwrap to cause")
	}
}

func TestWithContextAccumulates(t *testing.T) {
	e := New(CodeInvalidArgument, "bad field").WithContext("field", "turns").WithContext("value", "-1")
	if e.Context["field"] != "turns" || e.Context["value"] != "-1" {
		t.Errorf("Context = %v", e.Context)
	}
}

func TestIsMatchesCodeThroughWrapping(t *testing.T) {
	base := New(CodeReplay, "divergence detected")
	wrapped := fmt.Errorf("engine: %w", base)
	if !Is(wrapped, CodeReplay) {
		t.Errorf("Is should see through fmt.Errorf wrapping to the *Error code")
	}
	if Is(wrapped, CodeNotFound) {
		t.Errorf("Is should not match an unrelated code")
	}
	if Is(errors.New("plain"), CodeInternal) {
		t.Errorf("Is must return false for a non-journalerr error")
	}
}
