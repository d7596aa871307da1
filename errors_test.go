package binquery

import (
	"errors"
	"strings"
	"testing"
)

func TestWithContext(t *testing.T) {
	err := WithContext(ErrIndexExists, map[string]interface{}{
		"index": "person-age-index",
	})
	if !errors.Is(err, ErrIndexExists) {
		t.Error("wrapped error lost its sentinel")
	}
	if !strings.Contains(err.Error(), "person-age-index") {
		t.Errorf("error %q missing the context", err.Error())
	}

	if WithContext(nil, nil) != nil {
		t.Error("WithContext(nil) should stay nil")
	}

	bare := WithContext(ErrRecordNotFound, nil)
	if bare.Error() != ErrRecordNotFound.Error() {
		t.Errorf("empty context changed the message: %q", bare.Error())
	}
}

func TestErrorHelpers(t *testing.T) {
	wrap := func(err error) error {
		return WithContext(err, map[string]interface{}{"k": "v"})
	}

	if !IsScansDisabled(wrap(ErrScansDisabled)) {
		t.Error("IsScansDisabled missed a wrapped sentinel")
	}
	if !IsIndexExists(wrap(ErrIndexExists)) {
		t.Error("IsIndexExists missed a wrapped sentinel")
	}
	if !IsIndexNotFound(wrap(ErrIndexNotFound)) {
		t.Error("IsIndexNotFound missed a wrapped sentinel")
	}
	if !IsNotFound(wrap(ErrRecordNotFound)) {
		t.Error("IsNotFound missed a wrapped sentinel")
	}
	if IsScansDisabled(ErrIndexExists) {
		t.Error("IsScansDisabled matched the wrong sentinel")
	}
}

func TestContextSyntaxError_Format(t *testing.T) {
	err := &ContextSyntaxError{
		Input:     "ab..cd",
		Offending: "ab..cd",
		Pos:       3,
		Reason:    "contains empty context",
	}
	msg := err.Error()
	for _, want := range []string{"ab..cd", "contains empty context", "position 3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, ErrInvalidContext) {
		t.Error("ContextSyntaxError does not unwrap to ErrInvalidContext")
	}
}

func TestScansDisabledMessage(t *testing.T) {
	if ErrScansDisabled.Error() != "full scans are disabled by default" {
		t.Errorf("sentinel text changed: %q", ErrScansDisabled.Error())
	}
}
