package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("device", "spine01")

	msg := err.Error()
	if !strings.Contains(msg, "device") || !strings.Contains(msg, "spine01") {
		t.Errorf("Error message should contain kind and name: %s", msg)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("NotFoundError should unwrap to ErrNotFound")
	}
	if IsRetryable(err) {
		t.Errorf("NotFoundError must not be retryable")
	}
}

func TestErrorsCarryCause(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		sentinel  error
		retryable bool
	}{
		{"SourceUnavailable", NewSourceUnavailableError("fetch", cause), ErrSourceUnavailable, true},
		{"Connectivity", NewConnectivityError("set", "10.0.0.1", cause), ErrConnectivity, true},
		{"DeviceRejected", NewDeviceRejectedError("set", "10.0.0.1", cause), ErrDeviceRejected, false},
		{"RollbackFailed", NewRollbackFailedError("spine01", "c1", nil, cause), ErrRollbackFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("%s should wrap %v", tt.name, tt.sentinel)
			}
			if !errors.Is(tt.err, cause) {
				t.Errorf("%s should wrap its cause", tt.name)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if !strings.Contains(tt.err.Error(), "connection refused") {
				t.Errorf("message should contain cause: %s", tt.err.Error())
			}
		})
	}
}

func TestIsRetryableThroughWrapping(t *testing.T) {
	err := fmt.Errorf("deploy attempt 2: %w", NewConnectivityError("set", "10.0.0.1", errors.New("timeout")))
	if !IsRetryable(err) {
		t.Error("wrapped ConnectivityError should be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(NewMissingRouterIDError("leaf01")) {
		t.Error("MissingRouterIDError should not be retryable")
	}
	if IsRetryable(NewMalformedPayloadError("set", "10.0.0.1", "not json")) {
		t.Error("MalformedPayloadError should not be retryable")
	}
}

func TestRollbackFailedErrorMessage(t *testing.T) {
	err := NewRollbackFailedError("spine01", "chg-1", errors.New("validation failed"), errors.New("set timed out"))
	msg := err.Error()
	for _, want := range []string{"spine01", "chg-1", "set timed out", "validation failed", "inconsistent"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
	if errors.Is(err, ErrValidationFailed) {
		t.Error("RollbackFailedError must not unwrap to its trigger")
	}
}

func TestMissingRouterIDError(t *testing.T) {
	err := NewMissingRouterIDError("leaf01")
	if !errors.Is(err, ErrMissingRouterID) {
		t.Error("should unwrap to ErrMissingRouterID")
	}
	if !strings.Contains(err.Error(), "leaf01") {
		t.Errorf("message should name device: %s", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("field is required")
		msg := err.Error()
		if !strings.Contains(msg, "field is required") {
			t.Errorf("Error message should contain the error: %s", msg)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("field1 is required", "field2 is invalid", "field3 out of range")
		msg := err.Error()
		if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") || !strings.Contains(msg, "field3") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "this should not appear")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.AddError("unconditional error")
		v.AddErrorf("formatted error: %d", 42)

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}
		validationErr, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("Expected *ValidationError, got %T", err)
		}
		if len(validationErr.Errors) != 3 {
			t.Errorf("Expected 3 errors, got %d", len(validationErr.Errors))
		}
	})

	t.Run("merge", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Merge(nil)
		v.Merge(NewValidationError("a", "b"))
		v.Merge(errors.New("c"))

		var ve *ValidationError
		if !errors.As(v.Build(), &ve) {
			t.Fatal("expected *ValidationError")
		}
		if strings.Join(ve.Errors, ",") != "a,b,c" {
			t.Errorf("Errors = %v, want [a b c]", ve.Errors)
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrSourceUnavailable,
		ErrMissingRouterID,
		ErrValidationFailed,
		ErrConnectivity,
		ErrMalformedPayload,
		ErrDeviceRejected,
		ErrRollbackFailed,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}
