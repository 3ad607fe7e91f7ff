// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the change pipeline error taxonomy
var (
	ErrNotFound          = errors.New("resource not found")
	ErrSourceUnavailable = errors.New("source of truth unavailable")
	ErrMissingRouterID   = errors.New("missing router id")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrValidationFailed  = errors.New("validation failed")
	ErrConnectivity      = errors.New("device unreachable")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrDeviceRejected    = errors.New("device rejected request")
	ErrRollbackFailed    = errors.New("rollback failed")
	ErrDeviceLocked      = errors.New("device is locked by another change")
)

// wrapped returns the sentinel plus the cause, if any, for multi-error Unwrap.
func wrapped(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}

// NotFoundError is returned when the source of truth has no record for a name.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// SourceUnavailableError is a transient transport or backend failure of the
// source of truth. It is retryable.
type SourceUnavailableError struct {
	Op  string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable during %s: %v", e.Op, e.Err)
}

func (e *SourceUnavailableError) Unwrap() []error {
	return wrapped(ErrSourceUnavailable, e.Err)
}

// NewSourceUnavailableError creates a source-unavailable error
func NewSourceUnavailableError(op string, err error) *SourceUnavailableError {
	return &SourceUnavailableError{Op: op, Err: err}
}

// MissingRouterIDError is returned when a device has no loopback interface
// carrying an address.
type MissingRouterIDError struct {
	Device string
}

func (e *MissingRouterIDError) Error() string {
	return fmt.Sprintf("device '%s' has no loopback interface with an address; cannot derive router id", e.Device)
}

func (e *MissingRouterIDError) Unwrap() error {
	return ErrMissingRouterID
}

// NewMissingRouterIDError creates a missing-router-id error
func NewMissingRouterIDError(device string) *MissingRouterIDError {
	return &MissingRouterIDError{Device: device}
}

// ConnectivityError means the device could not be reached or did not answer
// within the call timeout. It is retryable.
type ConnectivityError struct {
	Op      string
	Address string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s %s: device unreachable: %v", e.Op, e.Address, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	return wrapped(ErrConnectivity, e.Err)
}

// NewConnectivityError creates a connectivity error
func NewConnectivityError(op, address string, err error) *ConnectivityError {
	return &ConnectivityError{Op: op, Address: address, Err: err}
}

// MalformedPayloadError means a payload sent to or received from a device
// could not be encoded or decoded.
type MalformedPayloadError struct {
	Op      string
	Address string
	Reason  string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s %s: malformed payload: %s", e.Op, e.Address, e.Reason)
}

func (e *MalformedPayloadError) Unwrap() error {
	return ErrMalformedPayload
}

// NewMalformedPayloadError creates a malformed-payload error
func NewMalformedPayloadError(op, address, reason string) *MalformedPayloadError {
	return &MalformedPayloadError{Op: op, Address: address, Reason: reason}
}

// DeviceRejectedError means the device accepted the session but refused the
// request.
type DeviceRejectedError struct {
	Op      string
	Address string
	Err     error
}

func (e *DeviceRejectedError) Error() string {
	return fmt.Sprintf("%s %s: rejected by device: %v", e.Op, e.Address, e.Err)
}

func (e *DeviceRejectedError) Unwrap() []error {
	return wrapped(ErrDeviceRejected, e.Err)
}

// NewDeviceRejectedError creates a device-rejected error
func NewDeviceRejectedError(op, address string, err error) *DeviceRejectedError {
	return &DeviceRejectedError{Op: op, Address: address, Err: err}
}

// RollbackFailedError means restoring the pre-change backup failed. The
// device state is unknown and needs an operator.
type RollbackFailedError struct {
	Device   string
	ChangeID string
	Cause    error // error that triggered compensation
	Err      error // error from the restore itself
}

func (e *RollbackFailedError) Error() string {
	msg := fmt.Sprintf("rollback failed for %s (change %s): %v; device may be in an inconsistent state", e.Device, e.ChangeID, e.Err)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (triggered by: %v)", e.Cause)
	}
	return msg
}

func (e *RollbackFailedError) Unwrap() []error {
	return wrapped(ErrRollbackFailed, e.Err)
}

// NewRollbackFailedError creates a rollback-failed error
func NewRollbackFailedError(device, changeID string, cause, err error) *RollbackFailedError {
	return &RollbackFailedError{Device: device, ChangeID: changeID, Cause: cause, Err: err}
}

// IsRetryable reports whether err belongs to the transient part of the
// taxonomy: connectivity loss or source-of-truth unavailability.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRollbackFailed) {
		return false
	}
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrSourceUnavailable)
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// Merge appends the messages of another validation error. Errors of any
// other type are added by their message.
func (v *ValidationBuilder) Merge(err error) *ValidationBuilder {
	if err == nil {
		return v
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		v.errors = append(v.errors, ve.Errors...)
		return v
	}
	v.errors = append(v.errors, err.Error())
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
