package models

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrUnknownAction  = errors.New("unknown action")
)

// ErrorKind classifies an operation failure. The kinds map to different user
// actions: a busy device needs waiting, an unreachable one needs checking,
// a rejected command will not succeed on retry.
type ErrorKind string

const (
	ErrKindConnection ErrorKind = "connection_error"
	ErrKindTimeout    ErrorKind = "command_timeout"
	ErrKindRejected   ErrorKind = "command_rejected"
	ErrKindResolution ErrorKind = "resolution_failure"
	ErrKindBusy       ErrorKind = "operation_busy"
)

// OpError carries the classified kind plus enough context to log and display.
type OpError struct {
	Kind    ErrorKind
	Device  string
	Command string
	Err     error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s: device %s", e.Kind, e.Device)
	if e.Command != "" {
		msg += fmt.Sprintf(" (%s)", e.Command)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError builds a classified operation error.
func NewOpError(kind ErrorKind, device, command string, err error) *OpError {
	return &OpError{Kind: kind, Device: device, Command: command, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report as connection-level so they stay on the conservative
// (retryable) path.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ErrKindConnection
}

// IsRetryable reports whether the orchestrator should reconnect and retry.
// Only connection-level failures and timeouts qualify; a rejected command
// fails the same way every time.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrKindConnection, ErrKindTimeout:
		return true
	}
	return false
}
