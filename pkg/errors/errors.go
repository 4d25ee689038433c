// Unified error handling for the dashboard bridge
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Startup errors
	ErrConfigurationFatal ErrorCode = "CONFIGURATION_FATAL"
	ErrCapacityExceeded   ErrorCode = "CAPACITY_EXCEEDED"

	// Steady-state errors
	ErrUnroutableKey       ErrorCode = "UNROUTABLE_KEY"
	ErrTransportShortWrite ErrorCode = "TRANSPORT_SHORT_WRITE"
	ErrMalformedFrame      ErrorCode = "MALFORMED_FRAME"
)

// Fatal reports whether errors of this code must abort initialization.
func (c ErrorCode) Fatal() bool {
	return c == ErrConfigurationFatal || c == ErrCapacityExceeded
}

// HostError is the unified error type for the bridge
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Component names the subsystem that raised the error
	Component string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Component != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Component, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetComponent sets the raising component
func (e *HostError) SetComponent(component string) *HostError {
	e.Component = component
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// ConfigurationFatal creates an error for a required resource that is
// missing or cannot be configured at startup.
func ConfigurationFatal(component, reason string, err error) *HostError {
	return Wrap(err, ErrConfigurationFatal, reason).SetComponent(component)
}

// CapacityExceeded creates an error for a registration beyond a fixed table size.
func CapacityExceeded(table string, index, limit int) *HostError {
	return New(ErrCapacityExceeded, fmt.Sprintf("%s index %d exceeds capacity %d", table, index, limit)).
		SetContext("index", index).
		SetContext("limit", limit)
}

// UnroutableKey creates an error for a dispatch miss.
func UnroutableKey(table string, key interface{}) *HostError {
	return New(ErrUnroutableKey, fmt.Sprintf("%s: no handler for key %#x", table, key)).
		SetComponent(table).
		SetContext("key", key)
}

// TransportShortWrite creates an error for a send that wrote fewer bytes
// than requested.
func TransportShortWrite(transport string, written, requested int, err error) *HostError {
	return Wrap(err, ErrTransportShortWrite, fmt.Sprintf("short write (%d / %d)", written, requested)).
		SetComponent(transport).
		SetContext("written", written).
		SetContext("requested", requested)
}

// MalformedFrame creates an error for a frame that cannot be parsed.
func MalformedFrame(reason string, discarded int) *HostError {
	return New(ErrMalformedFrame, reason).
		SetContext("discarded", discarded)
}

// Is checks if error, or any error it wraps, matches given error code
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	for err != nil {
		if !stderrors.As(err, &hostErr) {
			return false
		}
		if hostErr.Code == code {
			return true
		}
		err = hostErr.Err
	}
	return false
}

// IsFatal checks if error is a startup-fatal error
func IsFatal(err error) bool {
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code.Fatal()
	}
	return false
}
