// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lmstudio

import "errors"

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeNoModels
	ErrTypeServerEvent
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeNoModels:
		return "no_models"
	case ErrTypeServerEvent:
		return "server_event"
	default:
		return "unknown"
	}
}

// ClientError represents an error from the inference client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any *ClientError of the same Type, so the sentinels below work
// with errors.Is even when the returned error carries its own message.
func (e *ClientError) Is(target error) bool {
	var t *ClientError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning  = &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not reachable"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNoModels    = &ClientError{Type: ErrTypeNoModels, Message: "no models available"}
	ErrServerEvent = &ClientError{Type: ErrTypeServerEvent, Message: "server sent an error event"}
)

func isType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// IsNotRunning checks if an error indicates the server is unreachable.
func IsNotRunning(err error) bool {
	return isType(err, ErrTypeNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return isType(err, ErrTypeTimeout)
}

// IsNoModels checks if the server answered with an empty model list.
func IsNoModels(err error) bool {
	return isType(err, ErrTypeNoModels)
}

// IsServerEvent checks if the stream was aborted by an error event.
func IsServerEvent(err error) bool {
	return isType(err, ErrTypeServerEvent)
}

// IsConnectivity reports whether err means the server could not be used at
// all: unreachable, timed out, a non-success status or a broken body.
func IsConnectivity(err error) bool {
	return isType(err, ErrTypeNotRunning) ||
		isType(err, ErrTypeTimeout) ||
		isType(err, ErrTypeConnection) ||
		isType(err, ErrTypeInvalidResponse)
}
