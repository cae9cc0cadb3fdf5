// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for the lmchat commands.
//
// Handlers return errors; Run prints them once and maps them to an exit
// code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/lmstudio"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitServerError indicates the server answered with an error
	ExitServerError = 9
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "model", "conversation")
	ID       string // Identifier that was not found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "argument is required",
		Example: usage,
	}
}

// ErrNotFound creates an error for a missing resource.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// DISPLAY AND EXIT CODES
// =============================================================================

// DisplayError prints err to w in the error style.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("Error:"), err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

// errorHint suggests a next step for common failures.
func errorHint(err error) string {
	switch {
	case lmstudio.IsNotRunning(err):
		return "Start the LM Studio local server, or pass --url with its address."
	case lmstudio.IsNoModels(err):
		return "Load a model in LM Studio, then try again."
	case errors.Is(err, app.ErrInvalidURL):
		return "The URL must look like http://localhost:1234"
	}
	return ""
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return ExitNotFoundError
	}
	var configErrs config.ValidateErrors
	if errors.As(err, &configErrs) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, app.ErrInvalidURL):
		return ExitUsageError
	case errors.Is(err, app.ErrUnknownModel):
		return ExitNotFoundError
	case lmstudio.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case lmstudio.IsConnectivity(err):
		return ExitNetworkError
	case lmstudio.IsServerEvent(err), lmstudio.IsNoModels(err):
		return ExitServerError
	}

	var clientErr *lmstudio.ClientError
	if errors.As(err, &clientErr) {
		return ExitServerError
	}
	return ExitGeneralError
}
