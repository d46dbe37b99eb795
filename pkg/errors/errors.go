// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for the
// orchestration engine. Parse failures are recovered locally by their
// components and never reach callers as errors; the codes here cover the
// failures that become step results or user-visible aborts.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies engine errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodePlanParse indicates planner output could not be parsed. Always
	// recovered into an empty-plan sentinel.
	CodePlanParse ErrorCode = "PLAN_PARSE"

	// CodeSupervisorParse indicates supervisor output could not be parsed.
	// Always recovered fail-open into a SUCCESS verdict.
	CodeSupervisorParse ErrorCode = "SUPERVISOR_PARSE"

	// CodeToolNotFound indicates a step referenced an unregistered tool.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeSkillNotFound indicates a step referenced an unknown skill.
	CodeSkillNotFound ErrorCode = "SKILL_NOT_FOUND"

	// CodePermissionDenied indicates tenant permissions removed the tool.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodeCapabilityConnection indicates a capability provider could not be
	// reached. Negative-cached by the pool.
	CodeCapabilityConnection ErrorCode = "CAPABILITY_CONNECTION"

	// CodePlanAbort indicates the supervisor aborted the plan.
	CodePlanAbort ErrorCode = "PLAN_ABORT"

	// CodeModelGateway indicates the model gateway call failed.
	CodeModelGateway ErrorCode = "MODEL_GATEWAY"

	// CodeMemoryError indicates a memory retrieval error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
)

// Error is a typed error with context for observability. It implements the
// error interface and can be matched with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"code":        string(e.Code),
		"message":     e.Error(),
		"recoverable": e.Recoverable,
	}
	if e.Err != nil {
		out["error"] = e.Err.Error()
	}
	if len(e.Context) > 0 {
		out["context"] = e.Context
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
	}
}

// WithContext adds a key-value pair to the error context. Returns the error
// for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As attempts to convert an error to *Error, wrapping unknown errors as
// internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return New(CodeInternal, "wrapped error", err)
}
