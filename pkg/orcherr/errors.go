// Package orcherr defines the classified error type shared by every
// orchestrator package: a single OrchError carrying enough structure for
// callers to branch on cause without string matching.
package orcherr

import (
	"errors"
	"fmt"
)

// Class classifies an error for retry and recovery logic.
type Class string

const (
	// ClassTransient indicates a failure that may succeed on retry (a
	// script exiting non-zero, a momentary resource shortage).
	ClassTransient Class = "transient"

	// ClassPermanent indicates a non-recoverable error: the component
	// goes straight to Broken and is never retried.
	ClassPermanent Class = "permanent"

	// ClassCycle indicates the dependency graph contains a cycle.
	ClassCycle Class = "cycle"

	// ClassValidation indicates malformed recipe or configuration input.
	ClassValidation Class = "validation"
)

// Code identifies the specific error kind within a Class so callers can
// branch without parsing Message.
type Code string

const (
	CodeResolution     Code = "RESOLUTION_FAILED"
	CodeScript         Code = "SCRIPT_FAILED"
	CodeDependencyKey  Code = "DEPENDENCY_KEY_INVALID"
	CodeCycle          Code = "DEPENDENCY_CYCLE"
	CodeTimeout        Code = "TIMEOUT"
	CodePolicyDenied   Code = "POLICY_DENIED"
	CodeInvalidState   Code = "INVALID_STATE_TRANSITION"
	CodeSkipifConflict Code = "SKIPIF_DOIF_CONFLICT"
)

// OrchError is the one error type every orchestrator package returns.
type OrchError struct {
	Class Class
	Code  Code

	// Component is the dotted component name the error pertains to, if any.
	Component string

	// Step is the lifecycle step being executed (install/run/shutdown/...).
	Step string

	// ExitCode is the shell exit code, when Code is CodeScript.
	ExitCode int

	Message string
	Err     error
}

func (e *OrchError) Error() string {
	switch {
	case e.Component != "" && e.Step != "":
		return fmt.Sprintf("[%s:%s] %s (component=%s, step=%s): %s",
			e.Class, e.Code, e.Message, e.Component, e.Step, e.unwrapMessage())
	case e.Component != "":
		return fmt.Sprintf("[%s:%s] %s (component=%s): %s",
			e.Class, e.Code, e.Message, e.Component, e.unwrapMessage())
	default:
		return fmt.Sprintf("[%s:%s] %s: %s", e.Class, e.Code, e.Message, e.unwrapMessage())
	}
}

func (e *OrchError) Unwrap() error { return e.Err }

func (e *OrchError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is lets errors.Is match on Class+Code without comparing Message/Err.
func (e *OrchError) Is(target error) bool {
	t, ok := target.(*OrchError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func New(class Class, code Code, message string, cause error) *OrchError {
	return &OrchError{Class: class, Code: code, Message: message, Err: cause}
}

func NewTransient(code Code, message string, cause error) *OrchError {
	return New(ClassTransient, code, message, cause)
}

func NewPermanent(code Code, message string, cause error) *OrchError {
	return New(ClassPermanent, code, message, cause)
}

func NewCycle(message string) *OrchError {
	return New(ClassCycle, CodeCycle, message, nil)
}

func NewValidation(code Code, message string, cause error) *OrchError {
	return New(ClassValidation, code, message, cause)
}

func (e *OrchError) WithComponent(name string) *OrchError {
	e.Component = name
	return e
}

func (e *OrchError) WithStep(step string) *OrchError {
	e.Step = step
	return e
}

func (e *OrchError) WithExitCode(code int) *OrchError {
	e.ExitCode = code
	return e
}

// IsTransient reports whether err (or anything it wraps) is a transient
// OrchError.
func IsTransient(err error) bool {
	var e *OrchError
	return errors.As(err, &e) && e.Class == ClassTransient
}

// IsPermanent reports whether err (or anything it wraps) is a permanent
// OrchError.
func IsPermanent(err error) bool {
	var e *OrchError
	return errors.As(err, &e) && e.Class == ClassPermanent
}

// IsCycle reports whether err is a dependency-cycle OrchError.
func IsCycle(err error) bool {
	var e *OrchError
	return errors.As(err, &e) && e.Class == ClassCycle
}

// IsValidation reports whether err is a validation OrchError.
func IsValidation(err error) bool {
	var e *OrchError
	return errors.As(err, &e) && e.Class == ClassValidation
}

// IsRetryable reports whether the scheduler should retry the step that
// produced err. Only transient errors are retryable; permanent, cycle, and
// validation errors are not.
func IsRetryable(err error) bool {
	return IsTransient(err)
}
