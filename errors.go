package unitgate

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that ends the run with exit code 1
// before a verdict on the tests could be reached.
// Examples include an unreadable config file, a coverage consolidation failure, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a test run that still failed on its final permitted attempt
type TestFailureError struct {
	Message string
	Err     error
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TestFailureError) Unwrap() error {
	return e.Err
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string, err error) *TestFailureError {
	return &TestFailureError{Message: message, Err: err}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
