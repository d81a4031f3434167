package engine

import "fmt"

// ValidationError reports a rejected input field.
type ValidationError struct {
    Field string
    Msg   string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg) }

func invalidf(field, format string, args ...any) *ValidationError {
    return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// BackendError wraps an internal solver failure. The corresponding solve
// outcome is SOLVER_ERROR.
type BackendError struct {
    Err error
}

func (e *BackendError) Error() string { return "solver backend failure: " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }
