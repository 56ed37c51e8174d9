// internal/form/errors.go
//
// Adept – Forms subsystem: error taxonomy.
//
// Context
//   The pipeline distinguishes failures by who caused them and how much of
//   the request they abort:
//
//   •  SecurityError    – whole submission rejected, generic notice only.
//   •  RuleError        – one field failed one rule; other fields still run.
//   •  UploadError      – one file dropped; the field becomes nil.
//   •  PersistenceError – the storage adapter failed; no rollback.
//   •  ProcessingError  – a hook failed or panicked; message is surfaced.
//
//   Handlers never return these to HTTP callers directly.  Process converts
//   them into a Result.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
)

// SecurityError names the failed check for logs.  Its Error text is the
// generic user-facing notice, so the failing check never leaks.
type SecurityError struct {
	Check string
	Err   error
}

func (e *SecurityError) Error() string { return "Security check failed.  Please reload the page and try again." }
func (e *SecurityError) Unwrap() error { return e.Err }

// RuleError is one field-level validation failure.
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string { return e.Message }

// UploadError describes a rejected file.
type UploadError struct {
	Field  string
	Reason string
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload %s: %s", e.Field, e.Reason) }

// PersistenceError wraps a storage adapter failure.
type PersistenceError struct{ Err error }

func (e *PersistenceError) Error() string { return "save failed: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ProcessingError wraps a hook failure or a recovered panic.
type ProcessingError struct{ Err error }

func (e *ProcessingError) Error() string { return e.Err.Error() }
func (e *ProcessingError) Unwrap() error { return e.Err }

// IsSecurityError reports whether err is or wraps a *SecurityError.
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}
