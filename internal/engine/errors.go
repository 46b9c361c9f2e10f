package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes persistence errors.
type ErrorCode string

const (
	// Usage errors: raised immediately, never retried.

	// ErrCodeNoTransaction indicates a mutation outside of Invoke/Apply.
	ErrCodeNoTransaction ErrorCode = "NO_TRANSACTION"

	// ErrCodeLocked indicates a mutation of a locked (duplicate) record.
	ErrCodeLocked ErrorCode = "LOCKED"

	// ErrCodeInvalidState indicates an operation that makes no sense in the
	// record's current lifecycle state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeInvalidChange indicates a malformed value change.
	ErrCodeInvalidChange ErrorCode = "INVALID_CHANGE"

	// Identity errors: abort the current commit, which is rolled back.

	// ErrCodeNoElement indicates a shadow matched no node in the document.
	ErrCodeNoElement ErrorCode = "NO_ELEMENT"

	// ErrCodeDuplicateElements indicates a shadow matched several nodes.
	ErrCodeDuplicateElements ErrorCode = "DUPLICATE_ELEMENTS"

	// ErrCodeDuplicateID indicates two top-level records of one tag share an id.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeAmbiguousID indicates an id lookup without tag that matches
	// records of different tags.
	ErrCodeAmbiguousID ErrorCode = "AMBIGUOUS_ID"

	// ErrCodeInvalidRecord indicates a record violating its kind's contract.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"

	// Structural errors: operation aborted before any state change.

	// ErrCodeNotDescendant indicates a re-parent the document does not back.
	ErrCodeNotDescendant ErrorCode = "NOT_DESCENDANT"

	// Lookup errors.

	// ErrCodeNotFound indicates no record with the requested id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeCommitFailed wraps any failure while committing a transaction.
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"
)

// PersistError is the error type returned across the engine boundary.
// Message is always human readable; Tag and ID identify the record involved
// when there is one.
type PersistError struct {
	Code    ErrorCode
	Message string
	Tag     string
	ID      string
	Err     error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Tag != "" && e.ID != "":
		msg += fmt.Sprintf(" (tag=%s, id=%s)", e.Tag, e.ID)
	case e.Tag != "":
		msg += fmt.Sprintf(" (tag=%s)", e.Tag)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PersistError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, r *Record, format string, args ...any) *PersistError {
	e := &PersistError{Code: code, Message: fmt.Sprintf(format, args...)}
	if r != nil {
		e.Tag = r.tag
		e.ID = r.ID()
	}
	return e
}

// Code returns the code of the first PersistError in err's chain, or "".
func Code(err error) ErrorCode {
	var pe *PersistError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether any PersistError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var pe *PersistError
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Err
	}
	return false
}

// IsLocked reports whether err is caused by mutating a locked record.
func IsLocked(err error) bool { return HasCode(err, ErrCodeLocked) }

// IsNoTransaction reports whether err is caused by a missing transaction.
func IsNoTransaction(err error) bool { return HasCode(err, ErrCodeNoTransaction) }

// IsNotFound reports whether err is a failed lookup.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsNoElement reports whether a shadow match found nothing.
func IsNoElement(err error) bool { return HasCode(err, ErrCodeNoElement) }

// IsDuplicate reports whether err is an ambiguous shadow match or an id
// collision.
func IsDuplicate(err error) bool {
	return HasCode(err, ErrCodeDuplicateElements) || HasCode(err, ErrCodeDuplicateID)
}

// IsNotDescendant reports whether err is a rejected re-parent.
func IsNotDescendant(err error) bool { return HasCode(err, ErrCodeNotDescendant) }
