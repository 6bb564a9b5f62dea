package simplemolecule

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidation indicates a missing or malformed identifier, filename or content
	ErrValidation = errors.New("validation failed")

	// ErrRecordNotFound indicates no record exists for an identifier
	ErrRecordNotFound = errors.New("record not found")

	// ErrDecode indicates uploaded bytes could not be decoded as text
	ErrDecode = errors.New("content is not decodable text")

	// ErrUnsupportedEdit indicates an unknown edit type
	ErrUnsupportedEdit = errors.New("unsupported edit type")

	// ErrEditNoChange indicates an edit ran but left the content unchanged
	ErrEditNoChange = errors.New("edit produced no change")

	// ErrMissingSession indicates an identifier without the session separator
	ErrMissingSession = errors.New("identifier has no session part")

	// ErrSourceNotFound indicates the fallback source has no such file
	ErrSourceNotFound = errors.New("file not found in fallback source")

	// ErrFallbackTimeout indicates the fallback source did not answer in time
	ErrFallbackTimeout = errors.New("fallback read timed out")
)

// RecordError represents an error related to a record operation
type RecordError struct {
	Identifier string
	Op         string
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record operation %s failed for %q: %v", e.Op, e.Identifier, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// FallbackError represents a failed read or write against a fallback source.
type FallbackError struct {
	Source string
	Key    string
	Op     string
	Err    error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback operation %s failed for key %s on source %s: %v", e.Op, e.Key, e.Source, e.Err)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}
