package domain

import "errors"

var (
	// ErrValidation signals a malformed request (empty query, out-of-range limit).
	ErrValidation = errors.New("validation failed")
	// ErrModelUnavailable signals that the embedding model could not be loaded or queried.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrIndexUnavailable signals that the vector store cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrSynthesisFailed signals a language model failure.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
	// ErrTimeout signals that a pipeline stage exceeded its deadline.
	ErrTimeout = errors.New("stage timed out")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// ValidationError describes which request field failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
