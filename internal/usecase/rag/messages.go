package rag

import (
	"errors"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// User-facing answers that replace a synthesized one.
const (
	NoResultsAnswer = "I couldn't find any relevant content to answer your question. " +
		"Please try rephrasing your question or asking about a different topic."
	ApologyAnswer = "Sorry, I couldn't generate an answer right now. " +
		"Please try again in a moment."
)

// UserMessage maps an error to a stable message that is safe to show.
// Validation messages are passed through; everything else is generic.
func UserMessage(err error) string {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "Invalid " + ve.Field + ": " + ve.Reason
	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"
	case errors.Is(err, domain.ErrTimeout):
		return "The request took too long. Please try again."
	case errors.Is(err, domain.ErrModelUnavailable):
		return "The search model is not available right now. Please try again later."
	case errors.Is(err, domain.ErrIndexUnavailable), errors.Is(err, domain.ErrVectorDimMismatch):
		return "The podcast index is not reachable right now. Please try again later."
	case errors.Is(err, domain.ErrSynthesisFailed):
		return ApologyAnswer
	default:
		return "Something went wrong while answering your question."
	}
}
