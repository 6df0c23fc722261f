package podcastqa

import "github.com/kailas-cloud/podcastqa/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation        = domain.ErrValidation
	ErrModelUnavailable  = domain.ErrModelUnavailable
	ErrIndexUnavailable  = domain.ErrIndexUnavailable
	ErrSynthesisFailed   = domain.ErrSynthesisFailed
	ErrTimeout           = domain.ErrTimeout
	ErrVectorDimMismatch = domain.ErrVectorDimMismatch
)
