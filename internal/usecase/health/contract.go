package health

import (
	"context"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// Probe is a lightweight reachability check. It may return details to show
// next to the component state.
type Probe func(ctx context.Context) (map[string]string, error)

// ProbeError is a probe failure that does not fail the component. An empty
// State keeps the component where it is.
type ProbeError struct {
	Err   error
	State domain.ComponentState
}

func (e *ProbeError) Error() string { return e.Err.Error() }

func (e *ProbeError) Unwrap() error { return e.Err }

// Pinger checks vector store availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CollectionChecker reports whether the target collection exists.
type CollectionChecker interface {
	Pinger
	HasCollection(ctx context.Context) (bool, error)
}

// ModelChecker checks language model availability.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
