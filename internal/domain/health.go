package domain

// ComponentState is the lazily observed readiness of a pipeline component.
type ComponentState string

const (
	// StateUninitialized means the component has not been used or probed yet.
	StateUninitialized ComponentState = "uninitialized"
	// StateReady means the last observation succeeded.
	StateReady ComponentState = "ready"
	// StateDegraded means the component works intermittently.
	StateDegraded ComponentState = "degraded"
	// StateFailed means the component is unusable.
	StateFailed ComponentState = "failed"
)

// Component names reported by /api/health.
const (
	ComponentEmbedder    = "embedder"
	ComponentVectorIndex = "vector_index"
	ComponentLLM         = "llm"
)

// HealthReporter receives state transitions from components.
type HealthReporter interface {
	MarkReady(component string)
	MarkDegraded(component string, err error)
	MarkFailed(component string, err error)
	// RecordError notes a failure that does not change the component state.
	RecordError(component string, err error)
}

// NopHealthReporter discards all reports.
type NopHealthReporter struct{}

// MarkReady implements HealthReporter.
func (NopHealthReporter) MarkReady(string) {}

// MarkDegraded implements HealthReporter.
func (NopHealthReporter) MarkDegraded(string, error) {}

// MarkFailed implements HealthReporter.
func (NopHealthReporter) MarkFailed(string, error) {}

// RecordError implements HealthReporter.
func (NopHealthReporter) RecordError(string, error) {}

// OverallStatus summarizes all components.
type OverallStatus string

const (
	// Healthy means every component is ready.
	Healthy OverallStatus = "healthy"
	// Degraded means nothing failed but some component is not ready yet or
	// works intermittently.
	Degraded OverallStatus = "degraded"
	// Unhealthy means at least one component failed.
	Unhealthy OverallStatus = "error"
)

// ComponentStatus is the observed state of one component.
type ComponentStatus struct {
	State     ComponentState
	LastError string
	Details   map[string]string
}

// HealthStatus is the process-wide health snapshot.
type HealthStatus struct {
	Status     OverallStatus
	Components map[string]ComponentStatus
}

// Overall derives the summary status: any failed component is an error, any
// component not ready is degraded.
func Overall(components map[string]ComponentStatus) OverallStatus {
	status := Healthy
	for _, c := range components {
		switch c.State {
		case StateFailed:
			return Unhealthy
		case StateReady:
		default:
			status = Degraded
		}
	}
	return status
}
