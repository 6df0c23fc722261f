// Package health tracks the lazily observed state of pipeline components.
package health

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
)

// DefaultProbeTimeout bounds every probe run from Status.
const DefaultProbeTimeout = time.Second

type component struct {
	state   domain.ComponentState
	lastErr string
	details map[string]string
}

// Tracker is the process-wide component state registry. It implements
// domain.HealthReporter. State only changes through Mark* calls and probes;
// it is never reset.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*component
	probes     map[string]Probe

	probeTimeout time.Duration
	logger       *zap.Logger
}

var _ domain.HealthReporter = (*Tracker)(nil)

// NewTracker registers components in the uninitialized state.
func NewTracker(probeTimeout time.Duration, logger *zap.Logger, names ...string) *Tracker {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	t := &Tracker{
		components:   make(map[string]*component, len(names)),
		probes:       make(map[string]Probe),
		probeTimeout: probeTimeout,
		logger:       logger,
	}
	for _, n := range names {
		t.components[n] = &component{state: domain.StateUninitialized, details: map[string]string{}}
		setGauge(n, domain.StateUninitialized)
	}
	return t
}

// SetProbe installs a reachability probe for a component.
func (t *Tracker) SetProbe(name string, p Probe) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(name)
	t.probes[name] = p
}

// SetDetail attaches static information (model, collection) to a component.
func (t *Tracker) SetDetail(name, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(name).details[key] = value
}

// MarkReady implements domain.HealthReporter.
func (t *Tracker) MarkReady(name string) {
	t.transition(name, domain.StateReady, nil)
}

// MarkDegraded implements domain.HealthReporter.
func (t *Tracker) MarkDegraded(name string, err error) {
	t.transition(name, domain.StateDegraded, err)
}

// MarkFailed implements domain.HealthReporter.
func (t *Tracker) MarkFailed(name string, err error) {
	t.transition(name, domain.StateFailed, err)
}

// RecordError implements domain.HealthReporter.
func (t *Tracker) RecordError(name string, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(name).lastErr = err.Error()
}

func (t *Tracker) transition(name string, state domain.ComponentState, err error) {
	t.mu.Lock()
	c := t.get(name)
	prev := c.state
	c.state = state
	if err != nil {
		c.lastErr = err.Error()
	}
	t.mu.Unlock()

	if prev == state {
		return
	}
	setGauge(name, state)

	fields := []zap.Field{
		zap.String("component", name),
		zap.String("from", string(prev)),
		zap.String("to", string(state)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if state == domain.StateFailed {
		t.logger.Error("Component state changed", fields...)
	} else {
		t.logger.Info("Component state changed", fields...)
	}
}

// get returns the named component, registering it on first sight.
// Callers hold the write lock.
func (t *Tracker) get(name string) *component {
	c, ok := t.components[name]
	if !ok {
		c = &component{state: domain.StateUninitialized, details: map[string]string{}}
		t.components[name] = c
	}
	return c
}

// Status runs the installed probes (when probe is true) and returns a
// snapshot. Probes never load models; they only check reachability.
func (t *Tracker) Status(ctx context.Context, probe bool) domain.HealthStatus {
	if probe {
		t.runProbes(ctx)
	}
	return t.Snapshot()
}

// Snapshot returns the current state without probing.
func (t *Tracker) Snapshot() domain.HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]domain.ComponentStatus, len(t.components))
	for name, c := range t.components {
		details := make(map[string]string, len(c.details))
		for k, v := range c.details {
			details[k] = v
		}
		out[name] = domain.ComponentStatus{State: c.state, LastError: c.lastErr, Details: details}
	}
	return domain.HealthStatus{Status: domain.Overall(out), Components: out}
}

type probeResult struct {
	name    string
	details map[string]string
	err     error
}

func (t *Tracker) runProbes(ctx context.Context) {
	t.mu.RLock()
	probes := make(map[string]Probe, len(t.probes))
	for n, p := range t.probes {
		probes[n] = p
	}
	t.mu.RUnlock()

	if len(probes) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	results := make(chan probeResult, len(probes))
	for name, p := range probes {
		go func() {
			details, err := p(ctx)
			results <- probeResult{name: name, details: details, err: err}
		}()
	}

	for range probes {
		r := <-results
		if len(r.details) > 0 {
			t.mu.Lock()
			c := t.get(r.name)
			for k, v := range r.details {
				c.details[k] = v
			}
			t.mu.Unlock()
		}
		t.applyProbe(r.name, r.err)
	}
}

// applyProbe moves a component according to its probe outcome. Plain errors
// fail the component; a ProbeError names the state to move to, or keeps the
// current one and only records the error.
func (t *Tracker) applyProbe(name string, err error) {
	if err == nil {
		t.MarkReady(name)
		return
	}
	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.MarkFailed(name, err)
		return
	}
	if pe.State == "" {
		t.RecordError(name, pe.Err)
		t.logger.Warn("Component probe failed",
			zap.String("component", name), zap.Error(pe.Err))
		return
	}
	t.transition(name, pe.State, pe.Err)
}

// IndexProbe pings the store and reports whether the collection exists.
// A slow store degrades the index; any other error fails it.
func IndexProbe(idx CollectionChecker) Probe {
	return func(ctx context.Context) (map[string]string, error) {
		if err := idx.Ping(ctx); err != nil {
			return nil, indexProbeError(err)
		}
		exists, err := idx.HasCollection(ctx)
		if err != nil {
			return nil, indexProbeError(err)
		}
		return map[string]string{"collection_exists": strconv.FormatBool(exists)}, nil
	}
}

func indexProbeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return &ProbeError{Err: err, State: domain.StateDegraded}
	}
	return err
}

// ModelProbe checks that the model endpoint answers. Only errors matched by
// permanent fail the component; the rest are recorded as its last error.
// A nil permanent treats every error as transient.
func ModelProbe(m ModelChecker, permanent func(error) bool) Probe {
	return func(ctx context.Context) (map[string]string, error) {
		err := m.HealthCheck(ctx)
		if err == nil {
			return nil, nil
		}
		if permanent != nil && permanent(err) {
			return nil, err
		}
		return nil, &ProbeError{Err: err}
	}
}

func setGauge(name string, state domain.ComponentState) {
	var v float64
	switch state {
	case domain.StateReady:
		v = 1
	case domain.StateDegraded:
		v = 2
	case domain.StateFailed:
		v = 3
	}
	metrics.ComponentState.WithLabelValues(name).Set(v)
}
