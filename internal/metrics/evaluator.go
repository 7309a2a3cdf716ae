// Package metrics computes structural snapshots of the registered components.
// Each evaluation appends one immutable snapshot to an ordered history; the
// hypothesis generator compares consecutive snapshots to drive proposals.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"metamorph/internal/logging"
	"metamorph/internal/types"
)

// Component is the registration contract: anything participating in metric
// evaluation exposes an identifier, its definition source, and its externally
// invocable operation count. Components may additionally implement
// types.CustomMetricProvider to contribute extra metrics.
type Component interface {
	ID() string
	Source() string
	Operations() int
}

// Registry holds the registered components in insertion order. Order matters:
// the generator's diversification rotation indexes into it.
type Registry struct {
	mu         sync.RWMutex
	components []Component
	index      map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a component. Re-registering an existing id replaces it in
// place, preserving its rotation position.
func (r *Registry) Register(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[c.ID()]; ok {
		r.components[i] = c
		return
	}
	r.index[c.ID()] = len(r.components)
	r.components = append(r.components, c)
}

// Has reports whether an id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

// IDs returns the registered ids in insertion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.components))
	for i, c := range r.components {
		ids[i] = c.ID()
	}
	return ids
}

// Components returns a snapshot of the registered components.
func (r *Registry) Components() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Component(nil), r.components...)
}

// Len returns the component count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// Evaluator computes metric snapshots over a registry and owns the history.
type Evaluator struct {
	registry *Registry
	history  []types.MetricSnapshot
	now      func() time.Time
}

// NewEvaluator creates an evaluator over the given registry.
func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry, now: time.Now}
}

// Evaluate computes one snapshot across all registered components and appends
// it to history. A component whose collection panics is logged and skipped;
// the remaining components still contribute.
func (e *Evaluator) Evaluate() types.MetricSnapshot {
	snapshot := types.MetricSnapshot{
		Timestamp:  e.now(),
		Components: make(map[string]map[string]float64),
	}

	for _, c := range e.registry.Components() {
		if c == nil {
			continue
		}
		m, err := collect(c)
		if err != nil {
			logging.Get(logging.CategoryMetrics).Warn("metric collection failed for %s: %v", c.ID(), err)
			continue
		}
		snapshot.Components[c.ID()] = m
	}

	e.history = append(e.history, snapshot)
	logging.Metrics("snapshot %d: %d components", len(e.history), len(snapshot.Components))
	return snapshot
}

// collect gathers one component's metrics, converting a panic in a custom
// metrics provider into an error so one bad component cannot abort the pass.
func collect(c Component) (m map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("panic in %s: %v", c.ID(), r)
		}
	}()

	m = map[string]float64{
		"complexity": float64(len(c.Source())),
		"operations": float64(c.Operations()),
	}
	if p, ok := c.(types.CustomMetricProvider); ok {
		for name, v := range p.CustomMetrics() {
			m[name] = v
		}
	}
	return m, nil
}

// History returns the append-only snapshot history. Callers must not mutate
// the returned slice.
func (e *Evaluator) History() []types.MetricSnapshot {
	return e.history
}

// TrimHistory drops all but the newest keep snapshots and reports how many
// were discarded. Relative order of the survivors is preserved. This is the
// one sanctioned exception to the append-only history: eviction from the
// front under load pressure, never rewriting what remains. Trend rules only
// ever read the last two snapshots, so shedding old ones cannot change a
// proposal.
func (e *Evaluator) TrimHistory(keep int) int {
	if keep < 0 {
		keep = 0
	}
	if len(e.history) <= keep {
		return 0
	}
	dropped := len(e.history) - keep
	e.history = append([]types.MetricSnapshot(nil), e.history[dropped:]...)
	logging.Metrics("history trimmed: dropped %d snapshots, %d kept", dropped, keep)
	return dropped
}

// Latest returns the most recent snapshot, or false when none exists.
func (e *Evaluator) Latest() (types.MetricSnapshot, bool) {
	if len(e.history) == 0 {
		return types.MetricSnapshot{}, false
	}
	return e.history[len(e.history)-1], true
}
