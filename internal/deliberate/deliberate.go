// Package deliberate turns system state into a chosen action. Candidates are
// generated from fixed rules, then re-prioritized against episodic memory
// before one is selected.
package deliberate

import (
	"math/rand"
	"time"

	"metamorph/internal/config"
	"metamorph/internal/logging"
	"metamorph/internal/memory"
	"metamorph/internal/types"
)

// Baseline candidate priorities. Adjustment against memory happens after
// generation, so these only set the relative order among fresh candidates.
const (
	priorityReduceLoad  = 0.9
	priorityIntegrate   = 0.7
	priorityInspiration = 0.65
	priorityReview      = 0.6
	priorityMaintain    = 0.2
)

// State is the snapshot deliberation runs against.
type State struct {
	Fingerprint         string
	Load                float64
	Complexity          float64
	CyclesSinceChange   int
	PendingHypotheses   []types.Hypothesis
	UnintegratedModules []string
}

// Deliberator generates and selects actions.
type Deliberator struct {
	cfg    config.DeliberationConfig
	memory *memory.EpisodicMemory
	rng    *rand.Rand
}

// NewDeliberator wires a deliberator against the shared episodic memory. A
// nil rng gets a time-seeded one.
func NewDeliberator(cfg config.DeliberationConfig, mem *memory.EpisodicMemory, rng *rand.Rand) *Deliberator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Deliberator{cfg: cfg, memory: mem, rng: rng}
}

// GeneratePotentialActions produces the rule-based candidate set for the
// given state. At least one candidate is always returned.
func (d *Deliberator) GeneratePotentialActions(state State) []types.ActionCandidate {
	var candidates []types.ActionCandidate

	if len(state.PendingHypotheses) > 0 {
		top := state.PendingHypotheses[0]
		for _, h := range state.PendingHypotheses[1:] {
			if h.Priority > top.Priority {
				top = h
			}
		}
		hyp := top
		candidates = append(candidates, types.ActionCandidate{
			Kind:       types.ActionApplyHypothesis,
			Priority:   top.Priority,
			Reason:     "pending hypothesis: " + top.Rationale,
			Hypothesis: &hyp,
		})
	} else {
		candidates = append(candidates, types.ActionCandidate{
			Kind:     types.ActionMaintain,
			Priority: priorityMaintain,
			Reason:   "no hypotheses pending",
		})
	}

	if state.Load > d.cfg.LoadThreshold {
		candidates = append(candidates, types.ActionCandidate{
			Kind:     types.ActionReduceLoad,
			Priority: priorityReduceLoad,
			Reason:   "load above threshold",
		})
	}

	if state.CyclesSinceChange > d.cfg.StagnationCycles || state.Complexity > d.cfg.ComplexityThreshold {
		candidates = append(candidates, types.ActionCandidate{
			Kind:     types.ActionSeekInspiration,
			Priority: priorityInspiration,
			Reason:   "stagnation or complexity pressure",
		})
	}

	if state.CyclesSinceChange > d.cfg.ReviewCycles {
		candidates = append(candidates, types.ActionCandidate{
			Kind:     types.ActionReviewFailures,
			Priority: priorityReview,
			Reason:   "prolonged stagnation",
		})
	}

	if len(state.UnintegratedModules) > 0 {
		candidates = append(candidates, types.ActionCandidate{
			Kind:     types.ActionIntegrateModule,
			Priority: priorityIntegrate,
			Reason:   "unintegrated modules present",
		})
	}

	logging.DeliberationDebug("generated %d candidates for state %s", len(candidates), state.Fingerprint)
	return candidates
}

// SelectBestAction adjusts candidate priorities against episodic memory in
// two phases and picks the winner. Ties at the maximum are broken uniformly
// at random.
func (d *Deliberator) SelectBestAction(candidates []types.ActionCandidate, state State) types.Action {
	if len(candidates) == 0 {
		return types.Action{Kind: types.ActionMaintain, Reason: "no candidates generated"}
	}

	heuristics := d.memory.ExtractHeuristics()
	adjusted := make([]types.ActionCandidate, len(candidates))
	for i, c := range candidates {
		p := c.Priority

		// Phase 1: penalize kinds that have been failing recently in this
		// exact system state.
		rate := d.memory.RecentFailureRate(c.Kind, state.Fingerprint, d.cfg.FailureLookback)
		if rate > 0.5 {
			p -= 0.3 * p
			logging.DeliberationDebug("recency penalty on %s: failure rate %.2f", c.Kind, rate)
		}

		// Phase 2: bucketed adjustment from global per-kind history.
		if h, ok := heuristics[c.Kind]; ok && h.TotalAttempts >= 3 {
			switch {
			case h.SuccessRate < 0.4:
				p -= 0.15
			case h.SuccessRate < 0.6:
				p -= 0.05
			case h.SuccessRate > 0.9:
				p += 0.15
			case h.SuccessRate > 0.75:
				p += 0.05
			}
		}

		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		c.Priority = p
		adjusted[i] = c
	}

	best := adjusted[0].Priority
	for _, c := range adjusted[1:] {
		if c.Priority > best {
			best = c.Priority
		}
	}
	var top []types.ActionCandidate
	for _, c := range adjusted {
		if c.Priority == best {
			top = append(top, c)
		}
	}
	winner := top[d.rng.Intn(len(top))]

	logging.Deliberation("selected %s (priority %.2f): %s", winner.Kind, winner.Priority, winner.Reason)
	logging.Audit().Log(logging.AuditEvent{
		EventType: logging.AuditActionSelected,
		Category:  string(logging.CategoryDeliberation),
		Action:    winner.Kind.String(),
		Target:    state.Fingerprint,
		Success:   true,
		Message:   winner.Reason,
	})

	return types.Action{Kind: winner.Kind, Hypothesis: winner.Hypothesis, Reason: winner.Reason}
}

// ReflectionInterval adapts the loop cadence to the state: faster when there
// is work or pressure, slower when the system has been quiet for a long time.
func (d *Deliberator) ReflectionInterval(state State) time.Duration {
	if len(state.PendingHypotheses) > 0 || state.Load > d.cfg.LoadThreshold {
		return d.cfg.FastInterval
	}
	if state.CyclesSinceChange > d.cfg.ReviewCycles {
		return d.cfg.SlowInterval
	}
	return d.cfg.BaseInterval
}
