// Package types holds the shared data model for the evolution pipeline.
// Everything here is a plain value: snapshots, hypotheses, records, and
// episodes flow one direction through the cycle and are never mutated after
// creation.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// TargetSystem is the sentinel target for hypotheses that do not reference a
// registered component (e.g. creating a brand-new module).
const TargetSystem = "system"

// =============================================================================
// METRIC SNAPSHOTS
// =============================================================================

// MetricSnapshot captures every registered component's metrics at one point
// in time. Snapshots are immutable once appended to history.
type MetricSnapshot struct {
	Timestamp  time.Time                     `json:"timestamp"`
	Components map[string]map[string]float64 `json:"components"`
}

// Fingerprint returns a deterministic short hash of the snapshot's metric
// values, used to correlate episodes recorded in similar situations.
// Iteration order is normalized so equal snapshots always hash equal.
func (s MetricSnapshot) Fingerprint() string {
	h := sha256.New()
	comps := make([]string, 0, len(s.Components))
	for id := range s.Components {
		comps = append(comps, id)
	}
	sort.Strings(comps)
	for _, id := range comps {
		metrics := s.Components[id]
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(h, "%s.%s=%.6f;", id, name, metrics[name])
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Metric returns one component's metric value and whether it was recorded.
func (s MetricSnapshot) Metric(component, name string) (float64, bool) {
	m, ok := s.Components[component]
	if !ok {
		return 0, false
	}
	v, ok := m[name]
	return v, ok
}

// =============================================================================
// HYPOTHESES
// =============================================================================

// HypothesisKind enumerates the closed set of change proposals the generator
// can emit. Dispatch on kind is table-driven, never string matching.
type HypothesisKind int

const (
	KindRefactorSimplification HypothesisKind = iota
	KindExpandFunctionality
	KindOptimizePerformance
	KindCreateNewModule
	KindIntegration
)

// String returns the wire name of the kind.
func (k HypothesisKind) String() string {
	switch k {
	case KindRefactorSimplification:
		return "refactor_simplification"
	case KindExpandFunctionality:
		return "expand_functionality"
	case KindOptimizePerformance:
		return "optimize_performance"
	case KindCreateNewModule:
		return "create_new_module"
	case KindIntegration:
		return "integration"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name
// in JSON records.
func (k HypothesisKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *HypothesisKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "refactor_simplification":
		*k = KindRefactorSimplification
	case "expand_functionality":
		*k = KindExpandFunctionality
	case "optimize_performance":
		*k = KindOptimizePerformance
	case "create_new_module":
		*k = KindCreateNewModule
	case "integration":
		*k = KindIntegration
	default:
		return fmt.Errorf("unknown hypothesis kind %q", text)
	}
	return nil
}

// Hypothesis is a prioritized, structured proposal describing what should
// change and why. Priority is always within [0,1].
type Hypothesis struct {
	Target            string         `json:"target"`
	Kind              HypothesisKind `json:"kind"`
	Rationale         string         `json:"rationale"`
	Priority          float64        `json:"priority"`
	IntegrationTarget string         `json:"integration_target,omitempty"`
}

// Key returns the dedup key: at most one hypothesis per (kind, target) pair
// survives a generation pass.
func (h Hypothesis) Key() string {
	return h.Kind.String() + "|" + h.Target
}

// =============================================================================
// MODIFICATION RECORDS & CYCLE RESULTS
// =============================================================================

// ModificationRecord is the ledger entry for one applied modification.
// Records are write-once; the ledger never edits or deletes them.
type ModificationRecord struct {
	ID          string    `json:"id"`
	CycleID     int       `json:"cycle_id"`
	Component   string    `json:"component"`
	Description string    `json:"description"`
	SizeDelta   int       `json:"size_delta"`
	HashBefore  string    `json:"hash_before"`
	HashAfter   string    `json:"hash_after"`
	TestsPassed bool      `json:"tests_passed"`
	Timestamp   time.Time `json:"timestamp"`
}

// CycleResult summarizes one full evolution cycle, applied or not. Every
// cycle produces exactly one result; none disappear silently.
type CycleResult struct {
	CycleID         int         `json:"cycle_id"`
	HypothesisCount int         `json:"hypothesis_count"`
	Selected        *Hypothesis `json:"selected,omitempty"`
	Description     string      `json:"description,omitempty"`
	SecurityPassed  bool        `json:"security_passed"`
	SyntaxValid     bool        `json:"syntax_valid"`
	TestsPassed     bool        `json:"tests_passed"`
	Applied         bool        `json:"applied"`
	Errors          []string    `json:"errors,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
}

// Summary renders the one-line cycle conclusion emitted for every cycle.
func (r CycleResult) Summary() string {
	status := "no change"
	if r.Applied {
		status = "applied"
	} else if len(r.Errors) > 0 {
		status = "errored"
	} else if !r.SecurityPassed {
		status = "blocked by security gate"
	} else if !r.SyntaxValid {
		status = "rejected: invalid syntax"
	} else if !r.TestsPassed {
		status = "rejected: tests failed"
	}
	target := "-"
	if r.Selected != nil {
		target = fmt.Sprintf("%s on %s", r.Selected.Kind, r.Selected.Target)
	}
	return fmt.Sprintf("cycle %d: %s (%s, %d hypotheses)", r.CycleID, status, target, r.HypothesisCount)
}

// =============================================================================
// ACTIONS & EPISODES
// =============================================================================

// ActionKind enumerates the closed set of actions the deliberation engine
// chooses between iterations.
type ActionKind int

const (
	ActionMaintain ActionKind = iota
	ActionApplyHypothesis
	ActionReduceLoad
	ActionSeekInspiration
	ActionReviewFailures
	ActionIntegrateModule
)

// String returns the wire name of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionMaintain:
		return "maintain"
	case ActionApplyHypothesis:
		return "apply_hypothesis"
	case ActionReduceLoad:
		return "reduce_load"
	case ActionSeekInspiration:
		return "seek_inspiration"
	case ActionReviewFailures:
		return "review_failures"
	case ActionIntegrateModule:
		return "integrate_module"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "maintain":
		*k = ActionMaintain
	case "apply_hypothesis":
		*k = ActionApplyHypothesis
	case "reduce_load":
		*k = ActionReduceLoad
	case "seek_inspiration":
		*k = ActionSeekInspiration
	case "review_failures":
		*k = ActionReviewFailures
	case "integrate_module":
		*k = ActionIntegrateModule
	default:
		return fmt.Errorf("unknown action kind %q", text)
	}
	return nil
}

// IsEvolution reports whether the kind applies a source modification, which
// determines its episode failure criterion: evolution actions fail when the
// modification was not applied or the cycle recorded errors; all other kinds
// fail on an explicit unsuccessful result, a present error, or a nil result.
func (k ActionKind) IsEvolution() bool {
	return k == ActionApplyHypothesis || k == ActionIntegrateModule
}

// Action pairs a kind with its payload.
type Action struct {
	Kind       ActionKind  `json:"kind"`
	Hypothesis *Hypothesis `json:"hypothesis,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// ActionResult is the structured outcome of executing an action. Fields
// carry both failure criteria; which one applies depends on the action kind.
type ActionResult struct {
	Applied bool     `json:"applied"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
	Err     string   `json:"error,omitempty"`
	Empty   bool     `json:"empty,omitempty"` // no result was produced at all
}

// Failed applies the per-kind failure criterion.
func (r ActionResult) Failed(kind ActionKind) bool {
	if kind.IsEvolution() {
		return !r.Applied || len(r.Errors) > 0
	}
	return !r.Success || r.Err != "" || r.Empty
}

// Episode is one recorded (action, outcome, pre-state) tuple.
type Episode struct {
	Action      Action       `json:"action"`
	Result      ActionResult `json:"result"`
	Fingerprint string       `json:"fingerprint"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ActionCandidate is an ephemeral scored action considered within a single
// deliberation pass.
type ActionCandidate struct {
	Kind       ActionKind
	Priority   float64
	Reason     string
	Hypothesis *Hypothesis
}
