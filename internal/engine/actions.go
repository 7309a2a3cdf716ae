package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"metamorph/internal/logging"
	"metamorph/internal/memory"
	"metamorph/internal/suggest"
	"metamorph/internal/types"
)

// historyKeep is how many metric snapshots survive a reduce_load pass.
const historyKeep = 50

// Maintain takes a fresh metric snapshot without attempting any change.
func (e *Engine) Maintain(ctx context.Context) types.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reloadIfChanged()
	e.refreshRegistry()
	snapshot := e.evaluator.Evaluate()
	return types.ActionResult{Success: true, Empty: len(snapshot.Components) == 0}
}

// ReduceLoad sheds accumulated in-memory state: old metric snapshots and the
// cached inspiration material.
func (e *Engine) ReduceLoad(ctx context.Context) types.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	dropped := e.evaluator.TrimHistory(historyKeep)
	e.inspiration = ""
	logging.Evolution("load reduction: %d snapshots dropped", dropped)
	return types.ActionResult{Success: true}
}

// SeekInspiration consults the generation service for improvement material
// and caches it for the next applied hypothesis. Without a client, or with
// an empty response, the result is marked empty.
func (e *Engine) SeekInspiration(ctx context.Context) types.ActionResult {
	if e.llm == nil {
		return types.ActionResult{Success: true, Empty: true}
	}

	e.mu.Lock()
	ids := e.registry.IDs()
	e.mu.Unlock()

	text, err := e.llm.Complete(ctx, suggest.InspirationPrompt(ids))
	if err != nil {
		return types.ActionResult{Success: false, Err: err.Error()}
	}
	text = strings.TrimSpace(text)

	e.mu.Lock()
	e.inspiration = text
	e.mu.Unlock()

	logging.Evolution("inspiration gathered (%d chars)", len(text))
	return types.ActionResult{Success: true, Empty: text == ""}
}

// ReviewFailures logs a digest of per-kind outcome statistics so prolonged
// stagnation leaves an inspectable trace.
func (e *Engine) ReviewFailures(ctx context.Context, heuristics map[types.ActionKind]memory.Heuristic) types.ActionResult {
	if len(heuristics) == 0 {
		logging.Evolution("failure review: no episodes recorded yet")
		return types.ActionResult{Success: true, Empty: true}
	}

	kinds := make([]types.ActionKind, 0, len(heuristics))
	for kind := range heuristics {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		h := heuristics[kind]
		logging.Evolution("failure review: %s success=%.0f%% over %d attempts",
			kind, h.SuccessRate*100, h.TotalAttempts)
	}
	return types.ActionResult{Success: true}
}

// IntegrateModule wires the oldest unintegrated generated unit to a
// registered component via an integration cycle.
func (e *Engine) IntegrateModule(ctx context.Context) types.ActionResult {
	e.mu.Lock()
	orphans := e.unintegratedModules()
	ids := e.registry.IDs()
	e.mu.Unlock()

	if len(orphans) == 0 {
		return types.ActionResult{Success: true, Empty: true}
	}

	target := orphans[0]
	partner := types.TargetSystem
	for _, id := range ids {
		if id != target {
			partner = id
			break
		}
	}

	result := e.ApplyHypothesis(ctx, types.Hypothesis{
		Target:            target,
		Kind:              types.KindIntegration,
		Rationale:         fmt.Sprintf("wire unintegrated unit %s to %s", target, partner),
		Priority:          0.7,
		IntegrationTarget: partner,
	}, "")

	return types.ActionResult{
		Applied: result.Applied,
		Success: result.Applied,
		Errors:  result.Errors,
	}
}
