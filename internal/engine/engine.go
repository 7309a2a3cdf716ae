// Package engine sequences the evolution pipeline: evaluate → hypothesize →
// transform → security-check → validate → apply-or-reject → log. The engine
// is the sole owner of the cycle counter and the managed source text; the
// source is held as an immutable string value swapped only when a candidate
// modification clears every gate.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"metamorph/internal/config"
	"metamorph/internal/hypothesis"
	"metamorph/internal/ledger"
	"metamorph/internal/logging"
	"metamorph/internal/metrics"
	"metamorph/internal/security"
	"metamorph/internal/suggest"
	"metamorph/internal/transform"
	"metamorph/internal/types"
	"metamorph/internal/validate"
)

// Engine is the evolution orchestrator. All mutating entry points serialize
// on the engine mutex: only one cycle executes at a time.
type Engine struct {
	cfg         config.Config
	registry    *metrics.Registry
	evaluator   *metrics.Evaluator
	generator   *hypothesis.Generator
	transformer *transform.Transformer
	gate        *security.Gate
	validator   *validate.Validator
	ledger      *ledger.Ledger
	llm         types.LLMClient

	mu          sync.Mutex
	cycleCount  int
	source      string
	testSource  string
	lastApplied int    // cycle id of the most recent applied change
	inspiration string // cached suggestion from the last seek_inspiration

	sourceDirty atomic.Bool
}

// New loads the managed source and assembles the pipeline. The llm client is
// optional; without it the transformer works from placeholder material only.
func New(cfg config.Config, led *ledger.Ledger, llm types.LLMClient) (*Engine, error) {
	data, err := os.ReadFile(cfg.Paths.ManagedSource)
	if err != nil {
		return nil, fmt.Errorf("failed to read managed source: %w", err)
	}

	testSource := ""
	if cfg.Paths.TestSource != "" {
		if raw, err := os.ReadFile(cfg.Paths.TestSource); err == nil {
			testSource = string(raw)
		} else {
			logging.Evolution("no test source at %s: %v", cfg.Paths.TestSource, err)
		}
	}

	registry := metrics.NewRegistry()
	e := &Engine{
		cfg:         cfg,
		registry:    registry,
		evaluator:   metrics.NewEvaluator(registry),
		generator:   hypothesis.NewGenerator(cfg.Evolution, registry, rand.New(rand.NewSource(time.Now().UnixNano()))),
		transformer: transform.NewTransformer(),
		gate:        security.NewGate(),
		validator:   validate.NewValidator(0),
		ledger:      led,
		llm:         llm,
		source:      string(data),
		testSource:  testSource,
	}
	e.refreshRegistry()
	return e, nil
}

// RunCycle executes one full evolution cycle, selecting the top-priority
// hypothesis itself. Every cycle concludes with a persisted CycleResult,
// applied or not.
func (e *Engine) RunCycle(ctx context.Context) types.CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCycle(ctx, nil, "")
}

// ApplyHypothesis executes one cycle pinned to an externally chosen
// hypothesis, optionally carrying suggestion material for the transformer.
func (e *Engine) ApplyHypothesis(ctx context.Context, h types.Hypothesis, suggestion string) types.CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if suggestion == "" {
		suggestion = e.inspiration
		e.inspiration = ""
	}
	if suggestion == "" && e.llm != nil && generativeKind(h.Kind) {
		system, user := suggest.HypothesisPrompt(h)
		if text, err := e.llm.CompleteWithSystem(ctx, system, user); err == nil {
			suggestion = strings.TrimSpace(text)
		} else {
			logging.Suggest("consultation failed, proceeding without material: %v", err)
		}
	}
	return e.runCycle(ctx, &h, suggestion)
}

func (e *Engine) runCycle(ctx context.Context, chosen *types.Hypothesis, suggestion string) (result types.CycleResult) {
	e.cycleCount++
	result = types.CycleResult{
		CycleID:   e.cycleCount,
		StartedAt: time.Now().UTC(),
	}

	logging.Audit().Log(logging.AuditEvent{
		EventType: logging.AuditCycleStart,
		Category:  string(logging.CategoryEvolution),
		CycleID:   result.CycleID,
	})

	// Unexpected failures are fatal for the cycle, never for the worker.
	defer func() {
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cycle panic: %v", r))
			logging.Get(logging.CategoryEvolution).Error("cycle %d panicked: %v", result.CycleID, r)
		}
		result.FinishedAt = time.Now().UTC()
		if err := e.ledger.SaveCycleResult(result); err != nil {
			logging.Get(logging.CategoryEvolution).Error("failed to persist cycle result: %v", err)
		}
		logging.Evolution("%s", result.Summary())
		logging.Audit().Log(logging.AuditEvent{
			EventType:  logging.AuditCycleComplete,
			Category:   string(logging.CategoryEvolution),
			CycleID:    result.CycleID,
			Success:    result.Applied,
			DurationMs: result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
			Message:    result.Description,
		})
	}()

	e.reloadIfChanged()
	e.refreshRegistry()
	e.evaluator.Evaluate()

	hyps := e.generator.Generate(e.evaluator.History(), e.cycleCount)
	result.HypothesisCount = len(hyps)

	if chosen == nil {
		if len(hyps) == 0 {
			result.Description = "no hypotheses generated"
			result.SecurityPassed = true
			result.SyntaxValid = true
			result.TestsPassed = true
			return result
		}
		chosen = &hyps[0]
	}
	result.Selected = chosen

	tr := e.transformer.Apply(e.source, *chosen, suggestion)
	result.Description = tr.Description
	if !tr.Changed {
		result.SecurityPassed = true
		result.SyntaxValid = true
		result.TestsPassed = true
		return result
	}

	report := e.gate.Check(tr.Source, e.source)
	result.SecurityPassed = report.Passed
	if !report.Passed {
		for _, v := range report.Violations {
			result.Errors = append(result.Errors, "security: "+v.String())
		}
		return result
	}

	verdict := e.validator.Validate(ctx, tr.Source, e.testSource)
	result.SyntaxValid = verdict.SyntaxValid
	result.TestsPassed = verdict.TestsPassed
	if !verdict.SyntaxValid {
		result.Errors = append(result.Errors, "syntax: modified source does not parse")
		return result
	}
	if !verdict.TestsPassed {
		for _, f := range verdict.Failures {
			result.Errors = append(result.Errors, "test: "+f)
		}
		return result
	}

	if err := e.commit(tr.Source, chosen.Target, tr.Description, result.CycleID); err != nil {
		result.Errors = append(result.Errors, "apply: "+err.Error())
		return result
	}
	result.Applied = true
	e.lastApplied = e.cycleCount
	return result
}

// generativeKind reports whether a hypothesis benefits from suggestion
// material: the kinds that synthesize new code rather than insert markers.
func generativeKind(k types.HypothesisKind) bool {
	return k == types.KindExpandFunctionality || k == types.KindCreateNewModule
}

// commit swaps in the validated source: managed file first, then the
// in-memory value, then the ledger record. A failed write leaves no trace
// in the ledger; records exist only for versions that actually landed.
func (e *Engine) commit(modified, component, description string, cycleID int) error {
	prior := e.source
	if err := os.WriteFile(e.cfg.Paths.ManagedSource, []byte(modified), 0644); err != nil {
		return fmt.Errorf("failed to write managed source: %w", err)
	}
	e.source = modified
	e.ledger.LogModification(component, description, prior, modified, cycleID, true)
	return nil
}

// reloadIfChanged re-reads the managed file when the watcher flagged an
// external edit since the last cycle.
func (e *Engine) reloadIfChanged() {
	if !e.sourceDirty.Swap(false) {
		return
	}
	data, err := os.ReadFile(e.cfg.Paths.ManagedSource)
	if err != nil {
		logging.Get(logging.CategoryEvolution).Error("failed to reload managed source: %v", err)
		return
	}
	if string(data) != e.source {
		e.source = string(data)
		logging.Evolution("managed source reloaded after external edit (%d bytes)", len(data))
	}
}

// CycleCount reports how many cycles have run.
func (e *Engine) CycleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycleCount
}

// CyclesSinceChange reports how many cycles have completed since the last
// applied modification.
func (e *Engine) CyclesSinceChange() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycleCount - e.lastApplied
}

// Source returns the current managed source value.
func (e *Engine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// PendingHypotheses returns the generator's most recent proposal list.
func (e *Engine) PendingHypotheses() []types.Hypothesis {
	return e.generator.Last()
}

// Unintegrated lists generated units not yet wired into registration.
func (e *Engine) Unintegrated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unintegratedModules()
}

// Observe refreshes the registry, takes a metric snapshot, and summarizes it
// for deliberation: the snapshot fingerprint, a load figure, and the total
// complexity across components.
func (e *Engine) Observe() (fingerprint string, load, complexity float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reloadIfChanged()
	e.refreshRegistry()
	snapshot := e.evaluator.Evaluate()

	for _, metricSet := range snapshot.Components {
		for name, value := range metricSet {
			switch {
			case strings.Contains(name, "load"):
				load += value
			case strings.Contains(name, "complexity"):
				complexity += value
			}
		}
	}
	return snapshot.Fingerprint(), load, complexity
}

// History exposes the evaluator's snapshot history for reporting.
func (e *Engine) History() []types.MetricSnapshot {
	return e.evaluator.History()
}
