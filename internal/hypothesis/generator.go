// Package hypothesis turns the metric history into prioritized, deduplicated
// change proposals. The generator is deterministic apart from the exploratory
// integration rule, which draws from an injected random source.
package hypothesis

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"metamorph/internal/config"
	"metamorph/internal/logging"
	"metamorph/internal/metrics"
	"metamorph/internal/types"
)

// Priorities for each proposal rule. Delta-driven rules outrank coverage and
// diversification so regressions get attention first.
const (
	priorityRefactor      = 0.8
	priorityOptimize      = 0.75
	priorityCreateModule  = 0.7
	priorityIntegration   = 0.6
	priorityExpand        = 0.55
	priorityDiversify     = 0.5
)

// Generator produces hypotheses from metric history and the component
// registry. The last generated list is cached for downstream introspection.
type Generator struct {
	cfg      config.EvolutionConfig
	registry *metrics.Registry
	rng      *rand.Rand
	last     []types.Hypothesis
}

// NewGenerator creates a generator. rng may be nil, in which case a
// time-seeded source is used.
func NewGenerator(cfg config.EvolutionConfig, registry *metrics.Registry, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Generator{cfg: cfg, registry: registry, rng: rng}
}

// Generate runs all proposal rules against the history and returns the
// deduplicated, priority-sorted hypothesis list for the given cycle.
func (g *Generator) Generate(history []types.MetricSnapshot, cycleCount int) []types.Hypothesis {
	var proposals []types.Hypothesis

	proposals = append(proposals, g.deltaProposals(history)...)
	proposals = append(proposals, g.coverageProposals(history)...)
	proposals = g.applyRotation(proposals, cycleCount)
	proposals = append(proposals, g.structuralProposals()...)
	proposals = append(proposals, g.exploratoryProposals()...)

	result := g.dedup(g.validate(proposals))
	g.last = result

	logging.Hypothesis("cycle %d: %d proposals after dedup", cycleCount, len(result))
	return result
}

// Last returns the most recently generated hypothesis list.
func (g *Generator) Last() []types.Hypothesis {
	return g.last
}

// deltaProposals compares the two most recent snapshots. Complexity metrics
// growing beyond the configured ratio propose a refactor; performance metrics
// falling under the floor propose an optimization.
func (g *Generator) deltaProposals(history []types.MetricSnapshot) []types.Hypothesis {
	if len(history) < 2 {
		return nil
	}
	prev := history[len(history)-2]
	curr := history[len(history)-1]

	var out []types.Hypothesis
	for component, currMetrics := range curr.Components {
		prevMetrics, ok := prev.Components[component]
		if !ok {
			continue
		}
		for name, currVal := range currMetrics {
			prevVal, ok := prevMetrics[name]
			if !ok || prevVal == 0 {
				continue
			}
			ratio := currVal / prevVal
			switch {
			case isComplexityMetric(name) && ratio > g.cfg.ComplexityGrowth:
				out = append(out, types.Hypothesis{
					Target:    component,
					Kind:      types.KindRefactorSimplification,
					Rationale: fmt.Sprintf("%s grew %.0f%% (%.1f -> %.1f)", name, (ratio-1)*100, prevVal, currVal),
					Priority:  priorityRefactor,
				})
			case isPerformanceMetric(name) && ratio < g.cfg.PerformanceFloor:
				out = append(out, types.Hypothesis{
					Target:    component,
					Kind:      types.KindOptimizePerformance,
					Rationale: fmt.Sprintf("%s dropped to %.0f%% of prior value", name, ratio*100),
					Priority:  priorityOptimize,
				})
			}
		}
	}
	return out
}

// coverageProposals flags components with too few recorded metrics.
func (g *Generator) coverageProposals(history []types.MetricSnapshot) []types.Hypothesis {
	if len(history) == 0 {
		return nil
	}
	latest := history[len(history)-1]

	var out []types.Hypothesis
	for component, m := range latest.Components {
		if len(m) < g.cfg.CoverageMinimum {
			out = append(out, types.Hypothesis{
				Target:    component,
				Kind:      types.KindExpandFunctionality,
				Rationale: fmt.Sprintf("only %d metrics recorded, below minimum %d", len(m), g.cfg.CoverageMinimum),
				Priority:  priorityExpand,
			})
		}
	}
	return out
}

// applyRotation favors a different component each cycle so no component
// starves: the favored component always receives a proposal of its own,
// below the delta-driven priorities so urgent work still wins.
func (g *Generator) applyRotation(proposals []types.Hypothesis, cycleCount int) []types.Hypothesis {
	ids := g.registry.IDs()
	if len(ids) == 0 {
		return proposals
	}
	favored := ids[cycleCount%len(ids)]

	return append(proposals, types.Hypothesis{
		Target:    favored,
		Kind:      types.KindExpandFunctionality,
		Rationale: "diversification rotation",
		Priority:  priorityDiversify,
	})
}

// structuralProposals suggests growing the system while it is small.
func (g *Generator) structuralProposals() []types.Hypothesis {
	if g.registry.Len() >= g.cfg.MinComponents {
		return nil
	}
	return []types.Hypothesis{{
		Target:    types.TargetSystem,
		Kind:      types.KindCreateNewModule,
		Rationale: fmt.Sprintf("only %d components registered, below %d", g.registry.Len(), g.cfg.MinComponents),
		Priority:  priorityCreateModule,
	}}
}

// exploratoryProposals occasionally suggests integrating two random
// components.
func (g *Generator) exploratoryProposals() []types.Hypothesis {
	ids := g.registry.IDs()
	if len(ids) < 2 || g.rng.Float64() >= g.cfg.IntegrationChance {
		return nil
	}
	i := g.rng.Intn(len(ids))
	j := g.rng.Intn(len(ids) - 1)
	if j >= i {
		j++
	}
	return []types.Hypothesis{{
		Target:            ids[i],
		Kind:              types.KindIntegration,
		Rationale:         fmt.Sprintf("explore integration between %s and %s", ids[i], ids[j]),
		Priority:          priorityIntegration,
		IntegrationTarget: ids[j],
	}}
}

// validate discards hypotheses whose target is not a currently registered
// component. The system sentinel is always valid.
func (g *Generator) validate(proposals []types.Hypothesis) []types.Hypothesis {
	out := proposals[:0]
	for _, h := range proposals {
		if h.Target == types.TargetSystem || g.registry.Has(h.Target) {
			h.Priority = clamp(h.Priority)
			out = append(out, h)
		}
	}
	return out
}

// dedup sorts by priority descending and keeps the first hypothesis per
// (kind, target) pair.
func (g *Generator) dedup(proposals []types.Hypothesis) []types.Hypothesis {
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].Priority > proposals[j].Priority
	})

	seen := make(map[string]bool, len(proposals))
	out := make([]types.Hypothesis, 0, len(proposals))
	for _, h := range proposals {
		if seen[h.Key()] {
			continue
		}
		seen[h.Key()] = true
		out = append(out, h)
	}
	return out
}

func isComplexityMetric(name string) bool {
	return strings.Contains(name, "complexity") || strings.Contains(name, "size")
}

func isPerformanceMetric(name string) bool {
	return strings.Contains(name, "performance") || strings.Contains(name, "throughput")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
