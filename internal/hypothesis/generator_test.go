package hypothesis

import (
	"math/rand"
	"testing"
	"time"

	"metamorph/internal/config"
	"metamorph/internal/metrics"
	"metamorph/internal/types"
)

type stubComponent struct {
	id string
}

func (s *stubComponent) ID() string      { return s.id }
func (s *stubComponent) Source() string  { return "func () {}" }
func (s *stubComponent) Operations() int { return 1 }

func newRegistry(ids ...string) *metrics.Registry {
	reg := metrics.NewRegistry()
	for _, id := range ids {
		reg.Register(&stubComponent{id: id})
	}
	return reg
}

func snapshot(values map[string]map[string]float64) types.MetricSnapshot {
	return types.MetricSnapshot{Timestamp: time.Now(), Components: values}
}

func testConfig() config.EvolutionConfig {
	cfg := config.DefaultConfig().Evolution
	cfg.IntegrationChance = 0 // deterministic unless a test opts in
	return cfg
}

func TestComplexityGrowthProposesRefactor(t *testing.T) {
	reg := newRegistry("A")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{"A": {"complexity": 100}}),
		snapshot(map[string]map[string]float64{"A": {"complexity": 120}}),
	}

	got := g.Generate(history, 0)
	found := false
	for _, h := range got {
		if h.Kind == types.KindRefactorSimplification && h.Target == "A" {
			found = true
			if h.Priority != 0.8 {
				t.Errorf("refactor priority = %v, want 0.8", h.Priority)
			}
		}
	}
	if !found {
		t.Fatalf("no refactor_simplification for A in %v", got)
	}
}

func TestComplexityGrowthUnderThresholdIgnored(t *testing.T) {
	reg := newRegistry("A")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{"A": {"complexity": 100}}),
		snapshot(map[string]map[string]float64{"A": {"complexity": 110}}), // +10%, under 15%
	}

	for _, h := range g.Generate(history, 0) {
		if h.Kind == types.KindRefactorSimplification {
			t.Errorf("unexpected refactor proposal: %+v", h)
		}
	}
}

func TestPerformanceDropProposesOptimize(t *testing.T) {
	reg := newRegistry("B")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{"B": {"throughput": 1000}}),
		snapshot(map[string]map[string]float64{"B": {"throughput": 800}}), // 80% < 85%
	}

	found := false
	for _, h := range g.Generate(history, 0) {
		if h.Kind == types.KindOptimizePerformance && h.Target == "B" {
			found = true
			if h.Priority != 0.75 {
				t.Errorf("optimize priority = %v, want 0.75", h.Priority)
			}
		}
	}
	if !found {
		t.Error("no optimize_performance proposal")
	}
}

func TestCoverageProposal(t *testing.T) {
	reg := newRegistry("thin")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{"thin": {"complexity": 10, "operations": 2}}),
	}

	found := false
	for _, h := range g.Generate(history, 1) {
		if h.Kind == types.KindExpandFunctionality && h.Target == "thin" {
			found = true
		}
	}
	if !found {
		t.Error("component with 2 metrics should get expand_functionality")
	}
}

func TestDedupByKindAndTarget(t *testing.T) {
	// "thin" qualifies for expand via coverage AND via rotation; only one
	// expand proposal per target may survive.
	reg := newRegistry("thin")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{"thin": {"complexity": 10}}),
	}

	got := g.Generate(history, 0)
	seen := make(map[string]int)
	for _, h := range got {
		seen[h.Key()]++
	}
	for key, n := range seen {
		if n > 1 {
			t.Errorf("duplicate (kind,target) pair %s appears %d times", key, n)
		}
	}
}

func TestInvalidTargetsDiscarded(t *testing.T) {
	reg := newRegistry("live")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	// "ghost" was present in history but is no longer registered.
	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{"ghost": {"complexity": 100}}),
		snapshot(map[string]map[string]float64{"ghost": {"complexity": 200}}),
	}

	for _, h := range g.Generate(history, 0) {
		if h.Target != types.TargetSystem && !reg.Has(h.Target) {
			t.Errorf("unregistered target surfaced: %+v", h)
		}
	}
}

func TestStructuralProposalBelowMinComponents(t *testing.T) {
	reg := newRegistry("only")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	found := false
	for _, h := range g.Generate(nil, 0) {
		if h.Kind == types.KindCreateNewModule {
			found = true
			if h.Target != types.TargetSystem {
				t.Errorf("create_new_module target = %q, want system", h.Target)
			}
		}
	}
	if !found {
		t.Error("small registry should propose create_new_module")
	}
}

func TestRotationFavorsDifferentComponents(t *testing.T) {
	reg := newRegistry("a", "b", "c")
	cfg := testConfig()
	cfg.MinComponents = 0 // suppress structural noise
	g := NewGenerator(cfg, reg, rand.New(rand.NewSource(1)))

	favoredAt := func(cycle int) string {
		for _, h := range g.Generate(nil, cycle) {
			if h.Rationale == "diversification rotation" {
				return h.Target
			}
		}
		return ""
	}

	if favoredAt(0) != "a" || favoredAt(1) != "b" || favoredAt(2) != "c" || favoredAt(3) != "a" {
		t.Error("rotation does not walk the component list by cycle count")
	}
}

func TestIntegrationProposalNamesTwoComponents(t *testing.T) {
	reg := newRegistry("x", "y", "z")
	cfg := testConfig()
	cfg.IntegrationChance = 1.0
	g := NewGenerator(cfg, reg, rand.New(rand.NewSource(7)))

	found := false
	for _, h := range g.Generate(nil, 0) {
		if h.Kind == types.KindIntegration {
			found = true
			if h.Target == h.IntegrationTarget {
				t.Errorf("integration pairs a component with itself: %+v", h)
			}
			if !reg.Has(h.Target) || !reg.Has(h.IntegrationTarget) {
				t.Errorf("integration names unregistered components: %+v", h)
			}
		}
	}
	if !found {
		t.Error("integration chance 1.0 produced no integration proposal")
	}
}

func TestOutputSortedByPriority(t *testing.T) {
	reg := newRegistry("A", "B")
	g := NewGenerator(testConfig(), reg, rand.New(rand.NewSource(1)))

	history := []types.MetricSnapshot{
		snapshot(map[string]map[string]float64{
			"A": {"complexity": 100},
			"B": {"throughput": 1000},
		}),
		snapshot(map[string]map[string]float64{
			"A": {"complexity": 150},
			"B": {"throughput": 500},
		}),
	}

	got := g.Generate(history, 0)
	for i := 1; i < len(got); i++ {
		if got[i].Priority > got[i-1].Priority {
			t.Errorf("list not sorted descending at %d: %v then %v", i, got[i-1].Priority, got[i].Priority)
		}
	}
	if len(got) > 0 && g.Last()[0] != got[0] {
		t.Error("Last() does not cache the generated list")
	}
}
