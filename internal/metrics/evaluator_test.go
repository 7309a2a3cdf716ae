package metrics

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"metamorph/internal/types"
)

type fakeComponent struct {
	id     string
	source string
	ops    int
	custom map[string]float64
	panics bool
}

func (f *fakeComponent) ID() string     { return f.id }
func (f *fakeComponent) Source() string { return f.source }
func (f *fakeComponent) Operations() int {
	return f.ops
}

func (f *fakeComponent) CustomMetrics() map[string]float64 {
	if f.panics {
		panic("broken provider")
	}
	return f.custom
}

func TestEvaluateBasicMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeComponent{id: "worker", source: "func Work() {}", ops: 3})

	e := NewEvaluator(reg)
	snap := e.Evaluate()

	if v, ok := snap.Metric("worker", "complexity"); !ok || v != float64(len("func Work() {}")) {
		t.Errorf("complexity = %v (ok=%v)", v, ok)
	}
	if v, ok := snap.Metric("worker", "operations"); !ok || v != 3 {
		t.Errorf("operations = %v (ok=%v)", v, ok)
	}
}

func TestEvaluateCustomMetricsMerged(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeComponent{
		id: "cache", source: "x", ops: 1,
		custom: map[string]float64{"hit_rate": 0.92},
	})

	snap := NewEvaluator(reg).Evaluate()
	want := map[string]map[string]float64{
		"cache": {"complexity": 1, "operations": 1, "hit_rate": 0.92},
	}
	if diff := cmp.Diff(want, snap.Components); diff != "" {
		t.Errorf("snapshot components mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateSkipsFailingComponent(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeComponent{id: "bad", source: "x", ops: 1, panics: true})
	reg.Register(&fakeComponent{id: "good", source: "y", ops: 2})

	e := NewEvaluator(reg)
	snap := e.Evaluate()

	if _, ok := snap.Components["bad"]; ok {
		t.Error("failing component should be skipped")
	}
	if _, ok := snap.Components["good"]; !ok {
		t.Error("healthy component missing from snapshot")
	}
	if len(e.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(e.History()))
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeComponent{id: "a", source: "aa", ops: 1})

	e := NewEvaluator(reg)
	first := e.Evaluate()
	e.Evaluate()

	hist := e.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Fingerprint() != first.Fingerprint() {
		t.Error("earlier snapshot mutated")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := types.MetricSnapshot{Components: map[string]map[string]float64{
		"x": {"m1": 1, "m2": 2},
		"y": {"m3": 3},
	}}
	b := types.MetricSnapshot{Components: map[string]map[string]float64{
		"y": {"m3": 3},
		"x": {"m2": 2, "m1": 1},
	}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint depends on map iteration order")
	}

	c := types.MetricSnapshot{Components: map[string]map[string]float64{
		"x": {"m1": 1.5, "m2": 2},
		"y": {"m3": 3},
	}}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different values produced identical fingerprints")
	}
}

func TestRegistryReplaceKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeComponent{id: "a", source: "1", ops: 1})
	reg.Register(&fakeComponent{id: "b", source: "2", ops: 1})
	reg.Register(&fakeComponent{id: "a", source: "replaced", ops: 9})

	ids := reg.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v", ids)
	}
	if reg.Components()[0].Source() != "replaced" {
		t.Error("re-registration did not replace in place")
	}
}
