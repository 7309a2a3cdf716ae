// Package report renders post-hoc summaries of recorded evolution history.
// It only reads what the ledger persisted; it never touches the live
// pipeline.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"metamorph/internal/ledger"
	"metamorph/internal/types"
)

// Impact classifies what an applied modification did to its component.
type Impact string

const (
	ImpactImproved  Impact = "improved"
	ImpactRegressed Impact = "regressed"
	ImpactNeutral   Impact = "neutral"
)

// KindStats aggregates cycle outcomes per hypothesis kind.
type KindStats struct {
	Attempts           int
	Applied            int
	SecurityRejections int
	TestRejections     int
}

// ModificationSummary is one applied change with its classified impact.
type ModificationSummary struct {
	Record types.ModificationRecord
	Impact Impact
}

// Report is the aggregated view over all recorded history.
type Report struct {
	GeneratedAt   time.Time
	TotalCycles   int
	Applied       int
	Rejected      int
	ByKind        map[string]KindStats
	Modifications []ModificationSummary
	NetSizeDelta  int
}

// Generator builds reports from the ledger. An optional metric history
// sharpens impact classification; without it, classification falls back to
// kind-aware size-delta heuristics.
type Generator struct {
	ledger *ledger.Ledger
}

// NewGenerator creates a report generator over a ledger.
func NewGenerator(led *ledger.Ledger) *Generator {
	return &Generator{ledger: led}
}

// Build aggregates everything the ledger holds.
func (g *Generator) Build(history []types.MetricSnapshot) (Report, error) {
	results, err := g.ledger.CycleResults()
	if err != nil {
		return Report{}, fmt.Errorf("failed to read cycle history: %w", err)
	}
	records := g.ledger.Records()

	r := Report{
		GeneratedAt: time.Now().UTC(),
		TotalCycles: len(results),
		ByKind:      make(map[string]KindStats),
	}

	for _, cr := range results {
		if cr.Selected == nil {
			continue
		}
		kind := cr.Selected.Kind.String()
		stats := r.ByKind[kind]
		stats.Attempts++
		switch {
		case cr.Applied:
			stats.Applied++
			r.Applied++
		case !cr.SecurityPassed:
			stats.SecurityRejections++
			r.Rejected++
		case !cr.TestsPassed || !cr.SyntaxValid:
			stats.TestRejections++
			r.Rejected++
		default:
			r.Rejected++
		}
		r.ByKind[kind] = stats
	}

	cycleKinds := make(map[int]types.HypothesisKind, len(results))
	for _, cr := range results {
		if cr.Selected != nil {
			cycleKinds[cr.CycleID] = cr.Selected.Kind
		}
	}

	for _, record := range records {
		r.NetSizeDelta += record.SizeDelta
		r.Modifications = append(r.Modifications, ModificationSummary{
			Record: record,
			Impact: classify(record, cycleKinds[record.CycleID], history),
		})
	}
	return r, nil
}

// classify judges one applied modification. With metric history spanning the
// cycle, the component's complexity trend decides; otherwise the size delta
// is read through the lens of what the hypothesis kind was trying to do.
func classify(record types.ModificationRecord, kind types.HypothesisKind, history []types.MetricSnapshot) Impact {
	if before, after, ok := complexityAround(record, history); ok {
		switch {
		case after < before:
			return ImpactImproved
		case after > before*1.1:
			return ImpactRegressed
		default:
			return ImpactNeutral
		}
	}

	switch kind {
	case types.KindRefactorSimplification, types.KindOptimizePerformance:
		// Marker insertions grow the file slightly; only shrinkage counts
		// as realized improvement.
		if record.SizeDelta < 0 {
			return ImpactImproved
		}
		return ImpactNeutral
	case types.KindExpandFunctionality, types.KindCreateNewModule:
		if record.SizeDelta > 0 {
			return ImpactImproved
		}
		return ImpactNeutral
	default:
		return ImpactNeutral
	}
}

// complexityAround finds the component's complexity in the snapshots nearest
// before and after the modification time.
func complexityAround(record types.ModificationRecord, history []types.MetricSnapshot) (before, after float64, ok bool) {
	var haveBefore, haveAfter bool
	for _, snap := range history {
		metrics, present := snap.Components[record.Component]
		if !present {
			continue
		}
		c, present := metrics["complexity"]
		if !present {
			continue
		}
		if !snap.Timestamp.After(record.Timestamp) {
			before = c
			haveBefore = true
		} else if !haveAfter {
			after = c
			haveAfter = true
		}
	}
	return before, after, haveBefore && haveAfter
}

// Markdown renders the report for terminal display.
func Markdown(r Report) string {
	var b strings.Builder
	b.WriteString("# Evolution Report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Cycles recorded: **%d**\n", r.TotalCycles)
	fmt.Fprintf(&b, "- Applied: **%d**  Rejected: **%d**\n", r.Applied, r.Rejected)
	fmt.Fprintf(&b, "- Net source growth: **%+d bytes**\n\n", r.NetSizeDelta)

	if len(r.ByKind) > 0 {
		b.WriteString("## Outcomes by hypothesis kind\n\n")
		b.WriteString("| Kind | Attempts | Applied | Security rejections | Test rejections |\n")
		b.WriteString("|------|----------|---------|---------------------|------------------|\n")
		kinds := make([]string, 0, len(r.ByKind))
		for kind := range r.ByKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			s := r.ByKind[kind]
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d |\n",
				kind, s.Attempts, s.Applied, s.SecurityRejections, s.TestRejections)
		}
		b.WriteString("\n")
	}

	if len(r.Modifications) > 0 {
		b.WriteString("## Applied modifications\n\n")
		for _, m := range r.Modifications {
			fmt.Fprintf(&b, "- cycle %d, `%s` (%+d bytes, %s): %s\n",
				m.Record.CycleID, m.Record.Component, m.Record.SizeDelta,
				m.Impact, m.Record.Description)
		}
	}
	return b.String()
}
