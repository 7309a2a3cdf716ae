package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metamorph/internal/types"
)

func evolutionOutcome(applied bool, errs []string) types.ActionResult {
	return types.ActionResult{Applied: applied, Success: applied, Errors: errs}
}

func TestFIFOEviction(t *testing.T) {
	m := NewEpisodicMemory(3)
	for i := 0; i < 5; i++ {
		m.RecordEpisode(
			types.Action{Kind: types.ActionMaintain, Reason: fmt.Sprintf("step %d", i)},
			types.ActionResult{Success: true},
			"state-a",
		)
	}

	episodes := m.Episodes()
	require.Len(t, episodes, 3)
	// Oldest two evicted, steps 2..4 remain in order.
	assert.Equal(t, "step 2", episodes[0].Action.Reason)
	assert.Equal(t, "step 4", episodes[2].Action.Reason)
}

func TestRecentFailureRateScopedToStateAndKind(t *testing.T) {
	m := NewEpisodicMemory(20)

	// Two failures then a success for apply_hypothesis in state-a.
	m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(false, nil), "state-a")
	m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(false, nil), "state-a")
	m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(true, nil), "state-a")
	// Noise: different state and different kind, both failing.
	m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(false, nil), "state-b")
	m.RecordEpisode(types.Action{Kind: types.ActionMaintain}, types.ActionResult{Success: false}, "state-a")

	rate := m.RecentFailureRate(types.ActionApplyHypothesis, "state-a", 3)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

func TestRecentFailureRateLookbackWindow(t *testing.T) {
	m := NewEpisodicMemory(20)

	// Old failures followed by three recent successes.
	for i := 0; i < 4; i++ {
		m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(false, nil), "s")
	}
	for i := 0; i < 3; i++ {
		m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(true, nil), "s")
	}

	// Only the three most recent matches count.
	assert.Equal(t, 0.0, m.RecentFailureRate(types.ActionApplyHypothesis, "s", 3))
	// Widening the window reaches back into the failures.
	assert.InDelta(t, 4.0/7.0, m.RecentFailureRate(types.ActionApplyHypothesis, "s", 7), 1e-9)
}

func TestRecentFailureRateNoMatches(t *testing.T) {
	m := NewEpisodicMemory(10)
	assert.Equal(t, 0.0, m.RecentFailureRate(types.ActionApplyHypothesis, "unseen", 3))

	m.RecordEpisode(types.Action{Kind: types.ActionMaintain}, types.ActionResult{Success: true}, "s")
	assert.Equal(t, 0.0, m.RecentFailureRate(types.ActionApplyHypothesis, "s", 3))
}

func TestFailureCriterionPerKind(t *testing.T) {
	m := NewEpisodicMemory(10)

	// Evolution actions fail when not applied or any error was recorded,
	// even if the surrounding run reported success.
	m.RecordEpisode(
		types.Action{Kind: types.ActionApplyHypothesis},
		types.ActionResult{Applied: true, Success: true, Errors: []string{"tests regressed"}},
		"s",
	)
	assert.Equal(t, 1.0, m.RecentFailureRate(types.ActionApplyHypothesis, "s", 1))

	// Generic actions fail on unsuccess, error, or empty outcome.
	m.RecordEpisode(
		types.Action{Kind: types.ActionSeekInspiration},
		types.ActionResult{Success: true, Empty: true},
		"s",
	)
	assert.Equal(t, 1.0, m.RecentFailureRate(types.ActionSeekInspiration, "s", 1))
}

func TestExtractHeuristics(t *testing.T) {
	m := NewEpisodicMemory(50)
	assert.Empty(t, m.ExtractHeuristics())

	for i := 0; i < 4; i++ {
		m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(i%2 == 0, nil), "s")
	}
	m.RecordEpisode(types.Action{Kind: types.ActionMaintain}, types.ActionResult{Success: true}, "s")

	h := m.ExtractHeuristics()
	require.Len(t, h, 2)
	assert.Equal(t, 4, h[types.ActionApplyHypothesis].TotalAttempts)
	assert.InDelta(t, 0.5, h[types.ActionApplyHypothesis].SuccessRate, 1e-9)
	assert.Equal(t, 1, h[types.ActionMaintain].TotalAttempts)
	assert.Equal(t, 1.0, h[types.ActionMaintain].SuccessRate)
}

func TestEvictionDropsOldestFromHeuristics(t *testing.T) {
	m := NewEpisodicMemory(2)
	m.RecordEpisode(types.Action{Kind: types.ActionApplyHypothesis}, evolutionOutcome(false, nil), "s")
	m.RecordEpisode(types.Action{Kind: types.ActionMaintain}, types.ActionResult{Success: true}, "s")
	m.RecordEpisode(types.Action{Kind: types.ActionMaintain}, types.ActionResult{Success: true}, "s")

	h := m.ExtractHeuristics()
	require.Len(t, h, 1)
	assert.Equal(t, 2, h[types.ActionMaintain].TotalAttempts)
}
