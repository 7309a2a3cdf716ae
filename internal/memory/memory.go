// Package memory keeps a bounded log of recent action outcomes. The
// deliberation layer consults it to avoid repeating actions that have been
// failing in the current system state.
package memory

import (
	"sync"
	"time"

	"metamorph/internal/logging"
	"metamorph/internal/types"
)

// Heuristic summarizes how an action kind has performed over the whole log.
type Heuristic struct {
	SuccessRate   float64 `json:"success_rate"`
	TotalAttempts int     `json:"total_attempts"`
}

// EpisodicMemory is a fixed-capacity FIFO log of episodes. When full, the
// oldest episode is evicted.
type EpisodicMemory struct {
	mu       sync.RWMutex
	episodes []types.Episode
	capacity int
}

// NewEpisodicMemory creates a log holding at most capacity episodes.
func NewEpisodicMemory(capacity int) *EpisodicMemory {
	if capacity <= 0 {
		capacity = 100
	}
	return &EpisodicMemory{
		episodes: make([]types.Episode, 0, capacity),
		capacity: capacity,
	}
}

// RecordEpisode appends an action outcome tagged with the system state it
// ran against.
func (m *EpisodicMemory) RecordEpisode(action types.Action, result types.ActionResult, fingerprint string) {
	episode := types.Episode{
		Action:      action,
		Result:      result,
		Fingerprint: fingerprint,
		Timestamp:   time.Now().UTC(),
	}

	m.mu.Lock()
	if len(m.episodes) >= m.capacity {
		m.episodes = m.episodes[1:]
	}
	m.episodes = append(m.episodes, episode)
	count := len(m.episodes)
	m.mu.Unlock()

	logging.Get(logging.CategoryMemory).Debug("episode recorded: %s failed=%v state=%s (%d/%d)",
		action.Kind, result.Failed(action.Kind), fingerprint, count, m.capacity)
	logging.Audit().Log(logging.AuditEvent{
		EventType: logging.AuditEpisode,
		Category:  string(logging.CategoryMemory),
		Action:    action.Kind.String(),
		Target:    fingerprint,
		Success:   !result.Failed(action.Kind),
	})
}

// RecentFailureRate reports the failure fraction of the most recent
// occurrences of kind in the given system state, scanning newest first and
// stopping after lookback matches. Returns 0.0 when no matching episodes
// exist.
func (m *EpisodicMemory) RecentFailureRate(kind types.ActionKind, fingerprint string, lookback int) float64 {
	if lookback <= 0 {
		return 0.0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	considered := 0
	failures := 0
	for i := len(m.episodes) - 1; i >= 0 && considered < lookback; i-- {
		ep := m.episodes[i]
		if ep.Action.Kind != kind || ep.Fingerprint != fingerprint {
			continue
		}
		considered++
		if ep.Result.Failed(kind) {
			failures++
		}
	}
	if considered == 0 {
		return 0.0
	}
	return float64(failures) / float64(considered)
}

// ExtractHeuristics aggregates per-kind success statistics over everything
// still in the log. Kinds with no episodes are absent from the result.
func (m *EpisodicMemory) ExtractHeuristics() map[types.ActionKind]Heuristic {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attempts := make(map[types.ActionKind]int)
	successes := make(map[types.ActionKind]int)
	for _, ep := range m.episodes {
		attempts[ep.Action.Kind]++
		if !ep.Result.Failed(ep.Action.Kind) {
			successes[ep.Action.Kind]++
		}
	}

	heuristics := make(map[types.ActionKind]Heuristic, len(attempts))
	for kind, total := range attempts {
		heuristics[kind] = Heuristic{
			SuccessRate:   float64(successes[kind]) / float64(total),
			TotalAttempts: total,
		}
	}
	return heuristics
}

// Episodes returns a copy of the log, oldest first.
func (m *EpisodicMemory) Episodes() []types.Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Episode(nil), m.episodes...)
}

// Len reports how many episodes are currently held.
func (m *EpisodicMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.episodes)
}
