// Package autonomy runs the initiative loop: a single background worker that
// repeatedly observes the system, deliberates over what to do, optionally
// gathers suggestion material, executes the chosen action, and records the
// outcome for future deliberation.
package autonomy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"metamorph/internal/config"
	"metamorph/internal/deliberate"
	"metamorph/internal/engine"
	"metamorph/internal/logging"
	"metamorph/internal/memory"
	"metamorph/internal/types"
)

// Stage identifies where in an iteration the loop currently is. The run flag
// is only checked on stage boundaries, so a stage in progress always
// completes before shutdown.
type Stage int

const (
	StageReflect Stage = iota
	StageDeliberate
	StageDecide
	StageAugment
	StageExecute
	StageRecord
	StageSleep
)

func (s Stage) String() string {
	switch s {
	case StageReflect:
		return "REFLECT"
	case StageDeliberate:
		return "DELIBERATE"
	case StageDecide:
		return "DECIDE"
	case StageAugment:
		return "AUGMENT"
	case StageExecute:
		return "EXECUTE"
	case StageRecord:
		return "RECORD"
	case StageSleep:
		return "SLEEP"
	default:
		return "UNKNOWN"
	}
}

// decisionHistorySize bounds the ring kept for status inspection.
const decisionHistorySize = 50

// Decision is one completed iteration, kept for introspection.
type Decision struct {
	Timestamp time.Time          `json:"timestamp"`
	Action    types.Action       `json:"action"`
	Result    types.ActionResult `json:"result"`
	Augmented bool               `json:"augmented"`
	Interval  time.Duration      `json:"interval"`
}

// Loop is the autonomous worker. Start and Stop are idempotent.
type Loop struct {
	cfg         config.DeliberationConfig
	engine      *engine.Engine
	deliberator *deliberate.Deliberator
	memory      *memory.EpisodicMemory
	rng         *rand.Rand
	dispatch    map[types.ActionKind]func(context.Context, types.Action) types.ActionResult

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	mu        sync.Mutex
	decisions []Decision
}

// NewLoop assembles the loop. A nil rng gets a time-seeded one.
func NewLoop(cfg config.DeliberationConfig, eng *engine.Engine, mem *memory.EpisodicMemory, rng *rand.Rand) *Loop {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	l := &Loop{
		cfg:         cfg,
		engine:      eng,
		deliberator: deliberate.NewDeliberator(cfg, mem, rng),
		memory:      mem,
		rng:         rng,
	}
	l.dispatch = map[types.ActionKind]func(context.Context, types.Action) types.ActionResult{
		types.ActionMaintain:        func(ctx context.Context, _ types.Action) types.ActionResult { return eng.Maintain(ctx) },
		types.ActionReduceLoad:      func(ctx context.Context, _ types.Action) types.ActionResult { return eng.ReduceLoad(ctx) },
		types.ActionSeekInspiration: func(ctx context.Context, _ types.Action) types.ActionResult { return eng.SeekInspiration(ctx) },
		types.ActionIntegrateModule: func(ctx context.Context, _ types.Action) types.ActionResult { return eng.IntegrateModule(ctx) },
		types.ActionReviewFailures: func(ctx context.Context, _ types.Action) types.ActionResult {
			return eng.ReviewFailures(ctx, mem.ExtractHeuristics())
		},
		types.ActionApplyHypothesis: l.applyHypothesis,
	}
	return l
}

func (l *Loop) applyHypothesis(ctx context.Context, action types.Action) types.ActionResult {
	if action.Hypothesis == nil {
		return types.ActionResult{Err: "apply_hypothesis action without hypothesis payload"}
	}
	result := l.engine.ApplyHypothesis(ctx, *action.Hypothesis, "")
	return types.ActionResult{
		Applied: result.Applied,
		Success: result.Applied,
		Errors:  result.Errors,
	}
}

// Start launches the worker and the managed-source watcher. Calling Start on
// a running loop is a no-op.
func (l *Loop) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	l.group = g

	g.Go(func() error {
		err := l.engine.WatchSource(ctx)
		if err != nil && ctx.Err() == nil {
			logging.Get(logging.CategoryAutonomy).Warn("source watcher exited: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		l.run(ctx)
		return nil
	})

	logging.Autonomy("initiative loop started")
}

// Stop clears the run flag and joins the worker with a bounded timeout. The
// iteration in progress completes; a timeout means it is still draining.
func (l *Loop) Stop(timeout time.Duration) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}
	l.cancel()

	done := make(chan error, 1)
	go func() { done <- l.group.Wait() }()

	select {
	case err := <-done:
		logging.Autonomy("initiative loop stopped")
		return err
	case <-time.After(timeout):
		return fmt.Errorf("worker did not stop within %s", timeout)
	}
}

// Running reports whether the worker is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Decisions returns a copy of the recent decision ring, oldest first.
func (l *Loop) Decisions() []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Decision(nil), l.decisions...)
}

func (l *Loop) run(ctx context.Context) {
	for l.running.Load() && ctx.Err() == nil {
		interval, err := l.iterate(ctx)
		if err != nil {
			logging.Get(logging.CategoryAutonomy).Error("iteration failed: %v", err)
			interval = l.cfg.ErrorBackoff
		}
		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

// iterate runs one pass of the stage machine and returns how long to sleep.
// Panics are converted to errors so a bad iteration never kills the worker.
func (l *Loop) iterate(ctx context.Context) (interval time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()
	started := time.Now()

	// REFLECT
	l.logStage(StageReflect)
	fingerprint, load, complexity := l.engine.Observe()
	state := deliberate.State{
		Fingerprint:         fingerprint,
		Load:                load,
		Complexity:          complexity,
		CyclesSinceChange:   l.engine.CyclesSinceChange(),
		PendingHypotheses:   l.engine.PendingHypotheses(),
		UnintegratedModules: l.engine.Unintegrated(),
	}
	if !l.running.Load() {
		return 0, nil
	}

	// DELIBERATE
	l.logStage(StageDeliberate)
	candidates := l.deliberator.GeneratePotentialActions(state)
	action := l.deliberator.SelectBestAction(candidates, state)
	if !l.running.Load() {
		return 0, nil
	}

	// DECIDE: the base policy always proceeds. The stage exists so a
	// risk-aware veto can slot in without reshaping the loop.
	l.logStage(StageDecide)

	// AUGMENT
	l.logStage(StageAugment)
	augmented := false
	if l.shouldAugment(action) {
		l.engine.SeekInspiration(ctx)
		augmented = true
	}
	if !l.running.Load() {
		return 0, nil
	}

	// EXECUTE
	l.logStage(StageExecute)
	handler, ok := l.dispatch[action.Kind]
	if !ok {
		return 0, fmt.Errorf("no handler for action kind %s", action.Kind)
	}
	result := handler(ctx, action)

	// RECORD
	l.logStage(StageRecord)
	l.memory.RecordEpisode(action, result, state.Fingerprint)
	interval = l.deliberator.ReflectionInterval(state)
	l.record(Decision{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Result:    result,
		Augmented: augmented,
		Interval:  interval,
	})

	// SLEEP: adaptive interval minus processing time, floored at zero.
	l.logStage(StageSleep)
	interval -= time.Since(started)
	if interval < 0 {
		interval = 0
	}
	return interval, nil
}

// shouldAugment decides whether to consult the generation service before
// executing. Generative hypothesis kinds always consult; anything else gets
// a small random chance. seek_inspiration consults by executing, so it is
// never augmented.
func (l *Loop) shouldAugment(action types.Action) bool {
	if action.Kind == types.ActionSeekInspiration {
		return false
	}
	if action.Hypothesis != nil {
		switch action.Hypothesis.Kind {
		case types.KindCreateNewModule, types.KindExpandFunctionality:
			return true
		}
	}
	return l.rng.Float64() < l.cfg.ConsultChance
}

func (l *Loop) record(d Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
	if len(l.decisions) > decisionHistorySize {
		l.decisions = l.decisions[len(l.decisions)-decisionHistorySize:]
	}
}

func (l *Loop) logStage(s Stage) {
	logging.Get(logging.CategoryAutonomy).Debug("stage %s", s)
}

// sleepCtx sleeps for d unless the context finishes first. Returns false
// when interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		// Still yield to cancellation between iterations.
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
