package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metamorph/internal/config"
	"metamorph/internal/types"
)

func stubClient(generate func(ctx context.Context, system, user string) (string, error)) *Client {
	return &Client{
		model:       "test-model",
		minInterval: 0,
		maxRetries:  3,
		generate:    generate,
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.SuggestConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestCompleteTrimsResponse(t *testing.T) {
	c := stubClient(func(ctx context.Context, system, user string) (string, error) {
		return "  an idea \n", nil
	})
	text, err := c.Complete(context.Background(), "improve something")
	require.NoError(t, err)
	assert.Equal(t, "an idea", text)
}

func TestCompleteWithSystemPassesInstruction(t *testing.T) {
	var gotSystem string
	c := stubClient(func(ctx context.Context, system, user string) (string, error) {
		gotSystem = system
		return "ok", nil
	})
	_, err := c.CompleteWithSystem(context.Background(), "be terse", "hello")
	require.NoError(t, err)
	assert.Equal(t, "be terse", gotSystem)
}

func TestRetriesStopAtCap(t *testing.T) {
	calls := 0
	c := stubClient(func(ctx context.Context, system, user string) (string, error) {
		calls++
		return "", errors.New("unavailable")
	})
	c.maxRetries = 2

	start := time.Now()
	_, err := c.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "after 2 attempts")
	// One backoff of 1s between the two attempts.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestRetryRecoversMidway(t *testing.T) {
	calls := 0
	c := stubClient(func(ctx context.Context, system, user string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "recovered", nil
	})

	text, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, calls)
}

func TestMinIntervalGateSerializes(t *testing.T) {
	var mu sync.Mutex
	var timestamps []time.Time
	c := stubClient(func(ctx context.Context, system, user string) (string, error) {
		mu.Lock()
		timestamps = append(timestamps, time.Now())
		mu.Unlock()
		return "ok", nil
	})
	c.minInterval = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Complete(context.Background(), "p")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, timestamps, 3)
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		assert.GreaterOrEqual(t, gap, 40*time.Millisecond, "requests %d and %d too close", i-1, i)
	}
}

func TestGateHonorsCancellation(t *testing.T) {
	c := stubClient(func(ctx context.Context, system, user string) (string, error) {
		return "ok", nil
	})
	c.minInterval = time.Hour
	c.lastRequest = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHypothesisPromptShapes(t *testing.T) {
	tests := []struct {
		name string
		h    types.Hypothesis
		want string
	}{
		{
			"expand asks for a method",
			types.Hypothesis{Kind: types.KindExpandFunctionality, Target: "worker"},
			"one new method",
		},
		{
			"create asks for a component",
			types.Hypothesis{Kind: types.KindCreateNewModule, Target: "system"},
			"new Go component",
		},
		{
			"refactor asks for prose",
			types.Hypothesis{Kind: types.KindRefactorSimplification, Target: "worker"},
			"in prose",
		},
		{
			"integration names both sides",
			types.Hypothesis{Kind: types.KindIntegration, Target: "worker", IntegrationTarget: "cache"},
			`"worker" could call into "cache"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, user := HypothesisPrompt(tt.h)
			assert.NotEmpty(t, system)
			assert.Contains(t, user, tt.want)
		})
	}
}

func TestHypothesisPromptCarriesRationale(t *testing.T) {
	_, user := HypothesisPrompt(types.Hypothesis{
		Kind:      types.KindOptimizePerformance,
		Target:    "worker",
		Rationale: "throughput dropped 20%",
	})
	assert.Contains(t, user, "throughput dropped 20%")
}

func TestInspirationPromptListsComponents(t *testing.T) {
	prompt := InspirationPrompt([]string{"worker", "cache"})
	assert.True(t, strings.Contains(prompt, "worker, cache"))
}
