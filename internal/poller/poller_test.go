package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunResolvesAcrossRounds(t *testing.T) {
	t.Parallel()

	// "b" needs three rounds before it completes.
	var mu sync.Mutex
	polls := map[string]int{}

	res := Run(context.Background(), Config{
		Concurrency: 4,
		MaxRounds:   10,
		Interval:    time.Millisecond,
	}, []string{"a", "b", "c"}, func(_ context.Context, id string) Status {
		mu.Lock()
		polls[id]++
		n := polls[id]
		mu.Unlock()
		switch id {
		case "a":
			return StatusDone
		case "b":
			if n < 3 {
				return StatusPending
			}
			return StatusDone
		default:
			return StatusFailed
		}
	})

	require.ElementsMatch(t, []string{"a", "b"}, res.Done)
	require.Equal(t, []string{"c"}, res.Failed)
	require.Empty(t, res.TimedOut)
	require.Equal(t, 3, polls["b"])
	// Resolved tasks are not polled again.
	require.Equal(t, 1, polls["a"])
	require.Equal(t, 1, polls["c"])
}

func TestRunRoundBudgetTimesOut(t *testing.T) {
	t.Parallel()

	res := Run(context.Background(), Config{
		Concurrency: 2,
		MaxRounds:   3,
		Interval:    time.Millisecond,
	}, []string{"x", "y"}, func(context.Context, string) Status {
		return StatusPending
	})

	require.Empty(t, res.Done)
	require.Empty(t, res.Failed)
	require.ElementsMatch(t, []string{"x", "y"}, res.TimedOut)
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("task-%02d", i)
	}

	Run(context.Background(), Config{
		Concurrency: 5,
		MaxRounds:   1,
		Interval:    time.Millisecond,
	}, ids, func(context.Context, string) Status {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return StatusDone
	})

	require.LessOrEqual(t, peak.Load(), int64(5))
	require.Greater(t, peak.Load(), int64(1))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	rounds := atomic.Int64{}

	done := make(chan Result, 1)
	go func() {
		done <- Run(ctx, Config{
			Concurrency: 1,
			MaxRounds:   1000,
			Interval:    5 * time.Millisecond,
		}, []string{"slow"}, func(context.Context, string) Status {
			rounds.Add(1)
			return StatusPending
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		require.Equal(t, []string{"slow"}, res.TimedOut)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	res := Run(context.Background(), Config{}, nil, func(context.Context, string) Status {
		t.Fatal("poll should not be called")
		return StatusDone
	})
	require.Empty(t, res.Done)
	require.Empty(t, res.Failed)
	require.Empty(t, res.TimedOut)
}
