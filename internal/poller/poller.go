// Package poller implements the bounded-concurrency polling protocol used to
// resolve asynchronous provider tasks. A fixed worker pool polls every
// pending task each round, so one slow task never delays the rest of the
// batch, and a round budget bounds the total wait.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status classifies a single poll of one task.
type Status int

// Poll classifications.
const (
	// StatusPending means the task is still queued, or the poll failed
	// transiently; the task is retried next round.
	StatusPending Status = iota
	// StatusDone means the task resolved; the caller has recorded its payload.
	StatusDone
	// StatusFailed means the task failed permanently and must not be retried.
	StatusFailed
)

// PollFunc polls one task and classifies the outcome. Implementations record
// any payload themselves; the poller only tracks membership.
type PollFunc func(ctx context.Context, taskID string) Status

// Config controls the polling loop.
type Config struct {
	// Concurrency is the fixed worker-pool size per round (default 50).
	Concurrency int
	// MaxRounds bounds how many rounds run before leftovers time out
	// (default 300).
	MaxRounds int
	// Interval is the sleep between rounds while tasks remain (default 2s).
	Interval time.Duration
	Logger   *zap.Logger
	// OnRound, when set, is invoked once after every completed round.
	OnRound func()
}

const (
	defaultConcurrency = 50
	defaultMaxRounds   = 300
	defaultInterval    = 2 * time.Second
)

// Result partitions the input task IDs by final disposition.
type Result struct {
	Done     []string
	Failed   []string
	TimedOut []string
}

// Run drives the polling protocol over the given task IDs until every task
// resolves or the round budget is exhausted. It returns early, with the
// remainder reported as timed out, when the context is cancelled.
func Run(ctx context.Context, cfg Config, taskIDs []string, poll PollFunc) Result {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pending := append([]string(nil), taskIDs...)
	var res Result

	for round := 0; round < cfg.MaxRounds && len(pending) > 0; round++ {
		if ctx.Err() != nil {
			break
		}
		statuses := pollRound(ctx, cfg.Concurrency, pending, poll)
		if cfg.OnRound != nil {
			cfg.OnRound()
		}

		var still []string
		for _, id := range pending {
			switch statuses[id] {
			case StatusDone:
				res.Done = append(res.Done, id)
			case StatusFailed:
				res.Failed = append(res.Failed, id)
			default:
				still = append(still, id)
			}
		}
		pending = still

		if len(pending) == 0 {
			break
		}
		logger.Debug("poll round finished",
			zap.Int("round", round+1),
			zap.Int("pending", len(pending)),
		)
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Interval):
		}
	}

	res.TimedOut = pending
	return res
}

// pollRound polls every pending ID once through a fixed worker pool.
func pollRound(ctx context.Context, concurrency int, pending []string, poll PollFunc) map[string]Status {
	ids := make(chan string)
	var mu sync.Mutex
	statuses := make(map[string]Status, len(pending))

	workers := concurrency
	if workers > len(pending) {
		workers = len(pending)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				st := poll(ctx, id)
				mu.Lock()
				statuses[id] = st
				mu.Unlock()
			}
		}()
	}

	for _, id := range pending {
		if ctx.Err() != nil {
			break
		}
		ids <- id
	}
	close(ids)
	wg.Wait()
	return statuses
}
