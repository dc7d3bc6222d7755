package stocksync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/pkg/logger"
)

// Trigger schedules opportunistic sync runs from the query write path.
// Kick never blocks and never surfaces run errors to the caller: at most one
// run is in flight and at most one more is pending, so a burst of tagged
// writes coalesces into a single follow-up run. The orchestrator's
// idempotent full-replace upserts make redundant runs harmless.
type Trigger struct {
	orch    *Orchestrator
	pending chan struct{}
	wg      sync.WaitGroup
}

// NewTrigger creates a trigger for the given orchestrator
func NewTrigger(orch *Orchestrator) *Trigger {
	return &Trigger{
		orch:    orch,
		pending: make(chan struct{}, 1),
	}
}

// Start launches the background run loop; it exits when ctx is cancelled
func (t *Trigger) Start(ctx context.Context) {
	t.wg.Add(1)
	go t.loop(ctx)
}

// Kick requests a sync run. Safe to call from any goroutine; a kick while a
// run is pending is absorbed.
func (t *Trigger) Kick() {
	select {
	case t.pending <- struct{}{}:
	default:
	}
}

// Stop waits for the in-flight run to finish after ctx cancellation
func (t *Trigger) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("sync trigger stop timeout")
	}
}

func (t *Trigger) loop(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.pending:
			if _, err := t.orch.Run(ctx); err != nil {
				// Best-effort: the write that kicked us already returned
				logger.Error("triggered sync run failed", zap.Error(err))
			}
		}
	}
}
