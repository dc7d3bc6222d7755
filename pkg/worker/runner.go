package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olegsm/retaildesk/pkg/logger"
)

// Worker is one unit of recurring background work
type Worker interface {
	// Name identifies the worker in logs
	Name() string
	// Run executes one iteration
	Run(ctx context.Context) error
}

// Periodic drives a Worker on a fixed interval, starting with an immediate
// run. A failed iteration is logged and the ticker keeps going.
type Periodic struct {
	worker   Worker
	interval time.Duration
}

// NewPeriodic wraps a worker with its schedule
func NewPeriodic(worker Worker, interval time.Duration) *Periodic {
	return &Periodic{
		worker:   worker,
		interval: interval,
	}
}

func (p *Periodic) run(ctx context.Context) {
	logger.Info("worker started",
		zap.String("worker", p.worker.Name()),
		zap.Duration("interval", p.interval),
	)

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping",
				zap.String("worker", p.worker.Name()),
			)
			return

		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	if err := p.worker.Run(ctx); err != nil {
		logger.Error("worker run failed",
			zap.String("worker", p.worker.Name()),
			zap.Error(err),
		)
	}
}

// Group owns a fixed set of periodic workers and stops them together. The
// set is closed at construction; there is no dynamic registration.
type Group struct {
	periodics []*Periodic
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewGroup creates a group running the given workers under a child context
func NewGroup(ctx context.Context, periodics ...*Periodic) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		periodics: periodics,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches every worker in its own goroutine
func (g *Group) Start() {
	for _, p := range g.periodics {
		g.wg.Add(1)
		go func(p *Periodic) {
			defer g.wg.Done()
			p.run(g.ctx)
		}(p)
	}

	logger.Info("worker group started",
		zap.Int("workers", len(g.periodics)),
	)
}

// Stop cancels the group and waits up to timeout for workers to finish
func (g *Group) Stop(timeout time.Duration) {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker group stopped")
	case <-time.After(timeout):
		logger.Warn("worker group stop timeout")
	}
}
