package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	goutils "go.viam.com/utils"
)

// Refresher runs a refresh function as a single-flight recurring task. A
// trigger that fires while a refresh is in flight is queued in a slot of
// depth one: overlapping triggers coalesce into a single pending run, are
// never executed concurrently with the in-flight one, and are never dropped
// outright.
type Refresher struct {
	interval time.Duration
	refresh  func(context.Context)
	clock    clock.Clock

	mu                      sync.Mutex
	pending                 chan struct{}
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

// NewRefresher creates a refresher that runs refresh every interval once
// started. A nil clock uses the wall clock.
func NewRefresher(interval time.Duration, refresh func(context.Context), clk clock.Clock) *Refresher {
	if clk == nil {
		clk = clock.New()
	}
	return &Refresher{
		interval: interval,
		refresh:  refresh,
		clock:    clk,
		pending:  make(chan struct{}, 1),
	}
}

// Trigger queues a refresh outside the periodic schedule. If one is already
// queued the two coalesce.
func (r *Refresher) Trigger() {
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

// Start launches the periodic trigger and the single consumer goroutine.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	ticker := r.clock.Ticker(r.interval)
	r.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		defer ticker.Stop()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-ticker.C:
				r.Trigger()
			}
		}
	}, r.activeBackgroundWorkers.Done)

	r.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-r.pending:
				r.refresh(cancelCtx)
			}
		}
	}, r.activeBackgroundWorkers.Done)
}

// Stop halts both goroutines and waits for any in-flight refresh.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.activeBackgroundWorkers.Wait()
}
