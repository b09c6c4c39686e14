package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/servemon/servemon/internal/model"
)

// DefaultSampleInterval is the scheduler cadence when none is configured.
const DefaultSampleInterval = 30 * time.Second

// SampleBroadcast is called with each system sample for real-time streaming.
type SampleBroadcast func(model.SystemSample)

// Scheduler drives system sampling, alert evaluation and health checks on
// a fixed cadence from a single background goroutine.
type Scheduler struct {
	collector *Collector
	alerts    *AlertEngine
	health    *HealthRegistry
	interval  time.Duration
	backoff   time.Duration

	mu        sync.Mutex
	broadcast SampleBroadcast
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a stopped scheduler. A non-positive interval falls
// back to DefaultSampleInterval.
func NewScheduler(c *Collector, a *AlertEngine, h *HealthRegistry, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Scheduler{
		collector: c,
		alerts:    a,
		health:    h,
		interval:  interval,
		backoff:   2 * interval,
	}
}

// SetBroadcast sets the function called with each system sample.
func (s *Scheduler) SetBroadcast(fn SampleBroadcast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = fn
}

// Start launches the background loop. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	log.Printf("[scheduler] started (interval %v)", s.interval)
}

// Stop signals the loop to exit and blocks until it has fully terminated.
// No step fires after Stop returns. Stopping a stopped scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("[scheduler] stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately so dashboards have data before the first tick.
	failed := s.iterate(ctx)

	for {
		if failed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			failed = s.iterate(ctx)
		}
	}
}

// iterate runs one full cycle. Each step completes or fails on its own;
// a failed step never prevents the remaining steps from running. Returns
// true when any step failed, which triggers the backoff sleep.
func (s *Scheduler) iterate(ctx context.Context) bool {
	failed := false

	if !s.runStep("sample", func() error {
		sample, err := s.collector.SampleSystemResources(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		fn := s.broadcast
		s.mu.Unlock()
		if fn != nil {
			fn(sample)
		}
		return nil
	}) {
		failed = true
	}

	if !s.runStep("alerts", func() error {
		s.alerts.Evaluate()
		return nil
	}) {
		failed = true
	}

	if !s.runStep("health", func() error {
		s.health.Run()
		return nil
	}) {
		failed = true
	}

	return failed
}

func (s *Scheduler) runStep(name string, fn func() error) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[scheduler] %s panic: %v", name, p)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		log.Printf("[scheduler] %s error: %v", name, err)
		return false
	}
	return true
}
