package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servemon/servemon/internal/model"
)

func newTestScheduler(t *testing.T, interval time.Duration) (*Scheduler, *Collector) {
	t.Helper()
	st := newTestStore(t)
	c := NewCollector(st)
	e := NewAlertEngine(st)
	h := NewHealthRegistry(c)
	return NewScheduler(c, e, h, interval), c
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	s, _ := newTestScheduler(t, 0)
	assert.Equal(t, DefaultSampleInterval, s.interval)
	assert.Equal(t, 2*DefaultSampleInterval, s.backoff)
}

func TestSchedulerRunsImmediately(t *testing.T) {
	s, c := newTestScheduler(t, time.Hour) // no tick will fire during the test

	samples := make(chan model.SystemSample, 1)
	s.SetBroadcast(func(sample model.SystemSample) {
		select {
		case samples <- sample:
		default:
		}
	})

	s.Start()
	defer s.Stop()

	// The first iteration runs on Start, not on the first tick.
	select {
	case sample := <-samples:
		assert.NotZero(t, sample.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no sample broadcast after Start")
	}

	// The iteration also records the health score gauge.
	require.Eventually(t, func() bool {
		_, ok := c.GaugeValue("system.health_score", nil)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSchedulerStartIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)

	s.Start()
	first := s.done
	s.Start() // no-op while running
	assert.Equal(t, first, s.done)

	s.Stop()
}

func TestSchedulerStopBlocksUntilLoopExits(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)

	s.Start()
	done := s.done
	s.Stop()

	// The loop goroutine has fully terminated once Stop returns.
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the loop exited")
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)

	s.Stop() // stopping a stopped scheduler is a no-op

	s.Start()
	s.Stop()
	s.Stop()

	// Restart after stop works.
	s.Start()
	s.Stop()
}

// countingCheck counts how many aggregation passes have reached it.
type countingCheck struct {
	mu sync.Mutex
	n  int
}

func (c *countingCheck) Name() string { return "counting" }

func (c *countingCheck) Run() model.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return model.StatusHealthy
}

func (c *countingCheck) runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestSchedulerContinuesAfterFailedIteration(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st)
	e := NewAlertEngine(st)
	h := NewHealthRegistry(c)
	probe := &countingCheck{}
	require.NoError(t, h.Register(probe))

	// Closing the store makes every sample append fail, so each iteration
	// takes the backoff path.
	require.NoError(t, st.Close())

	s := NewScheduler(c, e, h, 20*time.Millisecond)
	s.Start()
	defer s.Stop()

	// The failed sample step neither skips the remaining steps of its own
	// cycle nor terminates the loop: the health pass keeps firing through
	// the backoff sleeps.
	require.Eventually(t, func() bool { return probe.runs() >= 3 },
		5*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopsDuringBackoff(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st)
	s := NewScheduler(c, NewAlertEngine(st), NewHealthRegistry(c), 10*time.Second)
	require.NoError(t, st.Close())

	// The immediate first iteration fails and the loop enters its 20s
	// backoff sleep; Stop must still return promptly.
	s.Start()
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while the loop was in backoff")
	}
}

func TestRunStepRecoversPanic(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)

	ok := s.runStep("boom", func() error { panic("step exploded") })
	assert.False(t, ok)

	ok = s.runStep("fine", func() error { return nil })
	assert.True(t, ok)
}
