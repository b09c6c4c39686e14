package telemetry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/servemon/servemon/internal/model"
)

// ErrDuplicateCheck is returned when a probe name is already registered.
var ErrDuplicateCheck = errors.New("health check already registered")

// HealthCheck is a single named probe. Run reports the probe's current
// status; probes that fail internally return StatusError themselves,
// and a panicking probe is mapped to StatusError by the registry.
type HealthCheck interface {
	Name() string
	Run() model.HealthStatus
}

// HealthRegistry aggregates registered probes into one overall status and
// feeds a health-score gauge back into the collector. Probes have no
// scheduling of their own; cadence is imposed by the caller.
type HealthRegistry struct {
	collector *Collector

	mu     sync.Mutex
	checks []*checkEntry
	names  map[string]bool
}

type checkEntry struct {
	check      HealthCheck
	lastRun    int64
	lastStatus model.HealthStatus
	lastErr    string
}

// NewHealthRegistry creates a registry recording its health score through c.
func NewHealthRegistry(c *Collector) *HealthRegistry {
	return &HealthRegistry{
		collector: c,
		names:     make(map[string]bool),
	}
}

// Register adds a probe. Duplicate names are rejected; probes are never
// removed once registered.
func (r *HealthRegistry) Register(hc HealthCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[hc.Name()] {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, hc.Name())
	}
	r.names[hc.Name()] = true
	r.checks = append(r.checks, &checkEntry{check: hc})
	return nil
}

// Run executes every probe synchronously in registration order and
// aggregates the results. Overall status is healthy iff every probe
// returned healthy. The 1.0/0.0 health score is recorded as a gauge.
func (r *HealthRegistry) Run() model.AggregateHealth {
	now := nowMillis()
	agg := model.AggregateHealth{
		OverallStatus: model.StatusHealthy,
		Checks:        make(map[string]model.CheckResult),
		Timestamp:     now,
	}

	r.mu.Lock()
	for _, entry := range r.checks {
		status, errMsg := runProbe(entry.check)
		entry.lastRun = now
		entry.lastStatus = status
		entry.lastErr = errMsg

		agg.Checks[entry.check.Name()] = model.CheckResult{
			Status:  status,
			LastRun: now,
			Error:   errMsg,
		}
		if status != model.StatusHealthy {
			agg.OverallStatus = model.StatusUnhealthy
		}
	}
	r.mu.Unlock()

	score := 0.0
	if agg.OverallStatus == model.StatusHealthy {
		score = 1.0
	}
	r.collector.RecordGauge("system.health_score", score, nil)

	return agg
}

// runProbe executes one probe, converting a panic into StatusError so a
// broken probe cannot take down the aggregation pass.
func runProbe(hc HealthCheck) (status model.HealthStatus, errMsg string) {
	defer func() {
		if p := recover(); p != nil {
			status = model.StatusError
			errMsg = fmt.Sprint(p)
		}
	}()
	return hc.Run(), ""
}
