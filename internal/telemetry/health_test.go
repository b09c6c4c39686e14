package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servemon/servemon/internal/model"
)

// stubCheck is a probe with a canned result.
type stubCheck struct {
	name   string
	status model.HealthStatus
	panics bool
}

func (c *stubCheck) Name() string { return c.name }

func (c *stubCheck) Run() model.HealthStatus {
	if c.panics {
		panic("probe exploded")
	}
	return c.status
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewHealthRegistry(NewCollector(newTestStore(t)))

	require.NoError(t, r.Register(&stubCheck{name: "disk_space", status: model.StatusHealthy}))
	err := r.Register(&stubCheck{name: "disk_space", status: model.StatusHealthy})
	assert.ErrorIs(t, err, ErrDuplicateCheck)
}

func TestOverallHealthyWhenAllHealthy(t *testing.T) {
	c := NewCollector(newTestStore(t))
	r := NewHealthRegistry(c)
	require.NoError(t, r.Register(&stubCheck{name: "a", status: model.StatusHealthy}))
	require.NoError(t, r.Register(&stubCheck{name: "b", status: model.StatusHealthy}))

	agg := r.Run()
	assert.Equal(t, model.StatusHealthy, agg.OverallStatus)
	assert.Len(t, agg.Checks, 2)

	score, ok := c.GaugeValue("system.health_score", nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, score)
}

func TestOverallUnhealthyOnAnyNonHealthy(t *testing.T) {
	c := NewCollector(newTestStore(t))
	r := NewHealthRegistry(c)
	require.NoError(t, r.Register(&stubCheck{name: "a", status: model.StatusHealthy}))
	require.NoError(t, r.Register(&stubCheck{name: "b", status: model.StatusWarning}))

	agg := r.Run()
	assert.Equal(t, model.StatusUnhealthy, agg.OverallStatus)
	assert.Equal(t, model.StatusWarning, agg.Checks["b"].Status)

	score, ok := c.GaugeValue("system.health_score", nil)
	require.True(t, ok)
	assert.Equal(t, 0.0, score)
}

func TestPanickingProbeBecomesError(t *testing.T) {
	c := NewCollector(newTestStore(t))
	r := NewHealthRegistry(c)
	require.NoError(t, r.Register(&stubCheck{name: "bad", panics: true}))
	require.NoError(t, r.Register(&stubCheck{name: "good", status: model.StatusHealthy}))

	agg := r.Run()
	assert.Equal(t, model.StatusUnhealthy, agg.OverallStatus)
	assert.Equal(t, model.StatusError, agg.Checks["bad"].Status)
	assert.Equal(t, "probe exploded", agg.Checks["bad"].Error)
	// The broken probe does not stop the rest of the pass.
	assert.Equal(t, model.StatusHealthy, agg.Checks["good"].Status)
}

func TestHealthScoreFlipsWithStatus(t *testing.T) {
	c := NewCollector(newTestStore(t))
	r := NewHealthRegistry(c)
	probe := &stubCheck{name: "flappy", status: model.StatusHealthy}
	require.NoError(t, r.Register(probe))

	r.Run()
	score, _ := c.GaugeValue("system.health_score", nil)
	assert.Equal(t, 1.0, score)

	probe.status = model.StatusUnhealthy
	r.Run()
	score, _ = c.GaugeValue("system.health_score", nil)
	assert.Equal(t, 0.0, score)
}

func TestStoreCheck(t *testing.T) {
	st := newTestStore(t)
	check := &StoreCheck{Store: st}
	assert.Equal(t, "database", check.Name())
	assert.Equal(t, model.StatusHealthy, check.Run())
}

func TestBandStatus(t *testing.T) {
	assert.Equal(t, model.StatusHealthy, bandStatus(50))
	assert.Equal(t, model.StatusHealthy, bandStatus(80))
	assert.Equal(t, model.StatusWarning, bandStatus(85))
	assert.Equal(t, model.StatusWarning, bandStatus(90))
	assert.Equal(t, model.StatusUnhealthy, bandStatus(95))
}
