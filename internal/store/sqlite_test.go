package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servemon/servemon/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func nowMs() int64 { return time.Now().UTC().UnixMilli() }

func TestAppendAndAverage(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()

	for i, v := range []float64{10, 20, 30} {
		err := s.AppendMetric(model.MetricPoint{
			Timestamp: now - int64(i*1000),
			Name:      "api.response_time_ms",
			Value:     v,
			Kind:      model.KindHistogram,
		})
		require.NoError(t, err)
	}

	avg, count, err := s.AverageSince("api.response_time_ms", now-time.Minute.Milliseconds())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 20.0, avg, 0.001)
}

func TestAverageSinceExcludesOldRows(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()

	require.NoError(t, s.AppendMetric(model.MetricPoint{
		Timestamp: now - 10*time.Minute.Milliseconds(),
		Name:      "system.cpu.percent",
		Value:     99,
		Kind:      model.KindGauge,
	}))
	require.NoError(t, s.AppendMetric(model.MetricPoint{
		Timestamp: now,
		Name:      "system.cpu.percent",
		Value:     50,
		Kind:      model.KindGauge,
	}))

	avg, count, err := s.AverageSince("system.cpu.percent", now-time.Minute.Milliseconds())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 50.0, avg, 0.001)
}

func TestAverageSinceEmptyWindow(t *testing.T) {
	s := newTestStore(t)

	avg, count, err := s.AverageSince("no.such.metric", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0.0, avg)
}

func TestRangeSinceOrdered(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()

	// Insert out of order; range must come back ordered by timestamp.
	for _, off := range []int64{3000, 1000, 2000} {
		require.NoError(t, s.AppendMetric(model.MetricPoint{
			Timestamp: now - off,
			Name:      "model.prediction_time_ms",
			Value:     float64(off),
			Kind:      model.KindHistogram,
		}))
	}

	points, err := s.RangeSince("model.prediction_time_ms", now-time.Minute.Milliseconds())
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, now-3000, points[0].Timestamp)
	assert.Equal(t, now-2000, points[1].Timestamp)
	assert.Equal(t, now-1000, points[2].Timestamp)
}

func TestLastCounterValues(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()

	// Two values for the same series: only the latest should come back.
	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, s.AppendMetric(model.MetricPoint{
			Timestamp: now + int64(i),
			Name:      "api.requests.total",
			Value:     v,
			Tags:      map[string]string{"method": "GET"},
			Kind:      model.KindCounter,
		}))
	}
	// A different series and a gauge that must not appear.
	require.NoError(t, s.AppendMetric(model.MetricPoint{
		Timestamp: now,
		Name:      "model.predictions.total",
		Value:     7,
		Kind:      model.KindCounter,
	}))
	require.NoError(t, s.AppendMetric(model.MetricPoint{
		Timestamp: now,
		Name:      "system.cpu.percent",
		Value:     42,
		Kind:      model.KindGauge,
	}))

	states, err := s.LastCounterValues()
	require.NoError(t, err)
	require.Len(t, states, 2)

	byName := make(map[string]model.CounterState)
	for _, cs := range states {
		byName[cs.Name] = cs
	}
	assert.Equal(t, 3.0, byName["api.requests.total"].Value)
	assert.Equal(t, `{"method":"GET"}`, byName["api.requests.total"].TagsJSON)
	assert.Equal(t, 7.0, byName["model.predictions.total"].Value)
	assert.Equal(t, "{}", byName["model.predictions.total"].TagsJSON)
}

func TestRequestStatsErrorRate(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()

	// 200, 200, 404, 500, 200 -> 5 requests, 2 errors.
	for i, code := range []int{200, 200, 404, 500, 200} {
		require.NoError(t, s.AppendRequestSample(model.RequestSample{
			Timestamp:  now - int64(i*100),
			Endpoint:   "/predict",
			Method:     "POST",
			StatusCode: code,
			DurationMs: 100,
		}))
	}

	st, err := s.RequestStatsSince(now - time.Minute.Milliseconds())
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Count)
	assert.Equal(t, int64(2), st.ErrorCount)
	assert.InDelta(t, 100.0, st.AvgDurationMs, 0.001)
}

func TestRequestStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	st, err := s.RequestStatsSince(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Count)
	assert.Equal(t, int64(0), st.ErrorCount)
	assert.Equal(t, 0.0, st.AvgDurationMs)
}

func TestPredictionStats(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()
	conf := 0.9

	require.NoError(t, s.AppendPredictionSample(model.PredictionSample{
		Timestamp: now, ModelName: "churn", ModelVersion: "v1",
		DurationMs: 40, PredictedValue: 10, Confidence: &conf,
	}))
	require.NoError(t, s.AppendPredictionSample(model.PredictionSample{
		Timestamp: now, ModelName: "churn", ModelVersion: "v1",
		DurationMs: 60, PredictedValue: 30,
	}))

	st, err := s.PredictionStatsSince(now - 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Count)
	assert.InDelta(t, 50.0, st.AvgDurationMs, 0.001)
	assert.InDelta(t, 20.0, st.AvgValue, 0.001)
}

func TestLatestSystemSample(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LatestSystemSample()
	require.NoError(t, err)
	assert.Nil(t, got)

	now := nowMs()
	require.NoError(t, s.AppendSystemSample(model.SystemSample{
		Timestamp: now - 1000, CPUPercent: 10,
	}))
	require.NoError(t, s.AppendSystemSample(model.SystemSample{
		Timestamp: now, CPUPercent: 55.5, MemoryPercent: 60, DiskPercent: 70,
	}))

	got, err = s.LatestSystemSample()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, 55.5, got.CPUPercent)
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestStore(t)
	now := nowMs()
	old := now - 100*time.Hour.Milliseconds()

	require.NoError(t, s.AppendMetric(model.MetricPoint{Timestamp: old, Name: "m", Value: 1, Kind: model.KindGauge}))
	require.NoError(t, s.AppendMetric(model.MetricPoint{Timestamp: now, Name: "m", Value: 2, Kind: model.KindGauge}))
	require.NoError(t, s.AppendSystemSample(model.SystemSample{Timestamp: old}))
	require.NoError(t, s.AppendRequestSample(model.RequestSample{Timestamp: old, Endpoint: "/", Method: "GET", StatusCode: 200}))
	require.NoError(t, s.AppendPredictionSample(model.PredictionSample{Timestamp: old, ModelName: "m", ModelVersion: "v"}))

	n, err := s.PurgeOlderThan(now - 72*time.Hour.Milliseconds())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	// The recent metric row survives.
	points, err := s.RangeSince("m", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, now, points[0].Timestamp)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping())
}
