package telemetry

import (
	"encoding/json"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/servemon/servemon/internal/model"
	"github.com/servemon/servemon/internal/store"
)

// histogramCapacity bounds the in-memory ring buffer per histogram series.
// The full history stays queryable from the store.
const histogramCapacity = 100

// Collector owns the in-memory counter/gauge/histogram state and mirrors
// every mutation into the persistent store. Recording is best-effort:
// storage faults are logged and the point is dropped, never surfaced to
// the caller.
type Collector struct {
	store *store.Store

	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*ring
	kinds      map[string]model.MetricKind
	series     map[string]seriesInfo
}

type seriesInfo struct {
	name string
	tags map[string]string
}

// SeriesValue is a snapshot of one counter or gauge series.
type SeriesValue struct {
	Name  string
	Tags  map[string]string
	Value float64
}

// HistogramSnapshot is a snapshot of one histogram series: cumulative
// count/sum plus the bounded window of most recent observations.
type HistogramSnapshot struct {
	Name   string
	Tags   map[string]string
	Count  uint64
	Sum    float64
	Recent []float64
}

// NewCollector creates a collector backed by st and rebuilds counter
// accumulators from the last persisted value of each counter series, so
// counters keep counting across restarts instead of regressing to zero.
func NewCollector(st *store.Store) *Collector {
	c := &Collector{
		store:      st,
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*ring),
		kinds:      make(map[string]model.MetricKind),
		series:     make(map[string]seriesInfo),
	}
	c.restoreCounters()
	return c
}

func (c *Collector) restoreCounters() {
	states, err := c.store.LastCounterValues()
	if err != nil {
		log.Printf("[collector] counter restore failed, starting from zero: %v", err)
		return
	}
	for _, cs := range states {
		var tags map[string]string
		if cs.TagsJSON != "" && cs.TagsJSON != "{}" {
			if err := json.Unmarshal([]byte(cs.TagsJSON), &tags); err != nil {
				log.Printf("[collector] skip counter %s: bad tags %q: %v", cs.Name, cs.TagsJSON, err)
				continue
			}
		}
		key := seriesKey(cs.Name, tags)
		c.counters[key] = cs.Value
		c.kinds[key] = model.KindCounter
		c.series[key] = seriesInfo{name: cs.Name, tags: tags}
	}
	if len(states) > 0 {
		log.Printf("[collector] restored %d counter series", len(states))
	}
}

// RecordCounter adds delta to the series accumulator and persists the new
// accumulated value. Negative deltas are dropped: counters are monotonic.
func (c *Collector) RecordCounter(name string, delta float64, tags map[string]string) {
	if delta < 0 {
		log.Printf("[collector] drop negative counter delta for %s: %v", name, delta)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(name, tags)
	if !c.claimKind(key, name, tags, model.KindCounter) {
		return
	}
	c.counters[key] += delta

	// Persist under the lock: a later row for this series must never show
	// a smaller accumulated value than an earlier one.
	c.persist(model.MetricPoint{
		Timestamp: nowMillis(),
		Name:      name,
		Value:     c.counters[key],
		Tags:      tags,
		Kind:      model.KindCounter,
	})
}

// RecordGauge overwrites the series value and persists it verbatim.
func (c *Collector) RecordGauge(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(name, tags)
	if !c.claimKind(key, name, tags, model.KindGauge) {
		return
	}
	c.gauges[key] = value

	c.persist(model.MetricPoint{
		Timestamp: nowMillis(),
		Name:      name,
		Value:     value,
		Tags:      tags,
		Kind:      model.KindGauge,
	})
}

// RecordHistogram pushes the observation into the series ring buffer and
// persists it verbatim.
func (c *Collector) RecordHistogram(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(name, tags)
	if !c.claimKind(key, name, tags, model.KindHistogram) {
		return
	}
	h, ok := c.histograms[key]
	if !ok {
		h = newRing(histogramCapacity)
		c.histograms[key] = h
	}
	h.observe(value)

	c.persist(model.MetricPoint{
		Timestamp: nowMillis(),
		Name:      name,
		Value:     value,
		Tags:      tags,
		Kind:      model.KindHistogram,
	})
}

// RecordAPIRequest records the composite telemetry for one HTTP request:
// a tagged request counter, a duration histogram and a request-sample row.
func (c *Collector) RecordAPIRequest(method, endpoint string, statusCode int, durationMs float64) {
	c.RecordCounter("api.requests.total", 1, map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(statusCode),
	})
	c.RecordHistogram("api.response_time_ms", durationMs, map[string]string{
		"method":   method,
		"endpoint": endpoint,
	})

	if err := c.store.AppendRequestSample(model.RequestSample{
		Timestamp:  nowMillis(),
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: statusCode,
		DurationMs: durationMs,
	}); err != nil {
		log.Printf("[collector] drop request sample: %v", err)
	}
}

// RecordPrediction records the composite telemetry for one model
// prediction event.
func (c *Collector) RecordPrediction(modelName, modelVersion string, durationMs, predictedValue float64, confidence *float64) {
	tags := map[string]string{
		"model_name":    modelName,
		"model_version": modelVersion,
	}
	c.RecordCounter("model.predictions.total", 1, tags)
	c.RecordHistogram("model.prediction_time_ms", durationMs, tags)
	c.RecordHistogram("model.prediction_value", predictedValue, tags)
	if confidence != nil {
		c.RecordHistogram("model.confidence_score", *confidence, tags)
	}

	if err := c.store.AppendPredictionSample(model.PredictionSample{
		Timestamp:      nowMillis(),
		ModelName:      modelName,
		ModelVersion:   modelVersion,
		DurationMs:     durationMs,
		PredictedValue: predictedValue,
		Confidence:     confidence,
	}); err != nil {
		log.Printf("[collector] drop prediction sample: %v", err)
	}
}

// Summary computes the trailing-window aggregate. Absent data renders as
// zero counts and a 0% error rate, never as an error.
func (c *Collector) Summary(windowHours int) model.Summary {
	since := nowMillis() - int64(windowHours)*int64(time.Hour/time.Millisecond)

	s := model.Summary{WindowHours: windowHours}

	req, err := c.store.RequestStatsSince(since)
	if err != nil {
		log.Printf("[collector] summary request stats: %v", err)
	} else {
		s.API.TotalRequests = req.Count
		s.API.AvgResponseTimeMs = round2(req.AvgDurationMs)
		s.API.ErrorCount = req.ErrorCount
		if req.Count > 0 {
			s.API.ErrorRate = round2(float64(req.ErrorCount) / float64(req.Count) * 100)
		}
	}

	pred, err := c.store.PredictionStatsSince(since)
	if err != nil {
		log.Printf("[collector] summary prediction stats: %v", err)
	} else {
		s.Model.TotalPredictions = pred.Count
		s.Model.AvgPredictionTimeMs = round2(pred.AvgDurationMs)
		s.Model.AvgPredictionValue = round2(pred.AvgValue)
	}

	sys, err := c.store.LatestSystemSample()
	if err != nil {
		log.Printf("[collector] summary system sample: %v", err)
	} else if sys != nil {
		s.System.CPUPercent = sys.CPUPercent
		s.System.MemoryPercent = sys.MemoryPercent
		s.System.DiskPercent = sys.DiskPercent
	}

	return s
}

// CounterValue returns the current accumulator for a series.
func (c *Collector) CounterValue(name string, tags map[string]string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counters[seriesKey(name, tags)]
	return v, ok
}

// GaugeValue returns the last written value for a series.
func (c *Collector) GaugeValue(name string, tags map[string]string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.gauges[seriesKey(name, tags)]
	return v, ok
}

// CounterValues returns a snapshot of all counter series.
func (c *Collector) CounterValues() []SeriesValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotValues(c.counters)
}

// GaugeValues returns a snapshot of all gauge series.
func (c *Collector) GaugeValues() []SeriesValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotValues(c.gauges)
}

// Histograms returns a snapshot of all histogram series.
func (c *Collector) Histograms() []HistogramSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]HistogramSnapshot, 0, len(c.histograms))
	for key, h := range c.histograms {
		info := c.series[key]
		result = append(result, HistogramSnapshot{
			Name:   info.name,
			Tags:   copyTags(info.tags),
			Count:  h.count,
			Sum:    h.sum,
			Recent: h.values(),
		})
	}
	sortByName(result, func(s HistogramSnapshot) string { return s.Name })
	return result
}

// --- internals, callers hold c.mu ---

func (c *Collector) snapshotValues(m map[string]float64) []SeriesValue {
	result := make([]SeriesValue, 0, len(m))
	for key, v := range m {
		info := c.series[key]
		result = append(result, SeriesValue{Name: info.name, Tags: copyTags(info.tags), Value: v})
	}
	sortByName(result, func(s SeriesValue) string { return s.Name })
	return result
}

// claimKind fixes the metric kind of a series on first write. A write with
// a conflicting kind is dropped.
func (c *Collector) claimKind(key, name string, tags map[string]string, kind model.MetricKind) bool {
	existing, ok := c.kinds[key]
	if !ok {
		c.kinds[key] = kind
		c.series[key] = seriesInfo{name: name, tags: copyTags(tags)}
		return true
	}
	if existing != kind {
		log.Printf("[collector] drop %s write for %s: series is a %s", kind, name, existing)
		return false
	}
	return true
}

func (c *Collector) persist(p model.MetricPoint) {
	if err := c.store.AppendMetric(p); err != nil {
		log.Printf("[collector] drop metric %s: %v", p.Name, err)
	}
}

// seriesKey canonicalizes a (name, tag set) pair: tag pairs are sorted so
// equal sets produce the same key regardless of map iteration order.
func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return name + "|" + strings.Join(pairs, ",")
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func sortByName[T any](s []T, name func(T) string) {
	sort.Slice(s, func(i, j int) bool { return name(s[i]) < name(s[j]) })
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ring is a fixed-capacity buffer of the most recent observations, plus
// cumulative count/sum over everything ever observed.
type ring struct {
	buf   []float64
	next  int
	full  bool
	count uint64
	sum   float64
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) observe(v float64) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.count++
	r.sum += v
}

// values returns the buffered observations, oldest first.
func (r *ring) values() []float64 {
	if !r.full {
		out := make([]float64, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]float64, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
