package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/servemon/servemon/internal/telemetry"
)

// promNamespace prefixes every exported metric name.
const promNamespace = "servemon"

// newPromHandler serves the exposition endpoint from a private registry so
// the adapter's metrics never mix with client_golang's process defaults.
func newPromHandler(collector *telemetry.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(&promBridge{collector: collector})
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// promBridge implements prometheus.Collector over the telemetry
// collector's read accessors. Series are dynamic, so values are read
// fresh on every scrape.
type promBridge struct {
	collector *telemetry.Collector
}

func (b *promBridge) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(b, ch)
}

func (b *promBridge) Collect(ch chan<- prometheus.Metric) {
	for _, sv := range b.collector.CounterValues() {
		emitConst(ch, sv, prometheus.CounterValue)
	}
	for _, sv := range b.collector.GaugeValues() {
		emitConst(ch, sv, prometheus.GaugeValue)
	}
	for _, h := range b.collector.Histograms() {
		names, values := labelPairs(h.Tags)
		desc := prometheus.NewDesc(promName(h.Name), "", names, nil)
		m, err := prometheus.NewConstSummary(desc, h.Count, h.Sum, nil, values...)
		if err != nil {
			continue
		}
		ch <- m
	}
}

func emitConst(ch chan<- prometheus.Metric, sv telemetry.SeriesValue, vt prometheus.ValueType) {
	names, values := labelPairs(sv.Tags)
	desc := prometheus.NewDesc(promName(sv.Name), "", names, nil)
	m, err := prometheus.NewConstMetric(desc, vt, sv.Value, values...)
	if err != nil {
		return
	}
	ch <- m
}

// labelPairs splits a tag map into sorted label names and matching values.
func labelPairs(tags map[string]string) ([]string, []string) {
	if len(tags) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, k := range names {
		values[i] = tags[k]
	}
	return names, values
}

func promName(name string) string {
	return promNamespace + "_" + strings.ReplaceAll(name, ".", "_")
}
