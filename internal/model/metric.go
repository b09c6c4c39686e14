package model

// MetricKind identifies how a metric series accumulates values.
type MetricKind string

const (
	KindCounter   MetricKind = "counter"
	KindGauge     MetricKind = "gauge"
	KindHistogram MetricKind = "histogram"
)

// MetricPoint represents a single metric observation.
// Timestamp is UTC Unix milliseconds.
type MetricPoint struct {
	Timestamp int64             `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Kind      MetricKind        `json:"kind"`
}

// TimedValue is a (timestamp, value) pair from a range query.
type TimedValue struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// CounterState is the latest persisted value of a counter series,
// used to rebuild in-memory accumulators on startup.
type CounterState struct {
	Name     string
	TagsJSON string
	Value    float64
}

// SystemSample is one row of system resource utilization.
type SystemSample struct {
	Timestamp     int64   `json:"timestamp"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskUsedGB    float64 `json:"disk_used_gb"`
	NetBytesSent  uint64  `json:"net_bytes_sent"`
	NetBytesRecv  uint64  `json:"net_bytes_recv"`
}

// RequestSample is one row of per-request telemetry from the serving layer.
type RequestSample struct {
	Timestamp  int64   `json:"timestamp"`
	Endpoint   string  `json:"endpoint"`
	Method     string  `json:"method"`
	StatusCode int     `json:"status_code"`
	DurationMs float64 `json:"duration_ms"`
}

// PredictionSample is one row of per-prediction telemetry.
// Confidence is nil when the serving layer did not report one.
type PredictionSample struct {
	Timestamp      int64    `json:"timestamp"`
	ModelName      string   `json:"model_name"`
	ModelVersion   string   `json:"model_version"`
	DurationMs     float64  `json:"duration_ms"`
	PredictedValue float64  `json:"predicted_value"`
	Confidence     *float64 `json:"confidence,omitempty"`
	InputJSON      string   `json:"input_json,omitempty"`
}

// RequestStats aggregates request samples over a window.
type RequestStats struct {
	Count         int64
	AvgDurationMs float64
	ErrorCount    int64
}

// PredictionStats aggregates prediction samples over a window.
type PredictionStats struct {
	Count         int64
	AvgDurationMs float64
	AvgValue      float64
}

// Summary is the trailing-window aggregate served by the monitoring API.
type Summary struct {
	WindowHours int            `json:"time_period_hours"`
	API         APISummary     `json:"api"`
	Model       ModelSummary   `json:"model"`
	System      SystemSnapshot `json:"system"`
}

// APISummary summarizes request traffic over the window.
type APISummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	ErrorCount        int64   `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
}

// ModelSummary summarizes prediction traffic over the window.
type ModelSummary struct {
	TotalPredictions    int64   `json:"total_predictions"`
	AvgPredictionTimeMs float64 `json:"avg_prediction_time_ms"`
	AvgPredictionValue  float64 `json:"avg_prediction_value"`
}

// SystemSnapshot is the most recent system sample, zero-valued when
// no sample has been recorded yet.
type SystemSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}
