package model

// HealthStatus is the outcome of a single probe run.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusWarning   HealthStatus = "warning"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusError     HealthStatus = "error"
)

// CheckResult is the per-probe outcome of one aggregation pass.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	LastRun int64        `json:"last_run"`
	Error   string       `json:"error,omitempty"`
}

// AggregateHealth is the combined result of running every registered probe.
type AggregateHealth struct {
	OverallStatus HealthStatus           `json:"overall_status"`
	Checks        map[string]CheckResult `json:"checks"`
	Timestamp     int64                  `json:"timestamp"`
}
