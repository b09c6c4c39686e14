package model

import "time"

// Comparator selects how a rolling-window average is compared to a threshold.
type Comparator string

const (
	CompareGreater Comparator = "greater"
	CompareLess    Comparator = "less"
	CompareEqual   Comparator = "equal"
)

// AlertRule defines a threshold condition over a rolling window.
// Rules are immutable once registered; Name is the unique key.
type AlertRule struct {
	Name       string        `json:"name"`
	MetricName string        `json:"metric_name"`
	Threshold  float64       `json:"threshold"`
	Comparator Comparator    `json:"comparator"`
	Window     time.Duration `json:"window"`
}

// ActiveAlert is a rule currently in the triggered state.
// TriggeredAt is UTC Unix milliseconds.
type ActiveAlert struct {
	RuleName     string  `json:"name"`
	MetricName   string  `json:"metric_name"`
	Threshold    float64 `json:"threshold"`
	CurrentValue float64 `json:"current_value"`
	TriggeredAt  int64   `json:"triggered_at"`
	Status       string  `json:"status"`
}
