package telemetry

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/servemon/servemon/internal/model"
	"github.com/servemon/servemon/internal/store"
)

// equalTolerance is the band within which an "equal" comparator matches.
const equalTolerance = 1e-3

// ErrDuplicateRule is returned when a rule name is already registered.
// Registered rules are immutable; duplicates are rejected, not overwritten.
var ErrDuplicateRule = errors.New("alert rule already registered")

// Notifier receives exactly one call per alert transition to active.
type Notifier func(model.ActiveAlert)

// AlertEngine evaluates threshold rules against the store over rolling
// windows and maintains the set of currently active alerts.
type AlertEngine struct {
	store *store.Store

	mu     sync.Mutex
	rules  map[string]model.AlertRule
	order  []string // evaluation order = registration order
	active map[string]*model.ActiveAlert
	notify Notifier
}

// NewAlertEngine creates an engine reading from st. The default notifier
// logs; use SetNotifier to fan alerts out elsewhere.
func NewAlertEngine(st *store.Store) *AlertEngine {
	return &AlertEngine{
		store:  st,
		rules:  make(map[string]model.AlertRule),
		active: make(map[string]*model.ActiveAlert),
		notify: logNotifier,
	}
}

// SetNotifier replaces the trigger notification callback.
func (e *AlertEngine) SetNotifier(fn Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn != nil {
		e.notify = fn
	}
}

// AddRule registers a rule. Duplicate names and malformed rules are
// rejected.
func (e *AlertEngine) AddRule(r model.AlertRule) error {
	if r.Name == "" || r.MetricName == "" {
		return errors.New("alert rule needs a name and a metric")
	}
	if r.Window <= 0 {
		return fmt.Errorf("alert rule %s: window must be positive", r.Name)
	}
	switch r.Comparator {
	case model.CompareGreater, model.CompareLess, model.CompareEqual:
	default:
		return fmt.Errorf("alert rule %s: unknown comparator %q", r.Name, r.Comparator)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name)
	}
	e.rules[r.Name] = r
	e.order = append(e.order, r.Name)
	return nil
}

// Rules returns registered rules in registration order.
func (e *AlertEngine) Rules() []model.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]model.AlertRule, 0, len(e.order))
	for _, name := range e.order {
		result = append(result, e.rules[name])
	}
	return result
}

// ActiveAlerts returns a snapshot of the currently active alerts.
func (e *AlertEngine) ActiveAlerts() []model.ActiveAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]model.ActiveAlert, 0, len(e.active))
	for _, name := range e.order {
		if a, ok := e.active[name]; ok {
			result = append(result, *a)
		}
	}
	return result
}

// Evaluate runs every rule once. A rule with no samples in its window is
// skipped without a transition; a rule whose query fails is logged and
// skipped for this cycle only.
func (e *AlertEngine) Evaluate() {
	now := nowMillis()

	e.mu.Lock()
	order := make([]string, len(e.order))
	copy(order, e.order)
	rules := make(map[string]model.AlertRule, len(e.rules))
	for name, r := range e.rules {
		rules[name] = r
	}
	e.mu.Unlock()

	var notifications []model.ActiveAlert

	for _, name := range order {
		rule := rules[name]
		since := now - rule.Window.Milliseconds()

		avg, count, err := e.store.AverageSince(rule.MetricName, since)
		if err != nil {
			log.Printf("[alerts] rule %s query failed: %v", rule.Name, err)
			continue
		}
		if count == 0 {
			continue
		}

		if n := e.transition(rule, satisfied(rule, avg), avg, now); n != nil {
			notifications = append(notifications, *n)
		}
	}

	// Notify outside the lock: the notifier may block on I/O.
	for _, a := range notifications {
		e.notify(a)
	}
}

// transition applies the state machine for one rule and returns the alert
// to notify, if the rule just became active.
func (e *AlertEngine) transition(rule model.AlertRule, sat bool, avg float64, now int64) *model.ActiveAlert {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, isActive := e.active[rule.Name]
	switch {
	case sat && !isActive:
		a := &model.ActiveAlert{
			RuleName:     rule.Name,
			MetricName:   rule.MetricName,
			Threshold:    rule.Threshold,
			CurrentValue: avg,
			TriggeredAt:  now,
			Status:       "active",
		}
		e.active[rule.Name] = a
		return a
	case sat && isActive:
		existing.CurrentValue = avg
	case !sat && isActive:
		delete(e.active, rule.Name)
	}
	return nil
}

func satisfied(rule model.AlertRule, avg float64) bool {
	switch rule.Comparator {
	case model.CompareGreater:
		return avg > rule.Threshold
	case model.CompareLess:
		return avg < rule.Threshold
	case model.CompareEqual:
		return math.Abs(avg-rule.Threshold) < equalTolerance
	}
	return false
}

func logNotifier(a model.ActiveAlert) {
	log.Printf("[alerts] ALERT %s: %s = %.2f (threshold %.2f)",
		a.RuleName, a.MetricName, a.CurrentValue, a.Threshold)
}

// DefaultRules returns the rules registered at startup when the config
// does not override them.
func DefaultRules() []model.AlertRule {
	return []model.AlertRule{
		{Name: "high_cpu_usage", MetricName: "system.cpu.percent",
			Threshold: 80, Comparator: model.CompareGreater, Window: 5 * time.Minute},
		{Name: "high_memory_usage", MetricName: "system.memory.percent",
			Threshold: 85, Comparator: model.CompareGreater, Window: 5 * time.Minute},
		{Name: "high_api_response_time", MetricName: "api.response_time_ms",
			Threshold: 1000, Comparator: model.CompareGreater, Window: 3 * time.Minute},
		{Name: "high_prediction_time", MetricName: "model.prediction_time_ms",
			Threshold: 500, Comparator: model.CompareGreater, Window: 3 * time.Minute},
	}
}
