package api

import (
	"net/http"
	"strconv"

	"github.com/servemon/servemon/internal/model"
	"github.com/servemon/servemon/internal/telemetry"
)

type monitoringAPI struct {
	collector          *telemetry.Collector
	alerts             *telemetry.AlertEngine
	health             *telemetry.HealthRegistry
	defaultWindowHours int
}

// healthCheck runs every registered probe and returns the aggregate.
// Responds 503 when any probe is not healthy so load balancers can react.
func (a *monitoringAPI) healthCheck(w http.ResponseWriter, r *http.Request) {
	agg := a.health.Run()
	status := http.StatusOK
	if agg.OverallStatus != model.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, agg)
}

// summary returns the trailing-window aggregate. ?hours=N overrides the
// configured default window.
func (a *monitoringAPI) summary(w http.ResponseWriter, r *http.Request) {
	hours := a.defaultWindowHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hours must be a positive integer"})
			return
		}
		hours = n
	}
	writeJSON(w, http.StatusOK, a.collector.Summary(hours))
}

// activeAlerts returns the currently active alerts and the registered rules.
func (a *monitoringAPI) activeAlerts(w http.ResponseWriter, r *http.Request) {
	active := a.alerts.ActiveAlerts()
	if active == nil {
		active = []model.ActiveAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_alerts": active,
		"alert_rules":   a.alerts.Rules(),
	})
}
