package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/servemon/servemon/internal/store"
	"github.com/servemon/servemon/internal/telemetry"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(collector *telemetry.Collector, db *store.Store, alerts *telemetry.AlertEngine,
	health *telemetry.HealthRegistry, hub *Hub, summaryWindowHours int) http.Handler {

	mux := http.NewServeMux()

	ma := &monitoringAPI{collector: collector, alerts: alerts, health: health, defaultWindowHours: summaryWindowHours}
	qa := &queryAPI{store: db}
	pa := &predictionsAPI{collector: collector}

	// Health and monitoring
	mux.HandleFunc("GET /api/v1/health", ma.healthCheck)
	mux.HandleFunc("GET /api/v1/monitoring/summary", ma.summary)
	mux.HandleFunc("GET /api/v1/monitoring/alerts", ma.activeAlerts)

	// Metric log queries
	mux.HandleFunc("GET /api/v1/metrics/query", qa.query)

	// Prediction event ingest (sidecar mode)
	mux.HandleFunc("POST /api/v1/predictions", pa.ingest)

	// Prometheus exposition
	mux.Handle("GET /metrics", newPromHandler(collector))

	// WebSocket
	mux.HandleFunc("GET /api/v1/ws", hub.HandleWS)

	return withMiddleware(mux, collector)
}

// withMiddleware wraps the router with recovery, CORS and per-request
// telemetry recording.
func withMiddleware(next http.Handler, collector *telemetry.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Recovery
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[http] panic: %v", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		// CORS for local development
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// WebSocket upgrades are long-lived connections, not request samples.
		if r.URL.Path == "/api/v1/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		collector.RecordAPIRequest(r.Method, r.URL.Path, rec.status, float64(elapsed)/float64(time.Millisecond))
		log.Printf("[http] %s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed)
	})
}

// statusRecorder captures the response status code for telemetry.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}
