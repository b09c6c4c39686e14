package api

import (
	"encoding/json"
	"net/http"

	"github.com/servemon/servemon/internal/telemetry"
)

type predictionsAPI struct {
	collector *telemetry.Collector
}

type predictionEvent struct {
	ModelName      string   `json:"model_name"`
	ModelVersion   string   `json:"model_version"`
	DurationMs     float64  `json:"duration_ms"`
	PredictedValue float64  `json:"predicted_value"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// ingest accepts a prediction event reported by the serving process.
// Recording is best-effort, so a well-formed event is always accepted.
func (a *predictionsAPI) ingest(w http.ResponseWriter, r *http.Request) {
	var ev predictionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if ev.ModelName == "" || ev.ModelVersion == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model_name and model_version are required"})
		return
	}
	if ev.DurationMs < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_ms must be non-negative"})
		return
	}

	a.collector.RecordPrediction(ev.ModelName, ev.ModelVersion, ev.DurationMs, ev.PredictedValue, ev.Confidence)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}
