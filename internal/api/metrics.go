package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/servemon/servemon/internal/model"
	"github.com/servemon/servemon/internal/store"
)

type queryAPI struct {
	store *store.Store
}

// query returns raw (timestamp, value) points for one metric name.
// ?since= is Unix milliseconds; default is the last hour.
func (a *queryAPI) query(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name parameter required"})
		return
	}

	since := time.Now().UTC().Add(-time.Hour).UnixMilli()
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be Unix milliseconds"})
			return
		}
		since = n
	}

	points, err := a.store.RangeSince(name, since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if points == nil {
		points = []model.TimedValue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   name,
		"since":  since,
		"points": points,
	})
}
