package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/servemon/servemon/internal/model"
	_ "modernc.org/sqlite"
)

// Store is the persistent metric log. Every append is a single synchronous
// statement so a point is either fully durable or not recorded at all.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single-writer
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// DBPath returns the database file path.
func (s *Store) DBPath() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable and writable enough to query.
func (s *Store) Ping() error {
	var one int
	return s.db.QueryRow("SELECT 1").Scan(&one)
}

// --- Metric log ---

// AppendMetric inserts one metric point into the append-only log.
func (s *Store) AppendMetric(p model.MetricPoint) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO metrics (timestamp, name, value, tags_json, kind) VALUES (?, ?, ?, ?, ?)",
		p.Timestamp, p.Name, p.Value, tags, string(p.Kind))
	return err
}

// AverageSince returns the average value and sample count for a metric
// name over all rows newer than since (Unix ms). count == 0 means no
// samples exist in the window.
func (s *Store) AverageSince(name string, since int64) (float64, int, error) {
	var avg sql.NullFloat64
	var count int
	row := s.db.QueryRow(
		"SELECT AVG(value), COUNT(*) FROM metrics WHERE name = ? AND timestamp > ?",
		name, since)
	if err := row.Scan(&avg, &count); err != nil {
		return 0, 0, err
	}
	return avg.Float64, count, nil
}

// RangeSince returns (timestamp, value) pairs for a metric name newer than
// since (Unix ms), ordered by timestamp.
func (s *Store) RangeSince(name string, since int64) ([]model.TimedValue, error) {
	rows, err := s.db.Query(
		"SELECT timestamp, value FROM metrics WHERE name = ? AND timestamp > ? ORDER BY timestamp",
		name, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.TimedValue
	for rows.Next() {
		var tv model.TimedValue
		if err := rows.Scan(&tv.Timestamp, &tv.Value); err != nil {
			return nil, err
		}
		result = append(result, tv)
	}
	return result, rows.Err()
}

// LastCounterValues returns the most recent persisted value of every
// counter series, keyed by (name, tags_json).
func (s *Store) LastCounterValues() ([]model.CounterState, error) {
	rows, err := s.db.Query(`
		SELECT name, tags_json, value
		FROM metrics
		WHERE kind = 'counter' AND id IN (
			SELECT MAX(id) FROM metrics WHERE kind = 'counter' GROUP BY name, tags_json
		)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.CounterState
	for rows.Next() {
		var cs model.CounterState
		if err := rows.Scan(&cs.Name, &cs.TagsJSON, &cs.Value); err != nil {
			return nil, err
		}
		result = append(result, cs)
	}
	return result, rows.Err()
}

// --- System samples ---

// AppendSystemSample inserts one system resource sample.
func (s *Store) AppendSystemSample(ss model.SystemSample) error {
	_, err := s.db.Exec(`
		INSERT INTO system_samples
		(timestamp, cpu_pct, mem_pct, mem_used_gb, disk_pct, disk_used_gb, net_sent, net_recv)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ss.Timestamp, ss.CPUPercent, ss.MemoryPercent, ss.MemoryUsedGB,
		ss.DiskPercent, ss.DiskUsedGB, ss.NetBytesSent, ss.NetBytesRecv)
	return err
}

// LatestSystemSample returns the most recent system sample, or nil when
// none has been recorded.
func (s *Store) LatestSystemSample() (*model.SystemSample, error) {
	row := s.db.QueryRow(`
		SELECT timestamp, cpu_pct, mem_pct, mem_used_gb, disk_pct, disk_used_gb, net_sent, net_recv
		FROM system_samples ORDER BY timestamp DESC LIMIT 1`)
	var ss model.SystemSample
	err := row.Scan(&ss.Timestamp, &ss.CPUPercent, &ss.MemoryPercent, &ss.MemoryUsedGB,
		&ss.DiskPercent, &ss.DiskUsedGB, &ss.NetBytesSent, &ss.NetBytesRecv)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ss, nil
}

// --- Request samples ---

// AppendRequestSample inserts one request sample.
func (s *Store) AppendRequestSample(rs model.RequestSample) error {
	_, err := s.db.Exec(`
		INSERT INTO request_samples (timestamp, endpoint, method, status_code, duration_ms)
		VALUES (?, ?, ?, ?, ?)`,
		rs.Timestamp, rs.Endpoint, rs.Method, rs.StatusCode, rs.DurationMs)
	return err
}

// RequestStatsSince aggregates request samples newer than since (Unix ms).
// Errors are rows with status_code >= 400.
func (s *Store) RequestStatsSince(since int64) (model.RequestStats, error) {
	var st model.RequestStats
	var avg sql.NullFloat64
	row := s.db.QueryRow(`
		SELECT COUNT(*), AVG(duration_ms),
		       COUNT(CASE WHEN status_code >= 400 THEN 1 END)
		FROM request_samples WHERE timestamp > ?`, since)
	if err := row.Scan(&st.Count, &avg, &st.ErrorCount); err != nil {
		return model.RequestStats{}, err
	}
	st.AvgDurationMs = avg.Float64
	return st, nil
}

// --- Prediction samples ---

// AppendPredictionSample inserts one prediction sample.
func (s *Store) AppendPredictionSample(ps model.PredictionSample) error {
	var input any
	if ps.InputJSON != "" {
		input = ps.InputJSON
	}
	_, err := s.db.Exec(`
		INSERT INTO prediction_samples
		(timestamp, model_name, model_version, duration_ms, predicted_value, confidence, input_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ps.Timestamp, ps.ModelName, ps.ModelVersion, ps.DurationMs,
		ps.PredictedValue, ps.Confidence, input)
	return err
}

// PredictionStatsSince aggregates prediction samples newer than since (Unix ms).
func (s *Store) PredictionStatsSince(since int64) (model.PredictionStats, error) {
	var st model.PredictionStats
	var avgDur, avgVal sql.NullFloat64
	row := s.db.QueryRow(`
		SELECT COUNT(*), AVG(duration_ms), AVG(predicted_value)
		FROM prediction_samples WHERE timestamp > ?`, since)
	if err := row.Scan(&st.Count, &avgDur, &avgVal); err != nil {
		return model.PredictionStats{}, err
	}
	st.AvgDurationMs = avgDur.Float64
	st.AvgValue = avgVal.Float64
	return st, nil
}

// --- Retention ---

// PurgeOlderThan removes rows older than cutoff (Unix ms) from all four
// tables and returns the total number of rows removed.
func (s *Store) PurgeOlderThan(cutoff int64) (int64, error) {
	var total int64
	for _, table := range []string{"metrics", "system_samples", "request_samples", "prediction_samples"} {
		res, err := s.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// encodeTags serializes a tag map to canonical JSON. Go's encoder writes
// map keys in sorted order, so equal tag sets always encode identically.
func encodeTags(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
