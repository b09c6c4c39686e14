package store

import "database/sql"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		tags_json TEXT NOT NULL DEFAULT '{}',
		kind TEXT NOT NULL DEFAULT 'gauge'
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, timestamp);
	CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(timestamp);`,

	`CREATE TABLE IF NOT EXISTS system_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		cpu_pct REAL NOT NULL,
		mem_pct REAL NOT NULL,
		mem_used_gb REAL NOT NULL,
		disk_pct REAL NOT NULL,
		disk_used_gb REAL NOT NULL,
		net_sent INTEGER NOT NULL DEFAULT 0,
		net_recv INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_system_ts ON system_samples(timestamp);`,

	`CREATE TABLE IF NOT EXISTS request_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		duration_ms REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_ts ON request_samples(timestamp);`,

	`CREATE TABLE IF NOT EXISTS prediction_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		model_name TEXT NOT NULL,
		model_version TEXT NOT NULL,
		duration_ms REAL NOT NULL,
		predicted_value REAL NOT NULL,
		confidence REAL,
		input_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_ts ON prediction_samples(timestamp);`,
}

func runMigrations(db *sql.DB) error {
	// Create migration tracking table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
