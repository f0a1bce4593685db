package storage

// v002 adds the capture log: one row per finished pipeline run.
var v002CaptureLog = []string{
	`CREATE TABLE IF NOT EXISTS capture_log (
		task_id     TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		item_id     INTEGER REFERENCES items(id),
		started_at  INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_capture_log_finished ON capture_log(finished_at)`,
	`CREATE INDEX IF NOT EXISTS idx_capture_log_state    ON capture_log(state)`,
}
