package sqlite

const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    started_at      TEXT NOT NULL,
    finished_at     TEXT,
    jobs            INTEGER NOT NULL,
    failed          INTEGER,
    records         INTEGER,
    windows_skipped INTEGER,
    duration_ms     INTEGER
);

CREATE TABLE IF NOT EXISTS day_outcomes (
    run_id          TEXT NOT NULL REFERENCES runs (id),
    station         TEXT NOT NULL,
    day             TEXT NOT NULL,
    status          TEXT NOT NULL,
    records         INTEGER NOT NULL,
    windows_skipped INTEGER NOT NULL,
    duration_ms     INTEGER NOT NULL,
    error           TEXT,
    PRIMARY KEY (run_id, station, day)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);`

	insertRunSQL = `
INSERT INTO runs (id,
                  started_at,
                  jobs)
VALUES (?, ?, ?)`

	insertOutcomeSQL = `
INSERT OR REPLACE INTO day_outcomes (run_id,
                                     station,
                                     day,
                                     status,
                                     records,
                                     windows_skipped,
                                     duration_ms,
                                     error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET finished_at     = ?,
    failed          = ?,
    records         = ?,
    windows_skipped = ?,
    duration_ms     = ?
WHERE id = ?`

	selectLatestRunSQL = `
SELECT
    id,
    started_at,
    COALESCE(finished_at, ''),
    jobs,
    COALESCE(failed, 0),
    COALESCE(records, 0),
    COALESCE(windows_skipped, 0)
FROM runs
ORDER BY started_at DESC
LIMIT 1`

	selectOutcomesSQL = `
SELECT
    station,
    day,
    status,
    records,
    windows_skipped,
    duration_ms,
    COALESCE(error, '')
FROM day_outcomes
WHERE run_id = ?
ORDER BY day, station`
)
