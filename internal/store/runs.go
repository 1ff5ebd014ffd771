package store

import "database/sql"

// SyncRun is one recorded pipeline run.
type SyncRun struct {
	ID              int64
	Status          string
	StartedAt       string
	FinishedAt      string
	Fetched         int
	Processed       int
	Inserted        int
	Updated         int
	SummaryMarkdown string
}

// InsertSyncRun records a completed pipeline run. Returns the run id.
func (db *DB) InsertSyncRun(run SyncRun) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO SYNC_RUNS (status, started_at, finished_at, fetched, processed, inserted, updated, summary_markdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Status, run.StartedAt, run.FinishedAt,
		run.Fetched, run.Processed, run.Inserted, run.Updated, run.SummaryMarkdown,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentSyncRuns returns the latest runs, newest first.
func (db *DB) RecentSyncRuns(limit int) ([]SyncRun, error) {
	rows, err := db.conn.Query(`
		SELECT id, status, started_at, finished_at, fetched, processed, inserted, updated, summary_markdown
		FROM SYNC_RUNS ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt,
			&r.Fetched, &r.Processed, &r.Inserted, &r.Updated, &r.SummaryMarkdown); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSyncRun returns a single run by id, or nil when absent.
func (db *DB) GetSyncRun(id int64) (*SyncRun, error) {
	row := db.conn.QueryRow(`
		SELECT id, status, started_at, finished_at, fetched, processed, inserted, updated, summary_markdown
		FROM SYNC_RUNS WHERE id = ?`, id)

	var r SyncRun
	err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt,
		&r.Fetched, &r.Processed, &r.Inserted, &r.Updated, &r.SummaryMarkdown)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
