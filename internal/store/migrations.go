package store

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "service requests table and sync run history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS SERVICE_REQUESTS (
    OBJECTID INTEGER PRIMARY KEY AUTOINCREMENT,
    REQUESTID TEXT UNIQUE NOT NULL,
    SRX REAL NOT NULL,
    SRY REAL NOT NULL,
    GEOMETRY TEXT NOT NULL,
    DATETIMEINIT TEXT,
    DATETIMECLOSED TEXT,
    PRJCOMPLETEDATE TEXT,
    DATEINVTDONE TEXT,
    DATECANCELLED TEXT,
    DESCRIPTION TEXT,
    PROBLEMCODE TEXT,
    PROBADDRESS TEXT,
    SUBMITTO TEXT,
    STATUS TEXT,
    EXPLANATION TEXT,
    CALLERTYPE TEXT,
    GROUP_ TEXT,
    PROBADDTYPE TEXT,
    PROBCITY TEXT,
    NEIGHBORHOOD INTEGER,
    WARD INTEGER,
    PROBZIP INTEGER,
    PLAIN_ENGLISH_NAME_FOR_PROBLEMCODE TEXT,
    UPDATED_AT TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS SYNC_RUNS (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    fetched INTEGER DEFAULT 0,
    processed INTEGER DEFAULT 0,
    inserted INTEGER DEFAULT 0,
    updated INTEGER DEFAULT 0,
    summary_markdown TEXT NOT NULL
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
