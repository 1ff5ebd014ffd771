package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stlgis/stl311/internal/process"
)

// dbTimeLayout is how timestamps are stored in the table.
const dbTimeLayout = "2006-01-02 15:04:05"

// StoredRequest is one SERVICE_REQUESTS row. Date columns carry the
// store's text representation.
type StoredRequest struct {
	ObjectID  int64
	RequestID string
	SRX       float64
	SRY       float64
	Geometry  string

	DateTimeInit    *string
	DateTimeClosed  *string
	PrjCompleteDate *string
	DateInvtDone    *string
	DateCancelled   *string

	Description *string
	ProblemCode *string
	ProbAddress *string
	SubmitTo    *string
	Status      *string
	Explanation *string
	CallerType  *string
	Group       *string
	ProbAddType *string
	ProbCity    *string

	Neighborhood *int64
	Ward         *int64
	ProbZip      *int64

	PlainEnglishName *string
	UpdatedAt        string
}

// pointGeometry renders a GeoJSON point for the store's geometry column.
func pointGeometry(x, y float64) string {
	return fmt.Sprintf(`{"type":"Point","coordinates":[%g,%g]}`, x, y)
}

// ExistingRequestIDs returns the set of request ids currently in the store.
func (db *DB) ExistingRequestIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query("SELECT REQUESTID FROM SERVICE_REQUESTS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// InsertRequest appends a new row with geometry built from (SRX, SRY).
func (db *DB) InsertRequest(rec process.ServiceRequest) error {
	_, err := db.conn.Exec(`
		INSERT INTO SERVICE_REQUESTS (
			REQUESTID, SRX, SRY, GEOMETRY,
			DATETIMEINIT, DATETIMECLOSED, PRJCOMPLETEDATE, DATEINVTDONE, DATECANCELLED,
			DESCRIPTION, PROBLEMCODE, PROBADDRESS, SUBMITTO, STATUS, EXPLANATION,
			CALLERTYPE, GROUP_, PROBADDTYPE, PROBCITY,
			NEIGHBORHOOD, WARD, PROBZIP, PLAIN_ENGLISH_NAME_FOR_PROBLEMCODE
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.SRX, rec.SRY, pointGeometry(rec.SRX, rec.SRY),
		fmtTime(rec.DateTimeInit), fmtTime(rec.DateTimeClosed), fmtTime(rec.PrjCompleteDate),
		fmtTime(rec.DateInvtDone), fmtTime(rec.DateCancelled),
		rec.Description, rec.ProblemCode, rec.ProbAddress, rec.SubmitTo, rec.Status, rec.Explanation,
		rec.CallerType, rec.Group, rec.ProbAddType, rec.ProbCity,
		rec.Neighborhood, rec.Ward, rec.ProbZip, rec.PlainEnglishName,
	)
	return err
}

// UpdateRequest overwrites the attribute columns of the row sharing the
// record's request id. GEOMETRY is left as inserted; coordinates changing
// after the fact do not move the stored point.
func (db *DB) UpdateRequest(rec process.ServiceRequest) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE SERVICE_REQUESTS SET
			SRX = ?, SRY = ?,
			DATETIMEINIT = ?, DATETIMECLOSED = ?, PRJCOMPLETEDATE = ?, DATEINVTDONE = ?, DATECANCELLED = ?,
			DESCRIPTION = ?, PROBLEMCODE = ?, PROBADDRESS = ?, SUBMITTO = ?, STATUS = ?, EXPLANATION = ?,
			CALLERTYPE = ?, GROUP_ = ?, PROBADDTYPE = ?, PROBCITY = ?,
			NEIGHBORHOOD = ?, WARD = ?, PROBZIP = ?, PLAIN_ENGLISH_NAME_FOR_PROBLEMCODE = ?,
			UPDATED_AT = datetime('now')
		WHERE REQUESTID = ?`,
		rec.SRX, rec.SRY,
		fmtTime(rec.DateTimeInit), fmtTime(rec.DateTimeClosed), fmtTime(rec.PrjCompleteDate),
		fmtTime(rec.DateInvtDone), fmtTime(rec.DateCancelled),
		rec.Description, rec.ProblemCode, rec.ProbAddress, rec.SubmitTo, rec.Status, rec.Explanation,
		rec.CallerType, rec.Group, rec.ProbAddType, rec.ProbCity,
		rec.Neighborhood, rec.Ward, rec.ProbZip, rec.PlainEnglishName,
		rec.RequestID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of stored service requests.
func (db *DB) Count() (int64, error) {
	var n int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM SERVICE_REQUESTS").Scan(&n)
	return n, err
}

const requestColumns = `OBJECTID, REQUESTID, SRX, SRY, GEOMETRY,
	DATETIMEINIT, DATETIMECLOSED, PRJCOMPLETEDATE, DATEINVTDONE, DATECANCELLED,
	DESCRIPTION, PROBLEMCODE, PROBADDRESS, SUBMITTO, STATUS, EXPLANATION,
	CALLERTYPE, GROUP_, PROBADDTYPE, PROBCITY,
	NEIGHBORHOOD, WARD, PROBZIP, PLAIN_ENGLISH_NAME_FOR_PROBLEMCODE, UPDATED_AT`

// AllRequests returns every stored row, oldest first.
func (db *DB) AllRequests() ([]StoredRequest, error) {
	rows, err := db.conn.Query(
		"SELECT " + requestColumns + " FROM SERVICE_REQUESTS ORDER BY OBJECTID")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// RecentRequests returns the most recently touched rows for display.
func (db *DB) RecentRequests(limit int) ([]StoredRequest, error) {
	rows, err := db.conn.Query(
		"SELECT "+requestColumns+" FROM SERVICE_REQUESTS ORDER BY UPDATED_AT DESC, OBJECTID DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// GetRequest returns a single row by request id, or nil when absent.
func (db *DB) GetRequest(requestID string) (*StoredRequest, error) {
	row := db.conn.QueryRow(
		"SELECT "+requestColumns+" FROM SERVICE_REQUESTS WHERE REQUESTID = ?", requestID)
	rec, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*StoredRequest, error) {
	var r StoredRequest
	err := s.Scan(
		&r.ObjectID, &r.RequestID, &r.SRX, &r.SRY, &r.Geometry,
		&r.DateTimeInit, &r.DateTimeClosed, &r.PrjCompleteDate, &r.DateInvtDone, &r.DateCancelled,
		&r.Description, &r.ProblemCode, &r.ProbAddress, &r.SubmitTo, &r.Status, &r.Explanation,
		&r.CallerType, &r.Group, &r.ProbAddType, &r.ProbCity,
		&r.Neighborhood, &r.Ward, &r.ProbZip, &r.PlainEnglishName, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRequests(rows *sql.Rows) ([]StoredRequest, error) {
	var out []StoredRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func fmtTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dbTimeLayout)
	return &s
}

// ParseDBTime parses a timestamp in the store's text representation.
func ParseDBTime(s string) (time.Time, error) {
	return time.Parse(dbTimeLayout, s)
}
