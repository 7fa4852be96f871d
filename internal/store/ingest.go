package store

import (
	"database/sql"
	"fmt"
	"time"
)

// IngestRun audits one upstream fetch: a weather provider for a location,
// a solar wind link or a geomagnetic index.
type IngestRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "met", "swpc_products_2h", "hpo", ...
	Endpoint          string // "locationforecast/compact", "solar-wind/mag+plasma", ...
	LocationID        sql.NullString
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	ParseErrors       sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// Duration is zero until the run is completed.
func (r IngestRun) Duration() time.Duration {
	if !r.FinishedAt.Valid {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt)
}

const runColumns = `id, started_at, finished_at, source, endpoint, location_id,
	http_status, response_size_bytes, records_parsed, records_stored,
	parse_errors, success, error_message`

func scanRun(row interface{ Scan(...any) error }) (IngestRun, error) {
	var r IngestRun
	err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint, &r.LocationID,
		&r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed, &r.RecordsStored,
		&r.ParseErrors, &r.Success, &r.ErrorMessage)
	return r, err
}

// StartIngestRun records that a fetch has begun. locationID is nil for
// global feeds such as solar wind and the indices.
func (s *Store) StartIngestRun(source, endpoint string, locationID *string) (*IngestRun, error) {
	run := &IngestRun{StartedAt: time.Now().UTC(), Source: source, Endpoint: endpoint}
	if locationID != nil {
		run.LocationID = sql.NullString{String: *locationID, Valid: true}
	}

	err := s.db.QueryRow(`
		INSERT INTO ingest_runs (started_at, source, endpoint, location_id, success)
		VALUES (?, ?, ?, ?, FALSE)
		RETURNING id
	`, run.StartedAt, run.Source, run.Endpoint, run.LocationID).Scan(&run.ID)
	if err != nil {
		return nil, fmt.Errorf("start ingest run %s: %w", source, err)
	}
	return run, nil
}

// CompleteIngestRun stamps the finish time and writes the audit fields.
// A nil run is ignored so callers can pass through a failed start.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs
		SET finished_at = ?, http_status = ?, response_size_bytes = ?,
			records_parsed = ?, records_stored = ?, parse_errors = ?,
			success = ?, error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes,
		run.RecordsParsed, run.RecordsStored, run.ParseErrors,
		run.Success, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("complete ingest run %d: %w", run.ID, err)
	}
	return nil
}

// IngestHealthSummary rolls up one day of runs for a source, endpoint and
// location. Location is empty for global feeds.
type IngestHealthSummary struct {
	Date             string `json:"date"`
	Source           string `json:"source"`
	Endpoint         string `json:"endpoint"`
	Location         string `json:"location,omitempty"`
	TotalRuns        int    `json:"totalRuns"`
	SuccessRuns      int    `json:"successRuns"`
	FailedRuns       int    `json:"failedRuns"`
	TotalRecords     int64  `json:"totalRecords"`
	TotalParseErrors int64  `json:"totalParseErrors"`
}

func (s *Store) GetIngestHealth(days int) ([]IngestHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) AS day,
			source,
			endpoint,
			COALESCE(location_id, '') AS location,
			COUNT(*),
			SUM(CASE WHEN success THEN 1 ELSE 0 END),
			SUM(CASE WHEN success THEN 0 ELSE 1 END),
			COALESCE(SUM(records_stored), 0),
			COALESCE(SUM(parse_errors), 0)
		FROM ingest_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY day, source, endpoint, location
		ORDER BY day DESC, source, endpoint, location
	`, days)
	if err != nil {
		return nil, fmt.Errorf("query ingest health: %w", err)
	}
	defer rows.Close()

	var out []IngestHealthSummary
	for rows.Next() {
		var h IngestHealthSummary
		if err := rows.Scan(&h.Date, &h.Source, &h.Endpoint, &h.Location, &h.TotalRuns,
			&h.SuccessRuns, &h.FailedRuns, &h.TotalRecords, &h.TotalParseErrors); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetRecentIngestErrors returns the newest failed runs first.
func (s *Store) GetRecentIngestErrors(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM ingest_runs
		WHERE NOT success
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest errors: %w", err)
	}
	defer rows.Close()

	var out []IngestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SourceStatus is the latest outcome seen for one source.
type SourceStatus struct {
	Source        string     `json:"source"`
	LastSuccessAt *time.Time `json:"lastSuccessAt"`
	LastFailureAt *time.Time `json:"lastFailureAt"`
	LastError     string     `json:"lastError,omitempty"`
}

// GetSourceStatuses reports, per source, when it last succeeded and last
// failed. A source whose last failure is newer than its last success is
// currently down.
func (s *Store) GetSourceStatuses() ([]SourceStatus, error) {
	rows, err := s.db.Query(`
		SELECT
			r.source,
			MAX(CASE WHEN r.success THEN SUBSTR(r.started_at, 1, 19) END),
			MAX(CASE WHEN NOT r.success THEN SUBSTR(r.started_at, 1, 19) END),
			COALESCE((
				SELECT e.error_message FROM ingest_runs e
				WHERE e.source = r.source AND NOT e.success
				ORDER BY e.started_at DESC, e.id DESC LIMIT 1
			), '')
		FROM ingest_runs r
		GROUP BY r.source
		ORDER BY r.source
	`)
	if err != nil {
		return nil, fmt.Errorf("query source status: %w", err)
	}
	defer rows.Close()

	var out []SourceStatus
	for rows.Next() {
		var st SourceStatus
		var ok, failed sql.NullString
		if err := rows.Scan(&st.Source, &ok, &failed, &st.LastError); err != nil {
			return nil, err
		}
		st.LastSuccessAt = parseStamp(ok)
		st.LastFailureAt = parseStamp(failed)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Down reports whether the latest run for the source failed.
func (st SourceStatus) Down() bool {
	if st.LastFailureAt == nil {
		return false
	}
	return st.LastSuccessAt == nil || st.LastFailureAt.After(*st.LastSuccessAt)
}

func parseStamp(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v.String); err == nil {
			return &t
		}
	}
	return nil
}
