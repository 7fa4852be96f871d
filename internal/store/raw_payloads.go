package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(b); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// StoreRawPayload keeps the provider response behind an ingest run so
// parsers can be replayed against it. Identical bodies are stored once;
// the returned id is 0 for a duplicate.
func (s *Store) StoreRawPayload(runID *int64, source, endpoint string, locationID *string, payload []byte) (int64, error) {
	compressed, err := gzipBytes(payload)
	if err != nil {
		return 0, err
	}
	sum := sha256.Sum256(payload)

	var run sql.NullInt64
	if runID != nil {
		run = sql.NullInt64{Int64: *runID, Valid: true}
	}
	var loc sql.NullString
	if locationID != nil {
		loc = sql.NullString{String: *locationID, Valid: true}
	}

	var id int64
	err = s.db.QueryRow(`
		INSERT INTO raw_payloads
			(ingest_run_id, fetched_at, source, endpoint, location_id, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
		RETURNING id
	`, run, time.Now().UTC(), source, endpoint, loc, compressed, hex.EncodeToString(sum[:])).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}
	return id, nil
}

func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	if err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).Scan(&compressed); err != nil {
		return nil, err
	}
	return gunzipBytes(compressed)
}

// GetLatestRawPayload returns the newest stored body for a source, or nil
// when none is stored.
func (s *Store) GetLatestRawPayload(source string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT payload_compressed FROM raw_payloads
		WHERE source = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, source).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return gunzipBytes(compressed)
}

// RawPayloadStats describes what the payload archive holds. Sizes are
// compressed bytes.
type RawPayloadStats struct {
	TotalCount      int              `json:"totalCount"`
	TotalSizeBytes  int64            `json:"totalSizeBytes"`
	OldestFetchedAt time.Time        `json:"oldestFetchedAt"`
	NewestFetchedAt time.Time        `json:"newestFetchedAt"`
	CountBySource   map[string]int   `json:"countBySource"`
	SizeBySource    map[string]int64 `json:"sizeBySource"`
}

func (s *Store) GetRawPayloadStats() (*RawPayloadStats, error) {
	stats := &RawPayloadStats{
		CountBySource: make(map[string]int),
		SizeBySource:  make(map[string]int64),
	}

	rows, err := s.db.Query(`
		SELECT source, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM raw_payloads
		GROUP BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("query payload stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		var size int64
		if err := rows.Scan(&source, &n, &size); err != nil {
			return nil, err
		}
		stats.CountBySource[source] = n
		stats.SizeBySource[source] = size
		stats.TotalCount += n
		stats.TotalSizeBytes += size
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalCount == 0 {
		return stats, nil
	}

	for _, q := range []struct {
		order string
		dst   *time.Time
	}{{"ASC", &stats.OldestFetchedAt}, {"DESC", &stats.NewestFetchedAt}} {
		if err := s.db.QueryRow(`SELECT fetched_at FROM raw_payloads ORDER BY fetched_at ` + q.order + ` LIMIT 1`).Scan(q.dst); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// CleanupOldRawPayloads deletes payloads fetched before cutoff and returns
// how many went.
func (s *Store) CleanupOldRawPayloads(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup raw payloads: %w", err)
	}
	return res.RowsAffected()
}
