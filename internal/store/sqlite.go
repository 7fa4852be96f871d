package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/aurorawatch/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertLocation(l models.Location) error {
	_, err := s.db.Exec(`
		INSERT INTO locations (location_id, name, latitude, longitude, zone_key, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			zone_key = excluded.zone_key,
			active = excluded.active
	`, l.ID, l.Name, l.Latitude, l.Longitude, nullString(l.ZoneKey), l.Active)
	return err
}

func (s *Store) GetActiveLocations() ([]models.Location, error) {
	rows, err := s.db.Query(`SELECT location_id, name, latitude, longitude, zone_key, active FROM locations WHERE active = TRUE ORDER BY location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var l models.Location
		var zone sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &zone, &l.Active); err != nil {
			return nil, err
		}
		l.ZoneKey = zone.String
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// GetLocation returns the location with the given id, or nil if none exists.
func (s *Store) GetLocation(id string) (*models.Location, error) {
	var l models.Location
	var zone sql.NullString
	err := s.db.QueryRow(`SELECT location_id, name, latitude, longitude, zone_key, active FROM locations WHERE location_id = ?`, id).
		Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &zone, &l.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.ZoneKey = zone.String
	return &l, nil
}

// UpsertSolarWind stores samples keyed by time tag, replacing earlier
// readings for the same instant. It returns the number of rows written.
func (s *Store) UpsertSolarWind(samples []models.SolarWindSample) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO solar_wind (time_tag, bt, bz, by_gsm, bx_gsm, speed, density, suspect, source, quality_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(time_tag) DO UPDATE SET
			bt = excluded.bt,
			bz = excluded.bz,
			by_gsm = excluded.by_gsm,
			bx_gsm = excluded.bx_gsm,
			speed = excluded.speed,
			density = excluded.density,
			suspect = excluded.suspect,
			source = excluded.source,
			quality_flags = excluded.quality_flags
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, sw := range samples {
		flags := ""
		if len(sw.Flags) > 0 {
			b, _ := json.Marshal(sw.Flags)
			flags = string(b)
		}
		if _, err := stmt.Exec(sw.Time.UTC(), nullFloat(sw.Bt), nullFloat(sw.Bz), nullFloat(sw.By), nullFloat(sw.Bx),
			nullFloat(sw.Speed), nullFloat(sw.Density), sw.Suspect, nullString(sw.Source), nullString(flags)); err != nil {
			return n, fmt.Errorf("upsert solar wind %s: %w", sw.Time.Format(time.RFC3339), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// GetSolarWindSince returns samples at or after since, oldest first.
func (s *Store) GetSolarWindSince(since time.Time) ([]models.SolarWindSample, error) {
	rows, err := s.db.Query(`
		SELECT time_tag, bt, bz, by_gsm, bx_gsm, speed, density, suspect, source, quality_flags
		FROM solar_wind
		WHERE time_tag >= ?
		ORDER BY time_tag ASC
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SolarWindSample
	for rows.Next() {
		var sw models.SolarWindSample
		var bt, bz, by, bx, speed, density sql.NullFloat64
		var source, flags sql.NullString
		if err := rows.Scan(&sw.Time, &bt, &bz, &by, &bx, &speed, &density, &sw.Suspect, &source, &flags); err != nil {
			return nil, err
		}
		sw.Time = sw.Time.UTC()
		sw.Bt, sw.Bz, sw.By, sw.Bx = floatPtr(bt), floatPtr(bz), floatPtr(by), floatPtr(bx)
		sw.Speed, sw.Density = floatPtr(speed), floatPtr(density)
		sw.Source = source.String
		if flags.Valid && flags.String != "" {
			if err := json.Unmarshal([]byte(flags.String), &sw.Flags); err != nil {
				return nil, fmt.Errorf("decode quality flags: %w", err)
			}
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// PruneSolarWind deletes samples older than cutoff.
func (s *Store) PruneSolarWind(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM solar_wind WHERE time_tag < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// InsertGeomagneticSnapshot appends a blended geomagnetic result.
func (s *Store) InsertGeomagneticSnapshot(computedAt time.Time, b *models.BlendedGeomagnetic) error {
	if b == nil {
		return nil
	}
	detail, err := json.Marshal(b.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO geomagnetic_now (computed_at, time_tag, global_score10, kp_proxy, stale_hours, stale_status, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, computedAt.UTC(), b.TimeTag.UTC(), b.GlobalScore10, b.KpProxy, b.StaleHours, string(b.StaleStatus), string(detail))
	return err
}

// LatestGeomagnetic returns the most recently computed snapshot, or nil.
func (s *Store) LatestGeomagnetic() (*models.BlendedGeomagnetic, error) {
	var b models.BlendedGeomagnetic
	var status string
	var detail sql.NullString
	err := s.db.QueryRow(`
		SELECT time_tag, global_score10, kp_proxy, stale_hours, stale_status, detail_json
		FROM geomagnetic_now
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`).Scan(&b.TimeTag, &b.GlobalScore10, &b.KpProxy, &b.StaleHours, &status, &detail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.TimeTag = b.TimeTag.UTC()
	b.StaleStatus = models.StaleStatus(status)
	if detail.Valid && detail.String != "" {
		if err := json.Unmarshal([]byte(detail.String), &b.Detail); err != nil {
			return nil, fmt.Errorf("decode detail: %w", err)
		}
	}
	return &b, nil
}

// UpsertConsensus stores fused cloud rows for a location, keyed by hour.
func (s *Store) UpsertConsensus(locationID string, rows []models.ConsensusHourly) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO weather_hourly (location_id, hour_start, consensus_pct, method, per_source_json,
			spread_pct, disagreement_level, disagree, outlier_source, outlier_diff_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id, hour_start) DO UPDATE SET
			consensus_pct = excluded.consensus_pct,
			method = excluded.method,
			per_source_json = excluded.per_source_json,
			spread_pct = excluded.spread_pct,
			disagreement_level = excluded.disagreement_level,
			disagree = excluded.disagree,
			outlier_source = excluded.outlier_source,
			outlier_diff_pct = excluded.outlier_diff_pct,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	n := 0
	for _, r := range rows {
		perSource, err := json.Marshal(r.PerSource)
		if err != nil {
			return n, fmt.Errorf("marshal per-source: %w", err)
		}
		var outlier sql.NullString
		if r.OutlierSource != nil {
			outlier = sql.NullString{String: *r.OutlierSource, Valid: true}
		}
		if _, err := stmt.Exec(locationID, r.Time.UTC(), nullFloat(r.ConsensusPct), string(r.Method), string(perSource),
			nullFloat(r.SpreadPct), nullString(string(r.DisagreementLevel)), r.Disagree, outlier,
			nullFloat(r.OutlierDiffPct), now); err != nil {
			return n, fmt.Errorf("upsert weather hour %s: %w", r.Time.Format(time.RFC3339), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// GetConsensus returns stored rows for a location with hour in [from, to).
func (s *Store) GetConsensus(locationID string, from, to time.Time) ([]models.ConsensusHourly, error) {
	rows, err := s.db.Query(`
		SELECT hour_start, consensus_pct, method, per_source_json, spread_pct,
			disagreement_level, disagree, outlier_source, outlier_diff_pct
		FROM weather_hourly
		WHERE location_id = ? AND hour_start >= ? AND hour_start < ?
		ORDER BY hour_start ASC
	`, locationID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConsensusHourly
	for rows.Next() {
		var r models.ConsensusHourly
		var pct, spread, diff sql.NullFloat64
		var method string
		var perSource, level, outlier sql.NullString
		if err := rows.Scan(&r.Time, &pct, &method, &perSource, &spread, &level, &r.Disagree, &outlier, &diff); err != nil {
			return nil, err
		}
		r.Time = r.Time.UTC()
		r.ConsensusPct = floatPtr(pct)
		r.Method = models.ConsensusMethod(method)
		r.SpreadPct = floatPtr(spread)
		r.DisagreementLevel = models.DisagreementLevel(level.String)
		r.OutlierDiffPct = floatPtr(diff)
		if outlier.Valid {
			r.OutlierSource = models.Ptr(outlier.String)
		}
		r.PerSource = map[string]*float64{}
		if perSource.Valid && perSource.String != "" {
			if err := json.Unmarshal([]byte(perSource.String), &r.PerSource); err != nil {
				return nil, fmt.Errorf("decode per-source: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return models.Ptr(n.Float64)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
