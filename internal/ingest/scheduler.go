package ingest

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/lox/aurorawatch/internal/consensus"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/metrics"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/store"
)

const (
	retentionSpec      = "15 3 * * *"
	payloadRetention   = 30 * 24 * time.Hour
	solarWindRetention = 7 * 24 * time.Hour
)

type Scheduler struct {
	store           *store.Store
	indices         *IndexSet
	weather         *WeatherSet
	blender         *geomagnetic.Blender
	consensus       consensus.Options
	clock           clockwork.Clock
	geoInterval     time.Duration
	weatherInterval time.Duration
	log             *slog.Logger
}

func NewScheduler(st *store.Store, indices *IndexSet, weather *WeatherSet, blender *geomagnetic.Blender, opts consensus.Options, clock clockwork.Clock, log *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:           st,
		indices:         indices,
		weather:         weather,
		blender:         blender,
		consensus:       opts,
		clock:           clock,
		geoInterval:     10 * time.Minute,
		weatherInterval: 30 * time.Minute,
		log:             log.With("component", "scheduler"),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.RefreshOnce(ctx)

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(retentionSpec, s.RunRetention); err != nil {
		s.log.Error("schedule retention", "error", err)
	}
	c.Start()
	defer c.Stop()

	geoTicker := s.clock.NewTicker(s.geoInterval)
	weatherTicker := s.clock.NewTicker(s.weatherInterval)
	defer geoTicker.Stop()
	defer weatherTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting down")
			return
		case <-geoTicker.Chan():
			if _, err := s.RefreshGeomagnetic(ctx); err != nil {
				s.log.Warn("geomagnetic refresh", "error", err)
			}
		case <-weatherTicker.Chan():
			s.RefreshWeather(ctx)
		}
	}
}

// RefreshOnce runs one geomagnetic and one weather cycle.
func (s *Scheduler) RefreshOnce(ctx context.Context) *models.BlendedGeomagnetic {
	blend, err := s.RefreshGeomagnetic(ctx)
	if err != nil {
		s.log.Warn("geomagnetic refresh", "error", err)
	}
	s.RefreshWeather(ctx)
	return blend
}

// RefreshGeomagnetic fetches solar wind and index sources, stores what
// arrived and replaces the memoised blend. A nil blend means no source
// answered.
func (s *Scheduler) RefreshGeomagnetic(ctx context.Context) (*models.BlendedGeomagnetic, error) {
	s.log.Info("refreshing geomagnetic inputs")
	coll := s.indices.Collect(ctx)

	if sw := coll.SolarWind; sw != nil {
		run := s.startRun(sw.Source, "solar-wind/mag+plasma", nil)
		stored, err := s.store.UpsertSolarWind(sw.Samples)
		if err != nil {
			s.log.Error("store solar wind", "error", err)
		} else {
			metrics.SamplesIngested.WithLabelValues("solarwind").Add(float64(stored))
		}
		s.finishRun(run, sw.Fetch, err, stored)
	} else if coll.SolarWindErr != nil {
		run := s.startRun("solarwind", "solar-wind/chain", nil)
		s.finishRun(run, nil, coll.SolarWindErr, 0)
	}

	for _, f := range coll.Indices {
		run := s.startRun(string(f.Kind), f.Endpoint, nil)
		stored := 0
		if f.Reading != nil {
			stored = 1
		}
		s.finishRun(run, f.Result, f.Err, stored)
	}

	blend := s.blender.Blend(coll.Sources)
	if blend == nil {
		return nil, errors.New("no geomagnetic source available")
	}
	if err := s.store.InsertGeomagneticSnapshot(s.clock.Now(), blend); err != nil {
		s.log.Error("store geomagnetic snapshot", "error", err)
	}
	s.blender.Invalidate()
	s.blender.Prime(blend)

	metrics.GeomagneticScore.Set(blend.GlobalScore10)
	metrics.GeomagneticStaleHours.Set(blend.StaleHours)
	s.log.Info("geomagnetic refreshed",
		"score10", blend.GlobalScore10,
		"kp_proxy", blend.KpProxy,
		"parts", len(blend.Detail.Parts),
		"stale", blend.StaleStatus,
	)
	return blend, nil
}

// RefreshWeather fetches cloud cover for every active location and stores
// the consensus rows.
func (s *Scheduler) RefreshWeather(ctx context.Context) {
	if s.weather == nil {
		return
	}
	locs, err := s.store.GetActiveLocations()
	if err != nil {
		s.log.Error("load locations", "error", err)
		return
	}
	for _, loc := range locs {
		if ctx.Err() != nil {
			return
		}
		s.refreshLocation(ctx, loc)
	}
}

func (s *Scheduler) refreshLocation(ctx context.Context, loc models.Location) {
	id := loc.ID
	samples := make(map[string][]models.HourlyCloudSample)
	for _, f := range s.weather.FetchEach(ctx, loc.Latitude, loc.Longitude) {
		run := s.startRun(f.Provider, f.Endpoint, &id)
		s.finishRun(run, f.Result, f.Err, len(f.Samples))
		if f.Err != nil {
			s.log.Warn("weather provider failed", "provider", f.Provider, "location", id, "error", f.Err)
			continue
		}
		samples[f.Provider] = f.Samples
		metrics.SamplesIngested.WithLabelValues(f.Provider).Add(float64(len(f.Samples)))
	}
	if len(samples) == 0 {
		return
	}

	rows := consensus.Compute(samples, s.consensus)
	stored, err := s.store.UpsertConsensus(id, rows)
	if err != nil {
		s.log.Error("store consensus", "location", id, "error", err)
		return
	}
	s.log.Info("weather refreshed", "location", id, "providers", len(samples), "hours", stored)
}

// RunRetention prunes old raw payloads and solar wind samples.
func (s *Scheduler) RunRetention() {
	now := s.clock.Now()
	payloads, err := s.store.CleanupOldRawPayloads(now.Add(-payloadRetention))
	if err != nil {
		s.log.Error("cleanup raw payloads", "error", err)
	}
	samples, err := s.store.PruneSolarWind(now.Add(-solarWindRetention))
	if err != nil {
		s.log.Error("prune solar wind", "error", err)
	}
	s.log.Info("retention complete", "raw_payloads", payloads, "solar_wind", samples)
}

func (s *Scheduler) startRun(source, endpoint string, locationID *string) *store.IngestRun {
	run, err := s.store.StartIngestRun(source, endpoint, locationID)
	if err != nil {
		s.log.Error("start ingest run", "source", source, "error", err)
		return nil
	}
	return run
}

// finishRun fills in the audit fields and stores the raw payload, if any.
func (s *Scheduler) finishRun(run *store.IngestRun, res *FetchResult, fetchErr error, stored int) {
	if run == nil {
		return
	}
	run.Success = fetchErr == nil
	if res != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(res.HTTPStatus), Valid: res.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(res.ResponseSize), Valid: res.ResponseSize > 0}
		run.RecordsParsed = sql.NullInt64{Int64: int64(res.RecordCount), Valid: true}
		if res.ParseErrors > 0 {
			run.ParseErrors = sql.NullInt64{Int64: int64(res.ParseErrors), Valid: true}
			run.ErrorMessage = sql.NullString{String: res.ParseError, Valid: true}
			s.log.Warn("parse errors", "source", run.Source, "detail", res.ParseError)
		}
		if len(res.Raw) > 0 {
			var loc *string
			if run.LocationID.Valid {
				loc = &run.LocationID.String
			}
			if _, err := s.store.StoreRawPayload(&run.ID, run.Source, run.Endpoint, loc, res.Raw); err != nil {
				s.log.Error("store raw payload", "source", run.Source, "error", err)
			}
		}
	}
	if fetchErr != nil {
		run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
	} else {
		run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	}
	if err := s.store.CompleteIngestRun(run); err != nil {
		s.log.Error("complete ingest run", "source", run.Source, "error", err)
	}
}
