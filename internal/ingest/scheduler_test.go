package ingest

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/aurorawatch/internal/cache"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/consensus"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/store"
)

type stubIndex struct {
	kind    models.IndexKind
	reading *geomagnetic.Reading
	err     error
}

func (s stubIndex) Kind() models.IndexKind { return s.kind }
func (s stubIndex) Endpoint() string       { return "stub/" + string(s.kind) }
func (s stubIndex) Fetch(context.Context) (*geomagnetic.Reading, *FetchResult, error) {
	if s.err != nil {
		return nil, &FetchResult{HTTPStatus: http.StatusBadGateway}, s.err
	}
	return s.reading, &FetchResult{HTTPStatus: http.StatusOK, RecordCount: 1, Raw: []byte(`{"stub":true}`)}, nil
}

func setupSchedulerStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	require.NoError(t, st.Migrate())
	return st
}

func TestIndexSet_CollectIsBestEffort(t *testing.T) {
	cfg := config.Default()
	srv := swpcServer(t, map[string]string{
		"/products/solar-wind/mag-2-hour.json":    magProducts,
		"/products/solar-wind/plasma-2-hour.json": plasmaProducts,
	})
	chain := NewSolarWindChain(cfg.SolarWind, newTestFetcher(), srv.URL, nil)

	set := NewIndexSet(chain, cfg.Geomagnetic, nil,
		stubIndex{kind: models.IndexHPO, reading: &geomagnetic.Reading{Value: 5, Time: indexNow}},
		stubIndex{kind: models.IndexKp, err: errors.New("kp down")},
		stubIndex{kind: models.IndexAE, reading: &geomagnetic.Reading{Value: 300, Time: indexNow}},
	)

	coll := set.Collect(context.Background())
	require.NotNil(t, coll.SolarWind)
	require.Len(t, coll.Indices, 3)
	assert.Error(t, coll.Indices[1].Err)

	src := coll.Sources
	require.NotNil(t, src.SolarWind)
	assert.Equal(t, 2, src.SolarWind.Window.Count)
	require.NotNil(t, src.HPO)
	assert.Equal(t, 5.0, src.HPO.Value)
	assert.Nil(t, src.Kp)
	require.NotNil(t, src.AE)
	assert.Nil(t, src.HemiPower)

	loaded, err := set.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, loaded.HPO)
}

func TestIndexSet_ScoresStoredSolarWindWithoutLiveLink(t *testing.T) {
	cfg := config.Default()
	st := setupSchedulerStore(t)
	var archived []models.SolarWindSample
	for i := 8; i >= 1; i-- {
		archived = append(archived, models.SolarWindSample{
			Time:    indexNow.Add(-time.Duration(i) * time.Hour),
			Bt:      models.Ptr(12.0),
			Bz:      models.Ptr(-8.0),
			Speed:   models.Ptr(600.0),
			Density: models.Ptr(5.0),
			Source:  "swpc_products_2h",
		})
	}
	_, err := st.UpsertSolarWind(archived)
	require.NoError(t, err)

	set := NewIndexSet(nil, cfg.Geomagnetic, nil).WithHistory(st, clockwork.NewFakeClockAt(indexNow))
	coll := set.Collect(context.Background())

	// only the samples inside the lookback are scored
	assert.Equal(t, 6, coll.StoredSolarWind)
	require.NotNil(t, coll.Sources.SolarWind)
	assert.Greater(t, coll.Sources.SolarWind.Score, 0.0)
	require.NotNil(t, coll.Sources.SolarWind.Window.To)
	assert.True(t, coll.Sources.SolarWind.Window.To.Equal(indexNow.Add(-time.Hour)))
}

func TestIndexSet_NoStoredSolarWind(t *testing.T) {
	cfg := config.Default()
	set := NewIndexSet(nil, cfg.Geomagnetic, nil).WithHistory(setupSchedulerStore(t), clockwork.NewFakeClockAt(indexNow))
	coll := set.Collect(context.Background())
	assert.Zero(t, coll.StoredSolarWind)
	assert.Nil(t, coll.Sources.SolarWind)
}

func newTestScheduler(t *testing.T, st *store.Store, weather *WeatherSet, sources ...IndexSource) (*Scheduler, *geomagnetic.Blender, *clockwork.FakeClock) {
	t.Helper()
	cfg := config.Default()
	clock := clockwork.NewFakeClockAt(indexNow)
	memo := cache.NewMemo[*models.BlendedGeomagnetic](10*time.Minute, clock)
	blender := geomagnetic.NewBlender(cfg.Geomagnetic, cfg.SolarWind.StaleHours, clock, memo)
	set := NewIndexSet(nil, cfg.Geomagnetic, nil, sources...)
	return NewScheduler(st, set, weather, blender, consensus.OptionsFromConfig(cfg.Weather.Consensus), clock, nil), blender, clock
}

func TestScheduler_RefreshGeomagnetic(t *testing.T) {
	st := setupSchedulerStore(t)
	s, blender, _ := newTestScheduler(t, st, nil,
		stubIndex{kind: models.IndexHPO, reading: &geomagnetic.Reading{Value: 4.5, Time: indexNow}},
		stubIndex{kind: models.IndexKp, err: errors.New("kp down")},
	)

	blend, err := s.RefreshGeomagnetic(context.Background())
	require.NoError(t, err)
	require.NotNil(t, blend)
	assert.InDelta(t, 5.0, blend.GlobalScore10, 1e-9)

	latest, err := st.LatestGeomagnetic()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, blend.GlobalScore10, latest.GlobalScore10, 1e-9)

	// the memo now serves the fresh blend without loading
	got, err := blender.Current(context.Background(), func(context.Context) (geomagnetic.Sources, error) {
		t.Fatal("load should not be called")
		return geomagnetic.Sources{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, blend, got)

	health, err := st.GetIngestHealth(1)
	require.NoError(t, err)
	bySource := map[string]store.IngestHealthSummary{}
	for _, h := range health {
		bySource[h.Source] = h
	}
	assert.Equal(t, 1, bySource["hpo"].SuccessRuns)
	assert.Equal(t, 1, bySource["kp"].FailedRuns)

	stats, err := st.GetRawPayloadStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCount)
}

func TestScheduler_RefreshGeomagneticNoSources(t *testing.T) {
	st := setupSchedulerStore(t)
	s, _, _ := newTestScheduler(t, st, nil, stubIndex{kind: models.IndexHPO, err: errors.New("down")})

	blend, err := s.RefreshGeomagnetic(context.Background())
	assert.Error(t, err)
	assert.Nil(t, blend)

	latest, err := st.LatestGeomagnetic()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestScheduler_RefreshWeatherStoresConsensus(t *testing.T) {
	st := setupSchedulerStore(t)
	require.NoError(t, st.UpsertLocation(models.Location{ID: "umea", Name: "Umeå", Latitude: 63.8258, Longitude: 20.263, Active: true}))

	srv := textServer(t, openMeteoBody, http.StatusOK)
	weather := NewWeatherSet(nil, NewOpenMeteo(newTestFetcher(), nil, srv.URL))
	s, _, _ := newTestScheduler(t, st, weather)

	s.RefreshWeather(context.Background())

	rows, err := st.GetConsensus("umea",
		time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ConsensusPct)
	assert.Equal(t, 100.0, *rows[0].ConsensusPct)
}

func TestScheduler_RunRetention(t *testing.T) {
	st := setupSchedulerStore(t)
	s, _, _ := newTestScheduler(t, st, nil)

	old := indexNow.Add(-10 * 24 * time.Hour)
	recent := indexNow.Add(-time.Hour)
	_, err := st.UpsertSolarWind([]models.SolarWindSample{
		{Time: old, Speed: models.Ptr(400.0), Source: SourceProducts2h},
		{Time: recent, Speed: models.Ptr(450.0), Source: SourceProducts2h},
	})
	require.NoError(t, err)

	s.RunRetention()

	kept, err := st.GetSolarWindSince(old.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.True(t, recent.Equal(kept[0].Time))
}
