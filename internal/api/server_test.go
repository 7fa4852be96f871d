package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/aurorawatch/internal/api"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/narrative"
	"github.com/lox/aurorawatch/internal/outlook"
	"github.com/lox/aurorawatch/internal/spots"
	"github.com/lox/aurorawatch/internal/store"
	"github.com/lox/aurorawatch/internal/window"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

type stubWeather map[string][]models.HourlyCloudSample

func (s stubWeather) FetchAll(context.Context, float64, float64) map[string][]models.HourlyCloudSample {
	return s
}

func clearSkies() stubWeather {
	var samples []models.HourlyCloudSample
	for i := 0; i < 48; i++ {
		samples = append(samples, models.HourlyCloudSample{
			Time:     testNow.Truncate(24 * time.Hour).Add(time.Duration(i) * time.Hour),
			Source:   "openmeteo",
			CloudPct: models.Ptr(10.0),
		})
	}
	return stubWeather{"openmeteo": samples}
}

type fixture struct {
	store  *store.Store
	server *api.Server
	clock  *clockwork.FakeClock
}

func setup(t *testing.T, load outlook.Loader) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	require.NoError(t, st.Migrate())

	cfg := config.Default()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(testNow)
	resolver := window.NewResolver(cfg.Window, window.FixedFinder{Loc: loc})
	blender := geomagnetic.NewBlender(cfg.Geomagnetic, cfg.SolarWind.StaleHours, clock, nil)
	engine := outlook.NewEngine(cfg, clearSkies(), blender, load, resolver, clock, nil)

	srv := api.NewServer(cfg, st, engine, resolver, "8080", clock, nil)
	return &fixture{store: st, server: srv, clock: clock}
}

func kpLoader(kp float64) outlook.Loader {
	return func(context.Context) (geomagnetic.Sources, error) {
		return geomagnetic.Sources{Kp: &geomagnetic.Reading{Value: kp, Time: testNow}}, nil
	}
}

func emptyLoader(context.Context) (geomagnetic.Sources, error) {
	return geomagnetic.Sources{}, nil
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func TestHealth_NoSnapshot(t *testing.T) {
	f := setup(t, emptyLoader)
	w, body := f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealth_FreshSnapshot(t *testing.T) {
	f := setup(t, emptyLoader)
	require.NoError(t, f.store.InsertGeomagneticSnapshot(testNow, &models.BlendedGeomagnetic{
		TimeTag:       testNow.Add(-30 * time.Minute),
		GlobalScore10: 4,
		KpProxy:       3.6,
		StaleStatus:   models.StaleFresh,
	}))

	w, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["schemaVersion"])
	geo := body["geomagnetic"].(map[string]any)
	assert.Equal(t, float64(30), geo["ageMinutes"])
	assert.Equal(t, "fresh", geo["staleStatus"])
}

func TestHealth_StaleSnapshot(t *testing.T) {
	f := setup(t, emptyLoader)
	require.NoError(t, f.store.InsertGeomagneticSnapshot(testNow, &models.BlendedGeomagnetic{
		TimeTag: testNow.Add(-2 * time.Hour),
	}))
	f.clock.Advance(20 * time.Hour)

	w, body := f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestTonight(t *testing.T) {
	f := setup(t, kpLoader(5))
	w, body := f.get(t, "/api/tonight?lat=63.8258&lon=20.263")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Europe/Stockholm", body["timezone"])
	assert.NotEmpty(t, body["hours"])
	assert.NotNil(t, body["best"])
	assert.Nil(t, body["summary"])
}

func TestTonight_WithSummary(t *testing.T) {
	f := setup(t, kpLoader(5))
	f.server.WithNarrator(narrative.New("", f.clock, nil))

	w, body := f.get(t, "/api/tonight?lat=63.8258&lon=20.263&date=2025-01-20&summary=1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := body["summary"].(map[string]any)
	assert.Equal(t, narrative.SourceTemplate, summary["source"])
	assert.NotEmpty(t, summary["text"])

	win := body["window"].(map[string]any)
	start, err := time.Parse(time.RFC3339, win["startUtc"].(string))
	require.NoError(t, err)
	assert.Equal(t, 20, start.Day())
}

func TestInvalidInput(t *testing.T) {
	f := setup(t, emptyLoader)
	tests := []struct {
		name string
		path string
	}{
		{"missing lat", "/api/tonight?lon=20"},
		{"lat not a number", "/api/tonight?lat=north&lon=20"},
		{"lat out of range", "/api/now?lat=91&lon=20"},
		{"lon out of range", "/api/window?lat=60&lon=200"},
		{"bad date", "/api/window?lat=60&lon=20&date=15/01/2025"},
		{"bad days", "/api/ingest/health?days=0"},
		{"geomagnetic lat", "/api/geomagnetic?lat=abc"},
		{"unknown location", "/api/tonight?location=nowhere"},
		{"bad raw id", "/api/ingest/raw?id=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.get(t, tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, body["error"], "invalid")
		})
	}
}

func TestTonight_ByLocationID(t *testing.T) {
	f := setup(t, kpLoader(5))
	require.NoError(t, f.store.UpsertLocation(models.Location{ID: "umea", Name: "Umeå", Latitude: 63.8258, Longitude: 20.263, Active: true}))

	w, body := f.get(t, "/api/tonight?location=umea")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 63.8258, body["lat"])
	assert.Equal(t, 20.263, body["lon"])
}

func TestNow(t *testing.T) {
	f := setup(t, kpLoader(5))
	w, body := f.get(t, "/api/now?lat=63.8258&lon=20.263")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"openmeteo"}, body["providers"])
	assert.NotNil(t, body["hour"])
}

func TestGeomagnetic_WithLatitude(t *testing.T) {
	f := setup(t, kpLoader(5))
	w, body := f.get(t, "/api/geomagnetic?lat=63.8")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, body["geomagnetic"])
	assert.NotNil(t, body["adjustment"])
	assert.Equal(t, "now", body["updated"])
}

func TestGeomagnetic_FallsBackToSnapshot(t *testing.T) {
	f := setup(t, emptyLoader)
	require.NoError(t, f.store.InsertGeomagneticSnapshot(testNow, &models.BlendedGeomagnetic{
		TimeTag:       testNow.Add(-3 * time.Hour),
		GlobalScore10: 3,
		KpProxy:       2.7,
	}))

	w, body := f.get(t, "/api/geomagnetic")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3 hours ago", body["updated"])
	assert.Nil(t, body["adjustment"])
}

func TestGeomagnetic_SnapshotAgesWithClock(t *testing.T) {
	f := setup(t, emptyLoader)
	require.NoError(t, f.store.InsertGeomagneticSnapshot(testNow, &models.BlendedGeomagnetic{
		TimeTag:       testNow.Add(-12 * time.Minute),
		GlobalScore10: 3,
		KpProxy:       2.7,
		StaleHours:    0.2,
		StaleStatus:   models.StaleFresh,
	}))
	f.clock.Advance(48 * time.Hour)

	w, body := f.get(t, "/api/geomagnetic")
	require.Equal(t, http.StatusOK, w.Code)
	geo := body["geomagnetic"].(map[string]any)
	assert.Equal(t, "very-stale", geo["staleStatus"])
	assert.InDelta(t, 48.2, geo["staleHours"], 1e-9)
	assert.Equal(t, "2 days ago", body["updated"])
}

func TestGeomagnetic_NoData(t *testing.T) {
	f := setup(t, emptyLoader)
	w, _ := f.get(t, "/api/geomagnetic")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWindow(t *testing.T) {
	f := setup(t, emptyLoader)
	w, body := f.get(t, "/api/window?lat=63.8258&lon=20.263")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Europe/Stockholm", body["timezone"])
	assert.Len(t, body["halves"], 2)
}

func TestSpots_Disabled(t *testing.T) {
	f := setup(t, emptyLoader)
	w, _ := f.get(t, "/api/spots?lat=63.8258&lon=20.263")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSpots(t *testing.T) {
	f := setup(t, emptyLoader)
	cfg := config.Default()
	resolver := window.NewResolver(cfg.Window, nil)
	f.server.WithSpots(spots.NewSuggester(cfg, clearSkies(), resolver, nil))

	req := httptest.NewRequest("GET", "/api/spots?lat=63.8258&lon=20.263&n=3", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list []spots.Spot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].Score, list[i].Score)
	}

	w, _ = f.get(t, "/api/spots?lat=63.8258&lon=20.263&n=100")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHealth(t *testing.T) {
	f := setup(t, emptyLoader)
	run, err := f.store.StartIngestRun("hpo", "hp60", nil)
	require.NoError(t, err)
	run.Success = false
	run.ErrorMessage = sql.NullString{String: "connection refused", Valid: true}
	require.NoError(t, f.store.CompleteIngestRun(run))

	w, body := f.get(t, "/api/ingest/health")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(7), body["days"])

	errs := body["recentErrors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "connection refused", errs[0].(map[string]any)["error"])

	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "hpo", sources[0].(map[string]any)["source"])

	raw := body["rawPayloads"].(map[string]any)
	assert.Equal(t, "0 B", raw["totalSize"])
}

func TestMetrics(t *testing.T) {
	f := setup(t, emptyLoader)
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestIngestRaw(t *testing.T) {
	f := setup(t, emptyLoader)
	_, err := f.store.StoreRawPayload(nil, "hemi", "hemi-power", nil, []byte("2025-01-15_12:00 2025-01-15_12:30 40 35\n"))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/ingest/raw?source=hemi", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-01-15_12:00 2025-01-15_12:30 40 35\n", w.Body.String())

	w, _ = f.get(t, "/api/ingest/raw?source=kp")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.get(t, "/api/ingest/raw")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestRaw_ByID(t *testing.T) {
	f := setup(t, emptyLoader)
	id, err := f.store.StoreRawPayload(nil, "kp", "kp_hourly", nil, []byte(`[{"kp_index":3}]`))
	require.NoError(t, err)
	require.NotZero(t, id)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/ingest/raw?id=%d", id), nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `[{"kp_index":3}]`, w.Body.String())

	w, _ = f.get(t, fmt.Sprintf("/api/ingest/raw?id=%d", id+1))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
