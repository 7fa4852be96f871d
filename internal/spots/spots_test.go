package spots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/window"
)

const (
	centerLat = 63.825
	centerLon = 20.263
)

// northClear reports clear skies north of the centre and overcast elsewhere.
type northClear struct{}

func (northClear) FetchAll(_ context.Context, lat, _ float64) map[string][]models.HourlyCloudSample {
	pct := 90.0
	if lat > centerLat+0.001 {
		pct = 10
	}
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	var out []models.HourlyCloudSample
	for i := 0; i < 48; i++ {
		out = append(out, models.HourlyCloudSample{Time: start.Add(time.Duration(i) * time.Hour), Source: "openmeteo", CloudPct: models.Ptr(pct)})
	}
	return map[string][]models.HourlyCloudSample{"openmeteo": out}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LightPollution.Zones = map[string]config.Zone{
		"umea": {Name: "Umeå", Lat: centerLat, Lon: centerLon, UrbanKm: 2, SuburbanKm: 4},
	}
	return cfg
}

func newSuggester(t *testing.T, clouds CloudSource) *Suggester {
	t.Helper()
	cfg := testConfig()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	return NewSuggester(cfg, clouds, window.NewResolver(cfg.Window, window.FixedFinder{Loc: loc}), nil)
}

func TestSuggest_PrefersDarkClearNorth(t *testing.T) {
	s := newSuggester(t, northClear{})
	ref := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	all, err := s.Suggest(context.Background(), centerLat, centerLon, ref, 0)
	require.NoError(t, err)
	require.Len(t, all, 16, "the 1 km ring lies inside the urban core")
	for _, sp := range all {
		assert.NotEqual(t, models.LightUrbanCore, sp.Light.Category)
	}

	top := all[0]
	assert.Equal(t, 5.0, top.DistanceKm)
	assert.Equal(t, 0.0, top.BearingDeg)
	assert.Equal(t, models.LightRural, top.Light.Category)
	assert.True(t, top.North)
	assert.InDelta(t, 1.4, top.Score, 1e-9)
	require.NotNil(t, top.CloudsEarly)
	assert.InDelta(t, 10.0, *top.CloudsEarly, 1e-9)
	assert.Equal(t, []string{"dark surroundings", "clouds early ~10%", "clouds late ~10%", "north of your position"}, top.Reasons)

	second := all[1]
	assert.Equal(t, 3.0, second.DistanceKm)
	assert.Equal(t, 0.0, second.BearingDeg)
	assert.InDelta(t, 1.3, second.Score, 1e-9)

	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}

	top3, err := s.Suggest(context.Background(), centerLat, centerLon, ref, 3)
	require.NoError(t, err)
	assert.Len(t, top3, 3)
}

func TestSuggest_NoWeatherIsNeutral(t *testing.T) {
	s := newSuggester(t, nil)
	spots, err := s.Suggest(context.Background(), centerLat, centerLon, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, 0.5, spots[0].CloudScore)
	assert.Nil(t, spots[0].CloudsEarly)
}

func TestSuggest_InvalidInput(t *testing.T) {
	s := newSuggester(t, nil)
	_, err := s.Suggest(context.Background(), 100, 0, time.Now(), 3)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestInNorthSector(t *testing.T) {
	for bearing, want := range map[float64]bool{0: true, 30: true, 31: false, 180: false, 330: true, 345: true, -10: true, 390: true} {
		assert.Equal(t, want, inNorthSector(bearing), "bearing %v", bearing)
	}
}
