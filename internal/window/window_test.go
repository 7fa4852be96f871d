package window

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/ephemeris"
	"github.com/lox/aurorawatch/internal/models"
)

const (
	umeaLat = 63.8258
	umeaLon = 20.263
)

func stockholm(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	return loc
}

func newResolver(t *testing.T) *Resolver {
	return NewResolver(config.Default().Window, FixedFinder{Loc: stockholm(t)})
}

func noTwilight(time.Time, float64, float64) ephemeris.Night { return ephemeris.Night{} }

func TestResolve_Winter(t *testing.T) {
	r := newResolver(t)
	ref := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	w, err := r.Resolve(umeaLat, umeaLon, ref)
	require.NoError(t, err)
	assert.Equal(t, models.WindowSeasonal, w.Source)
	assert.WithinDuration(t, time.Date(2025, 1, 15, 15, 48, 0, 0, time.UTC), w.Start, 20*time.Minute)
	assert.WithinDuration(t, time.Date(2025, 1, 16, 5, 58, 0, 0, time.UTC), w.End, 20*time.Minute)
	assert.True(t, w.End.After(w.Start))
}

func TestResolve_MidsummerStillSpansMinimum(t *testing.T) {
	r := newResolver(t)
	ref := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)

	w, err := r.Resolve(umeaLat, umeaLon, ref)
	require.NoError(t, err)
	assert.True(t, w.End.After(w.Start))
	assert.GreaterOrEqual(t, w.Hours(), config.Default().Window.MinTotalHours-1e-9)
}

func TestResolve_FallbackLocalClock(t *testing.T) {
	r := newResolver(t).WithNightFunc(noTwilight)
	ref := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	w, err := r.Resolve(umeaLat, umeaLon, ref)
	require.NoError(t, err)
	assert.Equal(t, models.WindowFallback, w.Source)
	// 18:00-02:00 CET
	assert.Equal(t, time.Date(2025, 1, 15, 17, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 1, 16, 1, 0, 0, 0, time.UTC), w.End)
}

func TestResolve_FallbackAcrossDSTChange(t *testing.T) {
	r := newResolver(t).WithNightFunc(noTwilight)
	tests := []struct {
		name       string
		ref        time.Time
		start, end time.Time
	}{
		// clocks go forward at 02:00 on 30 March
		{"spring", time.Date(2025, 3, 30, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 30, 16, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)},
		// and back at 03:00 on 26 October
		{"autumn", time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 10, 26, 17, 0, 0, 0, time.UTC), time.Date(2025, 10, 27, 1, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := r.Resolve(umeaLat, umeaLon, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, models.WindowFallback, w.Source)
			assert.Equal(t, tt.start, w.Start)
			assert.Equal(t, tt.end, w.End)
		})
	}
}

func TestResolve_FallbackWithoutTimezoneIsUTC(t *testing.T) {
	r := NewResolver(config.Default().Window, nil).WithNightFunc(noTwilight)
	ref := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	w, err := r.Resolve(umeaLat, umeaLon, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 1, 16, 2, 0, 0, 0, time.UTC), w.End)
}

func TestResolve_TimezoneAwareOff(t *testing.T) {
	cfg := config.Default().Window
	cfg.TimezoneAware = false
	r := NewResolver(cfg, FixedFinder{Loc: stockholm(t)})
	assert.Equal(t, time.UTC, r.Location(umeaLat, umeaLon))
}

func TestResolve_EndRolledForward(t *testing.T) {
	r := newResolver(t).WithNightFunc(func(date time.Time, _, _ float64) ephemeris.Night {
		// dawn reported on the same calendar day, before dusk
		return ephemeris.Night{
			NauticalDusk: time.Date(2025, 2, 1, 17, 0, 0, 0, time.UTC),
			NauticalDawn: time.Date(2025, 2, 1, 5, 0, 0, 0, time.UTC),
		}
	})
	w, err := r.Resolve(umeaLat, umeaLon, time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 2, 5, 0, 0, 0, time.UTC), w.End)
	assert.Equal(t, models.WindowSeasonal, w.Source)
}

func TestResolve_PrefersCivilOverSunset(t *testing.T) {
	civil := time.Date(2025, 5, 20, 20, 30, 0, 0, time.UTC)
	r := newResolver(t).WithNightFunc(func(time.Time, float64, float64) ephemeris.Night {
		return ephemeris.Night{
			Sunset:    time.Date(2025, 5, 20, 19, 30, 0, 0, time.UTC),
			CivilDusk: civil,
			CivilDawn: time.Date(2025, 5, 21, 2, 30, 0, 0, time.UTC),
			Sunrise:   time.Date(2025, 5, 21, 3, 30, 0, 0, time.UTC),
		}
	})
	w, err := r.Resolve(umeaLat, umeaLon, time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, civil, w.Start)
	assert.Equal(t, time.Date(2025, 5, 21, 2, 30, 0, 0, time.UTC), w.End)
}

func TestResolve_InvalidInput(t *testing.T) {
	_, err := newResolver(t).Resolve(math.Inf(1), umeaLon, time.Now())
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestSeasonal_Winter(t *testing.T) {
	r := newResolver(t)
	halves, err := r.Seasonal(umeaLat, umeaLon, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, halves, 2)

	early, late := halves[0], halves[1]
	assert.Equal(t, "early", early.Label)
	assert.Equal(t, "late", late.Label)
	assert.InDelta(t, 4, early.Hours(), 1e-9, "capped at four hours")
	midnight := time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, late.Start)
	assert.Equal(t, midnight.Add(4*time.Hour), late.End)
}

func TestSeasonal_Fallback(t *testing.T) {
	r := NewResolver(config.Default().Window, nil).WithNightFunc(noTwilight)
	halves, err := r.Seasonal(umeaLat, umeaLon, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, halves, 2)
	assert.Equal(t, time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC), halves[0].Start)
	assert.Equal(t, time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC), halves[0].End)
	assert.Equal(t, time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC), halves[1].Start)
	assert.Equal(t, time.Date(2025, 1, 16, 2, 0, 0, 0, time.UTC), halves[1].End)
	assert.Equal(t, models.WindowFallback, halves[1].Source)
}

func TestSeasonal_OnlyLateHalf(t *testing.T) {
	r := NewResolver(config.Default().Window, nil).WithNightFunc(func(time.Time, float64, float64) ephemeris.Night {
		return ephemeris.Night{
			NauticalDusk: time.Date(2025, 1, 16, 0, 30, 0, 0, time.UTC),
			NauticalDawn: time.Date(2025, 1, 16, 7, 0, 0, 0, time.UTC),
		}
	})
	halves, err := r.Seasonal(0, 0, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, halves, 1)
	assert.Equal(t, "late", halves[0].Label)
}

type hour struct {
	at  time.Time
	alt *float64
}

func (h hour) Timestamp() time.Time { return h.at }

func (h hour) SunAltitude() (float64, bool) {
	if h.alt == nil {
		return 0, false
	}
	return *h.alt, true
}

func hours(start time.Time, alts ...float64) []hour {
	out := make([]hour, len(alts))
	for i, a := range alts {
		a := a
		out[i] = hour{at: start.Add(time.Duration(i) * time.Hour), alt: &a}
	}
	return out
}

func TestPickNight_DarkBlock(t *testing.T) {
	start := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	items := hours(start, 5, 0, -3, -7, -10, -15, -18, -15, -12, -8, -3, 2)
	got := PickNight(items, 6, time.UTC)
	require.Len(t, got, 7)
	assert.Equal(t, items[3].at, got[0].at)
	assert.Equal(t, items[9].at, got[6].at)
}

func TestPickNight_ShortNightExpands(t *testing.T) {
	start := time.Date(2025, 5, 15, 18, 0, 0, 0, time.UTC)
	items := hours(start, 3, 1, -2, -4, -7, -8, -6.5, -4, -1, 2)
	got := PickNight(items, 6, time.UTC)
	require.Len(t, got, 6)
	// dark block is indices 4..6; one hour before, two after
	assert.Equal(t, items[3].at, got[0].at)
	assert.Equal(t, items[8].at, got[5].at)
}

func TestPickNight_NoAltitudeFallsBackToEvening(t *testing.T) {
	start := time.Date(2025, 1, 15, 16, 0, 0, 0, time.UTC)
	items := make([]hour, 14)
	for i := range items {
		items[i] = hour{at: start.Add(time.Duration(i) * time.Hour)}
	}
	got := PickNight(items, 6, time.UTC)
	require.Len(t, got, 8)
	assert.Equal(t, 20, got[0].at.Hour())

	short := items[:5]
	assert.Len(t, PickNight(short, 6, time.UTC), 5)

	late := items[:11] // 16:00..02:00, 20:00 start leaves 7 items
	got = PickNight(late, 6, time.UTC)
	require.Len(t, got, 7)
}

func TestPickNight_Empty(t *testing.T) {
	assert.Empty(t, PickNight([]hour(nil), 6, nil))
}
