package ephemeris

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	umeaLat = 63.8258
	umeaLon = 20.263
)

func TestSun(t *testing.T) {
	equinox := Sun(time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC), 0, 0)
	assert.Greater(t, equinox.Altitude, 85.0)

	winterNoon := Sun(time.Date(2025, 1, 15, 10, 39, 0, 0, time.UTC), umeaLat, umeaLon)
	assert.InDelta(t, 5.0, winterNoon.Altitude, 1.0)
	assert.InDelta(t, 180.0, winterNoon.Azimuth, 5.0)

	morning := Sun(time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC), umeaLat, umeaLon)
	assert.Less(t, morning.Altitude, 0.0)
	assert.InDelta(t, 115.0, morning.Azimuth, 5.0)
}

func TestMoon(t *testing.T) {
	// full moon on 2025-01-13, transiting near local midnight
	full := time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)
	pos := Moon(full, umeaLat, umeaLon)
	assert.Greater(t, pos.Altitude, 30.0)
	assert.Greater(t, MoonIllumination(full), 0.95)

	newMoon := time.Date(2025, 1, 29, 12, 36, 0, 0, time.UTC)
	assert.Less(t, MoonIllumination(newMoon), 0.05)
}

func TestMoonPhase(t *testing.T) {
	assert.InDelta(t, 0, MoonPhase(newMoonRef), 1e-9)
	half := newMoonRef.Add(time.Duration(LunarCycle / 2 * 24 * float64(time.Hour)))
	assert.InDelta(t, 0.5, MoonPhase(half), 1e-6)
	assert.InDelta(t, 1.0, MoonIllumination(half), 1e-6)

	before := newMoonRef.Add(-24 * time.Hour)
	p := MoonPhase(before)
	assert.True(t, p > 0.9 && p < 1, "phase before reference wraps, got %v", p)
}

func TestNightOf_Winter(t *testing.T) {
	n := NightOf(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), umeaLat, umeaLon)

	for name, ts := range map[string]time.Time{
		"sunset": n.Sunset, "civil dusk": n.CivilDusk, "nautical dusk": n.NauticalDusk,
		"nautical dawn": n.NauticalDawn, "civil dawn": n.CivilDawn, "sunrise": n.Sunrise,
	} {
		assert.False(t, ts.IsZero(), name)
	}

	assert.True(t, n.Sunset.Before(n.CivilDusk))
	assert.True(t, n.CivilDusk.Before(n.NauticalDusk))
	assert.True(t, n.NauticalDusk.Before(n.NauticalDawn))
	assert.True(t, n.NauticalDawn.Before(n.CivilDawn))
	assert.True(t, n.CivilDawn.Before(n.Sunrise))

	want := time.Date(2025, 1, 15, 15, 45, 0, 0, time.UTC)
	assert.WithinDuration(t, want, n.NauticalDusk, 20*time.Minute)
	assert.InDelta(t, NauticalDeg, Sun(n.NauticalDusk, umeaLat, umeaLon).Altitude, 0.05)
}

func TestNightOf_Midsummer(t *testing.T) {
	n := NightOf(time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC), umeaLat, umeaLon)
	assert.True(t, n.NauticalDusk.IsZero())
	assert.True(t, n.NauticalDawn.IsZero())
	assert.True(t, n.CivilDusk.IsZero())
	assert.False(t, n.Sunset.IsZero())
	assert.False(t, n.Sunrise.IsZero())
	assert.True(t, n.Sunrise.After(n.Sunset))
}
