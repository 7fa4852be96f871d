// Package ephemeris computes low-precision sun and moon positions and the
// twilight times that bound a night. Accuracy is a few arc-minutes for the
// sun and about a degree for the moon, which is plenty for sky-darkness
// scoring.
package ephemeris

import (
	"math"
	"time"
)

const (
	rad = math.Pi / 180
	deg = 180 / math.Pi

	j2000 = 2451545.0

	// LunarCycle is the mean synodic month in days.
	LunarCycle = 29.53
)

// Reference new moon: January 6, 2000 18:14 UTC.
var newMoonRef = time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC)

// Position is an altitude/azimuth pair in degrees. Azimuth is measured
// clockwise from north.
type Position struct {
	Altitude float64 `json:"altitudeDeg"`
	Azimuth  float64 `json:"azimuthDeg"`
}

// julianDay converts t to a Julian Day number.
func julianDay(t time.Time) float64 {
	return float64(t.UTC().UnixNano())/float64(24*time.Hour) + 2440587.5
}

// Sun returns the sun's apparent position for an observer.
func Sun(t time.Time, lat, lon float64) Position {
	n := julianDay(t) - j2000

	// Mean longitude and anomaly
	L := math.Mod(280.460+0.9856474*n, 360)
	g := math.Mod(357.528+0.9856003*n, 360) * rad

	// Ecliptic longitude and obliquity
	lambda := (L + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * rad
	epsilon := (23.439 - 0.0000004*n) * rad

	ra := math.Atan2(math.Cos(epsilon)*math.Sin(lambda), math.Cos(lambda))
	dec := math.Asin(math.Sin(epsilon) * math.Sin(lambda))

	return horizontal(n, lat, lon, ra, dec)
}

// Moon returns the moon's geocentric position for an observer.
func Moon(t time.Time, lat, lon float64) Position {
	d := julianDay(t) - j2000

	L := (218.316 + 13.176396*d) * rad // ecliptic longitude
	M := (134.963 + 13.064993*d) * rad // mean anomaly
	F := (93.272 + 13.229350*d) * rad  // mean distance

	l := L + 6.289*rad*math.Sin(M)
	b := 5.128 * rad * math.Sin(F)
	e := 23.4397 * rad

	ra := math.Atan2(math.Sin(l)*math.Cos(e)-math.Tan(b)*math.Sin(e), math.Cos(l))
	dec := math.Asin(math.Sin(b)*math.Cos(e) + math.Cos(b)*math.Sin(e)*math.Sin(l))

	return horizontal(d, lat, lon, ra, dec)
}

// MoonIllumination returns the illuminated fraction of the moon's disc (0-1).
func MoonIllumination(t time.Time) float64 {
	angle := MoonPhase(t) * 2 * math.Pi
	return (1 - math.Cos(angle)) / 2
}

// MoonPhase returns the position in the lunar cycle: 0 new, 0.5 full.
func MoonPhase(t time.Time) float64 {
	days := t.Sub(newMoonRef).Hours() / 24
	pos := math.Mod(days, LunarCycle)
	if pos < 0 {
		pos += LunarCycle
	}
	return pos / LunarCycle
}

func horizontal(n, lat, lon, ra, dec float64) Position {
	gmst := math.Mod(280.46061837+360.98564736629*n, 360)
	h := (gmst+lon)*rad - ra
	phi := lat * rad

	sinAlt := math.Sin(phi)*math.Sin(dec) + math.Cos(phi)*math.Cos(dec)*math.Cos(h)
	sinAlt = math.Max(-1, math.Min(1, sinAlt))
	alt := math.Asin(sinAlt)

	az := math.Atan2(math.Sin(h), math.Cos(h)*math.Sin(phi)-math.Tan(dec)*math.Cos(phi))
	azDeg := math.Mod(az*deg+180, 360)
	if azDeg < 0 {
		azDeg += 360
	}

	return Position{Altitude: alt * deg, Azimuth: azDeg}
}
