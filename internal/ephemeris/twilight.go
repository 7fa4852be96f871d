package ephemeris

import (
	"time"
)

// Sun altitudes that define the twilight boundaries.
const (
	HorizonDeg  = -0.833
	CivilDeg    = -6.0
	NauticalDeg = -12.0
)

// Night holds the evening and following-morning twilight times for one
// local date. A zero time means the sun never crosses that altitude.
type Night struct {
	Sunset       time.Time `json:"sunset"`
	CivilDusk    time.Time `json:"civilDusk"`
	NauticalDusk time.Time `json:"nauticalDusk"`
	NauticalDawn time.Time `json:"nauticalDawn"`
	CivilDawn    time.Time `json:"civilDawn"`
	Sunrise      time.Time `json:"sunrise"`
}

const scanStep = 10 * time.Minute

// NightOf returns the twilight times for the night following the given date.
// The scan runs from local solar noon on that date to solar noon the next day.
func NightOf(date time.Time, lat, lon float64) Night {
	y, m, d := date.Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Add(-time.Duration(lon / 15 * float64(time.Hour)))
	end := noon.Add(24 * time.Hour)

	return Night{
		Sunset:       crossing(noon, end, lat, lon, HorizonDeg, false),
		CivilDusk:    crossing(noon, end, lat, lon, CivilDeg, false),
		NauticalDusk: crossing(noon, end, lat, lon, NauticalDeg, false),
		NauticalDawn: crossing(noon, end, lat, lon, NauticalDeg, true),
		CivilDawn:    crossing(noon, end, lat, lon, CivilDeg, true),
		Sunrise:      crossing(noon, end, lat, lon, HorizonDeg, true),
	}
}

// crossing finds the first time in [from, to) where the sun passes target
// altitude in the given direction, refined to the second.
func crossing(from, to time.Time, lat, lon, target float64, rising bool) time.Time {
	prev := Sun(from, lat, lon).Altitude - target
	for t := from.Add(scanStep); !t.After(to); t = t.Add(scanStep) {
		cur := Sun(t, lat, lon).Altitude - target
		if (rising && prev < 0 && cur >= 0) || (!rising && prev > 0 && cur <= 0) {
			return bisect(t.Add(-scanStep), t, lat, lon, target, rising)
		}
		prev = cur
	}
	return time.Time{}
}

func bisect(lo, hi time.Time, lat, lon, target float64, rising bool) time.Time {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		above := Sun(mid, lat, lon).Altitude >= target
		if above == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi.Truncate(time.Second)
}
