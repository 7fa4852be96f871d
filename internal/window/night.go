package window

import "time"

// DarkSunAltitudeDeg is the sun altitude at or below which an hour counts as dark.
const DarkSunAltitudeDeg = -6.0

// Timed is an hourly item that may know the sun altitude at its time.
type Timed interface {
	Timestamp() time.Time
	SunAltitude() (float64, bool)
}

// PickNight selects the run of hourly items worth showing for one night.
// It prefers the span from the first to the last dark hour, widened evenly
// on both sides to at least minHours. Without altitude data it takes
// max(minHours, 8) hours starting at 20:00-21:00 local time, or the last
// minHours items.
func PickNight[T Timed](items []T, minHours int, loc *time.Location) []T {
	if len(items) == 0 {
		return items
	}
	if loc == nil {
		loc = time.UTC
	}

	first, last := -1, -1
	for i, it := range items {
		alt, ok := it.SunAltitude()
		if !ok || alt > DarkSunAltitudeDeg {
			continue
		}
		if first == -1 {
			first = i
		}
		last = i
	}

	if first != -1 {
		if last-first+1 >= minHours {
			return items[first : last+1]
		}
		need := minHours - (last - first + 1)
		pre := min(first, need/2)
		post := min(len(items)-1-last, need-pre)
		return items[first-pre : last+1+post]
	}

	start := 0
	for i, it := range items {
		if h := it.Timestamp().In(loc).Hour(); h >= 20 && h <= 21 {
			start = i
			break
		}
	}
	want := max(minHours, 8)
	end := min(len(items), start+want)
	if end-start >= minHours {
		return items[start:end]
	}
	if len(items) <= minHours {
		return items
	}
	return items[len(items)-minHours:]
}
