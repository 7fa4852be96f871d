// Package window works out which hours of a night are worth looking at.
package window

import (
	"time"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/ephemeris"
	"github.com/lox/aurorawatch/internal/models"
)

// NightFunc returns twilight times for the night after a date.
type NightFunc func(date time.Time, lat, lon float64) ephemeris.Night

// Resolver computes evening observation windows.
type Resolver struct {
	cfg   config.WindowConfig
	tz    TZFinder
	night NightFunc
}

// NewResolver returns a resolver. tz may be nil, in which case local
// clock times are read as UTC.
func NewResolver(cfg config.WindowConfig, tz TZFinder) *Resolver {
	if !cfg.TimezoneAware {
		tz = nil
	}
	return &Resolver{cfg: cfg, tz: tz, night: ephemeris.NightOf}
}

// WithNightFunc replaces the ephemeris source.
func (r *Resolver) WithNightFunc(fn NightFunc) *Resolver {
	r.night = fn
	return r
}

// Location returns the civil zone used for a coordinate, falling back to UTC.
func (r *Resolver) Location(lat, lon float64) *time.Location {
	if r.tz == nil {
		return time.UTC
	}
	loc, err := r.tz.Location(lat, lon)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// Resolve returns the observable window for the night that starts on the
// local date of ref. It runs from nautical dusk to nautical dawn, degrading
// to civil twilight, then sunset/sunrise, then a fixed local clock range.
func (r *Resolver) Resolve(lat, lon float64, ref time.Time) (models.EveningWindow, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return models.EveningWindow{}, err
	}
	loc := r.Location(lat, lon)
	local := ref.In(loc)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	n := r.night(date, lat, lon)
	start := firstSet(n.NauticalDusk, n.CivilDusk, n.Sunset)
	end := firstSet(n.NauticalDawn, n.CivilDawn, n.Sunrise)

	w := models.EveningWindow{Start: start.UTC(), End: end.UTC(), Source: models.WindowSeasonal}
	if start.IsZero() || end.IsZero() {
		y, m, d := date.Date()
		fs := time.Date(y, m, d, r.cfg.FallbackStartHour, 0, 0, 0, loc)
		fe := time.Date(y, m, d, r.cfg.FallbackEndHour, 0, 0, 0, loc)
		if !fe.After(fs) {
			fe = time.Date(y, m, d+1, r.cfg.FallbackEndHour, 0, 0, 0, loc)
		}
		w = models.EveningWindow{Start: fs.UTC(), End: fe.UTC(), Source: models.WindowFallback}
	}
	for !w.End.After(w.Start) {
		w.End = w.End.Add(24 * time.Hour)
	}

	if minDur := time.Duration(r.cfg.MinTotalHours * float64(time.Hour)); w.End.Sub(w.Start) < minDur {
		pad := (minDur - w.End.Sub(w.Start)) / 2
		w.Start = w.Start.Add(-pad)
		w.End = w.Start.Add(minDur)
	}
	return w, nil
}

// Seasonal splits the evening window at local midnight into an early and
// a late half, each capped at MaxHalfHours. Empty halves are dropped.
func (r *Resolver) Seasonal(lat, lon float64, ref time.Time) ([]models.EveningWindow, error) {
	w, err := r.Resolve(lat, lon, ref)
	if err != nil {
		return nil, err
	}
	loc := r.Location(lat, lon)
	local := ref.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).UTC()
	maxHalf := time.Duration(r.cfg.MaxHalfHours * float64(time.Hour))

	early := models.EveningWindow{Label: "early", Start: w.Start, End: minTime(midnight, w.End), Source: w.Source}
	if maxHalf > 0 && early.End.Sub(early.Start) > maxHalf {
		early.End = early.Start.Add(maxHalf)
	}
	late := models.EveningWindow{Label: "late", Start: maxTime(midnight, w.Start), End: w.End, Source: w.Source}
	if maxHalf > 0 && late.End.Sub(late.Start) > maxHalf {
		late.End = late.Start.Add(maxHalf)
	}

	var out []models.EveningWindow
	for _, half := range []models.EveningWindow{early, late} {
		if half.End.After(half.Start) {
			out = append(out, half)
		}
	}
	return out, nil
}

func firstSet(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
