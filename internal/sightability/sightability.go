// Package sightability combines darkness, clouds, moonlight and light
// pollution into a 0-10 score for seeing aurora at one place and hour.
package sightability

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/ephemeris"
	"github.com/lox/aurorawatch/internal/light"
	"github.com/lox/aurorawatch/internal/models"
)

const (
	AlgoTwilight = "twilight-v1"
	AlgoAdditive = "additive-v0"
)

// Input describes one hour at one place. The ephemeris overrides are
// optional; when nil the value is computed from When, Lat and Lon.
type Input struct {
	Lat, Lon      float64
	When          time.Time
	CloudsPct     *float64
	Geomagnetic10 float64
	Light         models.LightDetail

	SunAltitudeDeg   *float64
	MoonAltitudeDeg  *float64
	MoonIllumination *float64
}

// Scorer computes sightability with a fixed configuration.
type Scorer struct {
	cfg   config.SightabilityConfig
	light *light.Classifier
}

func NewScorer(cfg config.SightabilityConfig, lc *light.Classifier) *Scorer {
	return &Scorer{cfg: cfg, light: lc}
}

// Score runs the configured model.
func (s *Scorer) Score(in Input) (models.SightabilityResult, error) {
	if s.cfg.Model == "additive" {
		return s.ScoreAdditive(in)
	}
	return s.ScoreTwilight(in)
}

// ScoreTwilight is the multiplicative model: each factor lies in [0,1] and
// the score is 10 times their product.
func (s *Scorer) ScoreTwilight(in Input) (models.SightabilityResult, error) {
	inputs, err := s.resolve(in)
	if err != nil {
		return models.SightabilityResult{}, err
	}
	geo := inputs.GeomagneticScore10

	f := models.SightabilityFactors{
		Sun:    s.sunFactor(inputs.SunAltitudeDeg, geo),
		Clouds: s.cloudFactor(inputs.CloudsPct),
		Moon:   s.moonFactor(inputs.MoonAltitudeDeg, inputs.MoonIlluminationFraction, geo),
		Light:  s.light.Factor(inputs.LightCategory, inputs.Bortle),
	}

	score := clamp(10*f.Sun*f.Clouds*f.Moon*f.Light, 0, 10)

	return models.SightabilityResult{
		Algo:  AlgoTwilight,
		Score: score,
		Breakdown: []models.BreakdownEntry{
			s.sunEntry(inputs.SunAltitudeDeg, f.Sun),
			cloudEntry(inputs.CloudsPct, f.Clouds),
			moonEntry(inputs.MoonAltitudeDeg, inputs.MoonIlluminationFraction, f.Moon),
			lightEntry(inputs.LightCategory, inputs.Bortle, f.Light),
		},
		Inputs:  inputs,
		Factors: f,
	}, nil
}

// ScoreAdditive is the older fixed-penalty model. It starts from 100 points
// and subtracts for clouds, moon altitude and daylight; the result is
// reported on the same 0-10 scale. It ignores geomagnetic strength, moon
// phase and light pollution.
func (s *Scorer) ScoreAdditive(in Input) (models.SightabilityResult, error) {
	inputs, err := s.resolve(in)
	if err != nil {
		return models.SightabilityResult{}, err
	}

	points := 100.0
	var breakdown []models.BreakdownEntry

	cloudPenalty := 0.0
	if c := inputs.CloudsPct; c != nil {
		switch {
		case *c > 80:
			cloudPenalty = -60
		case *c > 50:
			cloudPenalty = -30
		}
		breakdown = append(breakdown, entry("clouds", cloudPenalty,
			fmt.Sprintf("Clouds %d%% = %g", int(math.Round(*c)), cloudPenalty), "cloudsPct", *c))
	} else {
		breakdown = append(breakdown, entry("clouds.no_data", 0, "Clouds: no data", "cloudsPct", nil))
	}

	moonPenalty := 0.0
	switch alt := inputs.MoonAltitudeDeg; {
	case alt > 45:
		moonPenalty = -20
	case alt > 15:
		moonPenalty = -10
	}
	breakdown = append(breakdown, entry("moon", moonPenalty,
		fmt.Sprintf("Moon at %.1f° = %g", inputs.MoonAltitudeDeg, moonPenalty), "altitudeDeg", inputs.MoonAltitudeDeg))

	sunPenalty := 0.0
	if inputs.SunAltitudeDeg > 0 {
		sunPenalty = -100
	}
	breakdown = append(breakdown, entry("sun", sunPenalty,
		fmt.Sprintf("Sun at %.1f° = %g", inputs.SunAltitudeDeg, sunPenalty), "altitudeDeg", inputs.SunAltitudeDeg))

	points = clamp(points+cloudPenalty+moonPenalty+sunPenalty, 0, 100)

	return models.SightabilityResult{
		Algo:      AlgoAdditive,
		Score:     points / 10,
		Breakdown: breakdown,
		Inputs:    inputs,
	}, nil
}

// resolve validates the input and fills ephemeris values that were not supplied.
func (s *Scorer) resolve(in Input) (models.SightabilityInputs, error) {
	if err := models.ValidateCoordinates(in.Lat, in.Lon); err != nil {
		return models.SightabilityInputs{}, err
	}
	if in.When.IsZero() && (in.SunAltitudeDeg == nil || in.MoonAltitudeDeg == nil || in.MoonIllumination == nil) {
		return models.SightabilityInputs{}, &models.ValidationError{Field: "when", Reason: "missing timestamp"}
	}

	out := models.SightabilityInputs{
		GeomagneticScore10: clamp(finiteOr(in.Geomagnetic10, 0), 0, 10),
		LightCategory:      in.Light.Category,
		Bortle:             in.Light.Bortle,
	}
	if out.LightCategory == "" {
		out.LightCategory = models.LightUnknown
	}
	if c := in.CloudsPct; c != nil && isFinite(*c) {
		out.CloudsPct = models.Ptr(clamp(*c, 0, 100))
	}

	if in.SunAltitudeDeg != nil {
		out.SunAltitudeDeg = *in.SunAltitudeDeg
	} else {
		out.SunAltitudeDeg = ephemeris.Sun(in.When, in.Lat, in.Lon).Altitude
	}
	if in.MoonAltitudeDeg != nil {
		out.MoonAltitudeDeg = *in.MoonAltitudeDeg
	} else {
		out.MoonAltitudeDeg = ephemeris.Moon(in.When, in.Lat, in.Lon).Altitude
	}
	if in.MoonIllumination != nil {
		out.MoonIlluminationFraction = clamp(*in.MoonIllumination, 0, 1)
	} else {
		out.MoonIlluminationFraction = ephemeris.MoonIllumination(in.When)
	}
	return out, nil
}

// sunFactor is 0 in daylight and 1 at night. In twilight a strong aurora
// earns back part of the dampening, more so the brighter the sky.
func (s *Scorer) sunFactor(alt, geo float64) float64 {
	from, to := s.cfg.Twilight.FromDeg, s.cfg.Twilight.ToDeg
	if alt >= to {
		return 0
	}
	if alt <= from {
		return 1
	}
	z := clamp((alt-from)/(to-from), 0, 1)
	mid := s.cfg.GeoMidScore
	strength := clamp((geo-mid)/(10-mid), 0, 1)
	return clamp(1-z+z*strength*s.cfg.Twilight.AllowanceMax, 0, 1)
}

func (s *Scorer) cloudFactor(pct *float64) float64 {
	if pct == nil {
		return 1
	}
	c := clamp(*pct, 0, 100)
	f := 1 - c/100
	if c >= s.cfg.OvercastThreshold {
		f *= s.cfg.OvercastPenalty
	}
	return clamp(f, 0, 1)
}

// moonFactor penalises a bright, high moon. The weight moves from
// MoonLowGeo toward MoonHighGeo as the aurora strengthens.
func (s *Scorer) moonFactor(alt, illum, geo float64) float64 {
	vis := clamp((alt-s.cfg.MoonRampFromDeg)/s.cfg.MoonRampSpanDeg, 0, 1)
	base := vis * clamp(illum, 0, 1)

	mid := s.cfg.GeoMidScore
	t := clamp((mid-geo)/mid, 0, 1)
	w := s.cfg.Weights.MoonLowGeo*t + s.cfg.Weights.MoonHighGeo*(1-t)

	return clamp(1-w*base*s.cfg.MoonScale, s.cfg.MoonFloor, 1)
}

func (s *Scorer) sunEntry(alt, f float64) models.BreakdownEntry {
	switch {
	case alt >= s.cfg.Twilight.ToDeg:
		return entry("sun.daylight", f, fmt.Sprintf("Daylight: sun at %.1f°, factor %.2f", alt, f), "altitudeDeg", alt)
	case alt > s.cfg.SunGateDeg:
		return entry("sun.twilight", f, fmt.Sprintf("Twilight: sun at %.1f°, strong aurora may show, factor %.2f", alt, f), "altitudeDeg", alt)
	default:
		return entry("sun.night", f, fmt.Sprintf("Night: sun at %.1f° ≤ %g°, factor %.2f", alt, s.cfg.SunGateDeg, f), "altitudeDeg", alt)
	}
}

func cloudEntry(pct *float64, f float64) models.BreakdownEntry {
	if pct == nil {
		return entry("clouds.no_data", f, fmt.Sprintf("Clouds: no data, factor %.2f", f), "cloudsPct", nil)
	}
	return entry("clouds", f, fmt.Sprintf("Clouds %d%%, factor %.2f", int(math.Round(*pct)), f), "cloudsPct", *pct)
}

func moonEntry(alt, illum, f float64) models.BreakdownEntry {
	e := entry("moon", f, fmt.Sprintf("Moon %d%% at %.1f°, factor %.2f", int(math.Round(illum*100)), alt, f), "altitudeDeg", alt)
	e.Params["illumination"] = illum
	return e
}

func lightEntry(cat models.LightCategory, bortle int, f float64) models.BreakdownEntry {
	label := fmt.Sprintf("Light pollution %s, factor %.2f", cat, f)
	if bortle > 0 {
		label = fmt.Sprintf("Light pollution %s (B%d), factor %.2f", cat, bortle, f)
	}
	e := entry("light", f, label, "category", string(cat))
	if bortle > 0 {
		e.Params["bortle"] = bortle
	}
	return e
}

func entry(code string, contribution float64, label, key string, value any) models.BreakdownEntry {
	return models.BreakdownEntry{
		Code:         code,
		Params:       map[string]any{key: value},
		Label:        label,
		Contribution: contribution,
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteOr(f, def float64) float64 {
	if isFinite(f) {
		return f
	}
	return def
}
