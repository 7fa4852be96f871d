// Package geomagnetic turns solar wind and index data into 0..10 activity scores.
package geomagnetic

import (
	"fmt"
	"math"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

// Score computes the banded solar wind score over the most recent
// windowSize usable samples of history, whatever their spacing.
// history must be in time order.
func Score(history []models.SolarWindSample, windowSize int, cfg config.GeomagneticConfig) models.GeomagneticScoreResult {
	if windowSize <= 0 {
		windowSize = cfg.WindowSize
	}

	series := make([]models.SolarWindSample, 0, len(history))
	for _, s := range history {
		if !s.Suspect {
			series = append(series, s)
		}
	}
	if len(series) == 0 {
		series = history
	}
	if len(series) == 0 {
		return models.GeomagneticScoreResult{
			Score:     0,
			Breakdown: []models.Contribution{{Contribution: 0, Label: "No solar wind data"}},
			Inputs:    models.GeomagneticInputs{WindowSize: windowSize},
		}
	}

	last := series
	if len(last) > windowSize {
		last = last[len(last)-windowSize:]
	}

	var speeds, densities, bzs, bts []*float64
	for _, s := range last {
		speeds = append(speeds, s.Speed)
		densities = append(densities, s.Density)
		bzs = append(bzs, s.Bz)
		bts = append(bts, s.Bt)
	}
	inputs := models.GeomagneticInputs{
		WindowSize: windowSize,
		SpeedAvg:   average(speeds),
		DensityAvg: average(densities),
		BzMin:      minimum(bzs),
		BzAvg:      average(bzs),
		BtAvg:      average(bts),
	}

	parts := []models.Contribution{
		speedPart(inputs.SpeedAvg, cfg),
		bzPart(inputs.BzMin, inputs.BzAvg, cfg),
		btPart(inputs.BtAvg, cfg),
		densityPart(inputs.DensityAvg, cfg),
	}

	var raw float64
	for _, p := range parts {
		raw += p.Contribution
	}

	from, to := last[0].Time, last[len(last)-1].Time
	return models.GeomagneticScoreResult{
		Score:     clamp(raw, cfg.ClampMin, cfg.ClampMax),
		Breakdown: parts,
		Inputs:    inputs,
		Window:    models.ScoreWindow{Count: len(last), From: &from, To: &to},
	}
}

// bandScore maps value through ascending bands: below bands[0] scores
// scores[0], at or above bands[i] scores scores[i+1].
func bandScore(value float64, bands, scores []float64) float64 {
	for i := len(bands) - 1; i >= 0; i-- {
		if value >= bands[i] && i+1 < len(scores) {
			return scores[i+1]
		}
	}
	if len(scores) == 0 {
		return 0
	}
	return scores[0]
}

func speedPart(avg *float64, cfg config.GeomagneticConfig) models.Contribution {
	if avg == nil {
		return models.Contribution{Label: "Solar wind speed missing"}
	}
	v := bandScore(*avg, cfg.SpeedBands, cfg.SpeedScores)
	var desc string
	switch {
	case *avg >= 600:
		desc = "High solar wind speed"
	case *avg >= 500:
		desc = "Elevated solar wind speed"
	case *avg >= 400:
		desc = "Moderate solar wind speed"
	default:
		desc = "Low solar wind speed"
	}
	return models.Contribution{
		Contribution: v,
		Label:        fmt.Sprintf("%s (%d km/s) = %s", desc, int(math.Round(*avg)), signed(v)),
	}
}

// bzPart scores the most southward Bz in the window. A northward window
// average overrides the band with the configured penalty.
func bzPart(bzMin, bzAvg *float64, cfg config.GeomagneticConfig) models.Contribution {
	if bzMin == nil {
		return models.Contribution{Label: "Bz missing"}
	}
	if bzAvg != nil && *bzAvg > cfg.BzNorthAvgThreshold {
		return models.Contribution{
			Contribution: cfg.BzNorthPenalty,
			Label:        fmt.Sprintf("Northward Bz (avg %.1f nT, min %.1f nT) = %s", *bzAvg, *bzMin, signed(cfg.BzNorthPenalty)),
		}
	}

	// bands run from weakest (-1) to strongest (-10)
	var v float64
	for i := len(cfg.BzBands) - 1; i >= 0; i-- {
		if *bzMin <= cfg.BzBands[i] {
			v = cfg.BzScores[i]
			break
		}
	}
	var desc string
	switch {
	case *bzMin <= -10:
		desc = "Strongly southward Bz"
	case *bzMin <= -6:
		desc = "Southward Bz"
	case *bzMin <= -3:
		desc = "Moderately southward Bz"
	case *bzMin <= -1:
		desc = "Weakly southward Bz"
	default:
		desc = "Neutral Bz"
	}
	return models.Contribution{
		Contribution: v,
		Label:        fmt.Sprintf("%s (%.1f nT) = %s", desc, *bzMin, signed(v)),
	}
}

func btPart(avg *float64, cfg config.GeomagneticConfig) models.Contribution {
	if avg == nil {
		return models.Contribution{Label: "Bt missing"}
	}
	v := bandScore(*avg, cfg.BtBands, cfg.BtScores)
	var desc string
	switch {
	case *avg >= 20:
		desc = "Strong IMF Bt"
	case *avg >= 15:
		desc = "Elevated IMF Bt"
	case *avg >= 10:
		desc = "Moderate IMF Bt"
	default:
		desc = "Weak IMF Bt"
	}
	return models.Contribution{
		Contribution: v,
		Label:        fmt.Sprintf("%s (%.1f nT) = %s", desc, *avg, signed(v)),
	}
}

func densityPart(avg *float64, cfg config.GeomagneticConfig) models.Contribution {
	if avg == nil {
		return models.Contribution{Label: "Density missing"}
	}
	v := cfg.DensityAboveScore
	desc := "Extreme density, neutralised"
	descs := []string{"Very low density", "Low density", "Moderate density", "Elevated density", "High density"}
	for i, b := range cfg.DensityBands {
		if *avg < b.Upper || (b.Inclusive && *avg == b.Upper) {
			v = b.Score
			if i < len(descs) {
				desc = descs[i]
			} else {
				desc = "Density"
			}
			break
		}
	}
	return models.Contribution{
		Contribution: v,
		Label:        fmt.Sprintf("%s (%.1f p/cc) = %s", desc, *avg, signed(v)),
	}
}

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("+%g", v)
}

func average(xs []*float64) *float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if x != nil && isFinite(*x) {
			sum += *x
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return models.Ptr(sum / float64(n))
}

func minimum(xs []*float64) *float64 {
	var out *float64
	for _, x := range xs {
		if x == nil || !isFinite(*x) {
			continue
		}
		if out == nil || *x < *out {
			out = models.Ptr(*x)
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
