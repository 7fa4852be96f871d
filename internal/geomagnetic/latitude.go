package geomagnetic

import (
	"fmt"
	"math"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

// BoundaryLat interpolates the equatorward oval edge for a Kp value.
func BoundaryLat(kp float64, table []float64) float64 {
	if len(table) == 0 {
		return 60
	}
	kp = clamp(kp, 0, float64(len(table)-1))
	k0, k1 := int(math.Floor(kp)), int(math.Ceil(kp))
	if k0 == k1 {
		return table[k0]
	}
	return table[k0] + (table[k1]-table[k0])*(kp-float64(k0))
}

// AdjustForLatitude scales a global score by how far latDeg sits south of
// the oval boundary for kp. A nil kp is approximated from the score. The
// effect reaches zero FalloffDeg south of the boundary.
func AdjustForLatitude(score10, latDeg float64, kp *float64, cfg config.AuroralOvalConfig) models.LatitudeAdjustment {
	approx := score10 * cfg.KpFactor
	if kp != nil && !math.IsNaN(*kp) && !math.IsInf(*kp, 0) {
		approx = *kp
	}
	approx = clamp(approx, 0, 9)
	boundary := BoundaryLat(approx, cfg.KpBoundaryLat)

	fall := cfg.FalloffDeg
	delta := boundary - latDeg // positive means south of the boundary
	factor := clamp(1-clamp(delta, 0, fall)/fall, 0, 1)

	var label string
	if delta <= 0 {
		label = fmt.Sprintf("At/north of oval boundary (%.1f°), full effect", boundary)
	} else {
		label = fmt.Sprintf("~%.1f° south of boundary (%.1f°), factor %.2f", delta, boundary, factor)
	}

	return models.LatitudeAdjustment{
		Factor:          factor,
		AdjustedScore10: clamp(score10*factor, 0, 10),
		BoundaryLat:     boundary,
		KpApprox:        approx,
		Label:           label,
	}
}
