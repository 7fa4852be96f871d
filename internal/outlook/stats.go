package outlook

import (
	"time"

	"github.com/lox/aurorawatch/internal/models"
)

// WindowStats summarises the scored hours falling inside one half-window.
// Averages are nil when no hour contributes.
type WindowStats struct {
	Label               string    `json:"label"`
	Start               time.Time `json:"startUtc"`
	End                 time.Time `json:"endUtc"`
	HourCount           int       `json:"hourCount"`
	AvgScore            *float64  `json:"avgScore"`
	MidScore            *float64  `json:"midScore"`
	AvgCloudsPct        *float64  `json:"avgCloudsPct"`
	AvgMoonIllumination *float64  `json:"avgMoonIllumination"`
	AvgMoonAltitudeDeg  *float64  `json:"avgMoonAltitudeDeg"`
}

// Stats computes WindowStats for each half-window.
func Stats(halves []models.EveningWindow, hours []HourOutlook) []WindowStats {
	out := make([]WindowStats, 0, len(halves))
	for _, w := range halves {
		st := WindowStats{Label: w.Label, Start: w.Start, End: w.End}

		var in []HourOutlook
		for _, h := range hours {
			if w.Contains(h.Time) {
				in = append(in, h)
			}
		}
		st.HourCount = len(in)
		if len(in) == 0 {
			out = append(out, st)
			continue
		}

		var score, illum, alt, clouds float64
		cloudHours := 0
		for _, h := range in {
			inputs := h.Sightability.Inputs
			score += h.Sightability.Score
			illum += inputs.MoonIlluminationFraction
			alt += inputs.MoonAltitudeDeg
			if inputs.CloudsPct != nil {
				clouds += *inputs.CloudsPct
				cloudHours++
			}
		}
		n := float64(len(in))
		st.AvgScore = models.Ptr(score / n)
		st.MidScore = models.Ptr(in[len(in)/2].Sightability.Score)
		st.AvgMoonIllumination = models.Ptr(illum / n)
		st.AvgMoonAltitudeDeg = models.Ptr(alt / n)
		if cloudHours > 0 {
			st.AvgCloudsPct = models.Ptr(clouds / float64(cloudHours))
		}
		out = append(out, st)
	}
	return out
}
