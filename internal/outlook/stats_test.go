package outlook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/aurorawatch/internal/models"
)

func hourAt(t time.Time, score float64, clouds *float64, illum, moonAlt float64) HourOutlook {
	return HourOutlook{
		Time: t,
		Sightability: models.SightabilityResult{
			Score: score,
			Inputs: models.SightabilityInputs{
				CloudsPct:                clouds,
				MoonIlluminationFraction: illum,
				MoonAltitudeDeg:          moonAlt,
			},
		},
	}
}

func TestStats(t *testing.T) {
	base := time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)
	halves := []models.EveningWindow{
		{Label: "early", Start: base, End: base.Add(3 * time.Hour)},
		{Label: "late", Start: base.Add(3 * time.Hour), End: base.Add(4 * time.Hour)},
		{Label: "empty", Start: base.Add(10 * time.Hour), End: base.Add(11 * time.Hour)},
	}
	hours := []HourOutlook{
		hourAt(base, 2, models.Ptr(10.0), 0.5, 10),
		hourAt(base.Add(time.Hour), 4, nil, 0.5, 20),
		hourAt(base.Add(2*time.Hour), 6, models.Ptr(30.0), 0.5, 30),
		hourAt(base.Add(3*time.Hour), 8, nil, 1, -5),
	}

	st := Stats(halves, hours)
	require.Len(t, st, 3)

	early := st[0]
	assert.Equal(t, 3, early.HourCount)
	assert.InDelta(t, 4.0, *early.AvgScore, 1e-9)
	assert.Equal(t, 4.0, *early.MidScore)
	assert.InDelta(t, 20.0, *early.AvgCloudsPct, 1e-9)
	assert.InDelta(t, 0.5, *early.AvgMoonIllumination, 1e-9)
	assert.InDelta(t, 20.0, *early.AvgMoonAltitudeDeg, 1e-9)

	late := st[1]
	assert.Equal(t, 1, late.HourCount)
	assert.Equal(t, 8.0, *late.MidScore)
	assert.Nil(t, late.AvgCloudsPct)

	empty := st[2]
	assert.Zero(t, empty.HourCount)
	assert.Nil(t, empty.AvgScore)
	assert.Nil(t, empty.MidScore)
}
