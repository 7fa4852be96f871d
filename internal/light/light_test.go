package light

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(63.825, 20.263, 63.825, 20.263), 1e-9)
	// one degree of latitude
	assert.InDelta(t, 111.19, HaversineKm(63, 20, 64, 20), 0.05)
	// Umeå to Östersund
	assert.InDelta(t, 288, HaversineKm(63.825, 20.263, 63.179, 14.635), 2)
}

func TestDestPoint(t *testing.T) {
	lat, lon := DestPoint(63.825, 20.263, 0, 5)
	assert.InDelta(t, 20.263, lon, 1e-9)
	assert.InDelta(t, 5, HaversineKm(63.825, 20.263, lat, lon), 1e-6)
	assert.Greater(t, lat, 63.825)

	lat, lon = DestPoint(63.825, 20.263, 90, 3)
	assert.InDelta(t, 3, HaversineKm(63.825, 20.263, lat, lon), 1e-6)
	assert.Greater(t, lon, 20.263)

	_, lon = DestPoint(0, 179.99, 90, 10)
	assert.Less(t, lon, -179.0, "wraps across the antimeridian")
}

func TestClassify(t *testing.T) {
	c := NewClassifier(config.Default().LightPollution)

	tests := []struct {
		name   string
		distKm float64
		cat    models.LightCategory
		bortle int
	}{
		{"centre", 0, models.LightUrbanCore, 8},
		{"edge of core", 1.9, models.LightUrbanCore, 8},
		{"suburb", 4, models.LightSuburban, 6},
		{"countryside", 12, models.LightRural, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := DestPoint(63.825, 20.263, 0, tt.distKm)
			got := c.Classify(lat, lon)
			assert.Equal(t, tt.cat, got.Category)
			assert.Equal(t, tt.bortle, got.Bortle)
			assert.Equal(t, "umea", got.CityKey)
			require.NotNil(t, got.DistanceKm)
		})
	}

	near := c.Classify(63.18, 14.64)
	assert.Equal(t, "ostersund", near.CityKey)
	assert.Equal(t, models.LightUrbanCore, near.Category)
}

func TestClassify_ProviderOff(t *testing.T) {
	cfg := config.Default().LightPollution
	cfg.Provider = "off"
	got := NewClassifier(cfg).Classify(63.825, 20.263)
	assert.Equal(t, models.LightUnknown, got.Category)
	assert.Equal(t, 0, got.Bortle)
}

func TestMultiplier(t *testing.T) {
	c := NewClassifier(config.Default().LightPollution)
	assert.Equal(t, 1.0, c.Multiplier(1))
	assert.Equal(t, 0.90, c.Multiplier(4))
	assert.Equal(t, 0.60, c.Multiplier(8))
	assert.Equal(t, 0.85, c.Multiplier(0))
	assert.Equal(t, 0.85, c.Multiplier(9))
}

func TestFactor(t *testing.T) {
	c := NewClassifier(config.Default().LightPollution)
	tests := []struct {
		cat    models.LightCategory
		bortle int
		want   float64
	}{
		{models.LightUrbanCore, 0, 0.60},
		{models.LightSuburban, 0, 0.77},
		{models.LightRural, 0, 0.94},
		{models.LightUnknown, 0, 0.85},
		{"", 0, 0.85},
		{models.LightUrbanCore, 2, 0.97},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			assert.Equal(t, tt.want, c.Factor(tt.cat, tt.bortle))
		})
	}
}

func TestDarknessScore(t *testing.T) {
	assert.Equal(t, 0.1, DarknessScore(models.LightUrbanCore))
	assert.Equal(t, 0.6, DarknessScore(models.LightSuburban))
	assert.Equal(t, 1.0, DarknessScore(models.LightRural))
	assert.Equal(t, 0.5, DarknessScore(models.LightUnknown))
}
