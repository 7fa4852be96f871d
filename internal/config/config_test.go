package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.5, cfg.Weather.Consensus.Weights["met"])
	assert.Equal(t, 0.55, cfg.Geomagnetic.Blend["hpo"])
	assert.Len(t, cfg.AuroralOval.KpBoundaryLat, 10)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aurorawatch.yaml")
	yaml := `
weather:
  consensus:
    method: median
geomagnetic:
  window_size: 3
lightpollution:
  provider: "off"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "median", cfg.Weather.Consensus.Method)
	assert.Equal(t, 3, cfg.Geomagnetic.WindowSize)
	assert.Equal(t, "off", cfg.LightPollution.Provider)
	assert.Equal(t, 0.3, cfg.Weather.Consensus.Weights["smhi"], "untouched keys keep defaults")
	assert.Equal(t, []float64{400, 500, 600, 700}, cfg.Geomagnetic.SpeedBands)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AURORA_WEATHER_CONSENSUS_WEIGHTS_MET", "0.6")
	t.Setenv("AURORA_GEOMAGNETIC_SOURCES_USE_DST", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, cfg.Weather.Consensus.Weights["met"], 1e-9)
	assert.True(t, cfg.Geomagnetic.Sources.UseDst)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown method", func(c *Config) { c.Weather.Consensus.Method = "mean" }},
		{"levels inverted", func(c *Config) { c.Weather.Consensus.Levels.Medium = 50 }},
		{"unknown model", func(c *Config) { c.Sightability.Model = "ml" }},
		{"twilight inverted", func(c *Config) { c.Sightability.Twilight.ToDeg = -10 }},
		{"zero window", func(c *Config) { c.Geomagnetic.WindowSize = 0 }},
		{"speed scores mismatch", func(c *Config) { c.Geomagnetic.SpeedScores = []float64{0, 1} }},
		{"bands descending", func(c *Config) { c.Geomagnetic.BtBands = []float64{20, 15, 10} }},
		{"short aux map", func(c *Config) { c.Geomagnetic.Maps.AeNT = [][2]float64{{0, 0}} }},
		{"zero blend", func(c *Config) { c.Geomagnetic.Blend = map[string]float64{"hpo": 0} }},
		{"short oval table", func(c *Config) { c.AuroralOval.KpBoundaryLat = []float64{67, 66} }},
		{"zero falloff", func(c *Config) { c.AuroralOval.FalloffDeg = 0 }},
		{"unknown light provider", func(c *Config) { c.LightPollution.Provider = "viirs" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "json")
	require.NotNil(t, logger)
	assert.True(t, logger.Handler().Enabled(context.Background(), -4))

	logger = NewLogger("bogus", "text")
	assert.False(t, logger.Handler().Enabled(context.Background(), -4))
}
