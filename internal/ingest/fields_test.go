package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 1, 15, 12, 34, 0, 0, time.UTC)
	tests := []struct {
		in string
		ok bool
	}{
		{"2025-01-15T12:34:00Z", true},
		{"2025-01-15T12:34:00.000", true},
		{"2025-01-15 12:34:00.000", true},
		{"2025-01-15 12:34:00", true},
		{"2025-01-15T12:34Z", true},
		{"2025-01-15T14:34:00+02:00", true},
		{"15/01/2025", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %v", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestNumber(t *testing.T) {
	doc := gjson.Parse(`{"n": 4.5, "s": " -3.2 ", "empty": "", "bad": "x", "null": null, "b": true}`)

	require.NotNil(t, number(doc.Get("n")))
	assert.Equal(t, 4.5, *number(doc.Get("n")))
	require.NotNil(t, number(doc.Get("s")))
	assert.Equal(t, -3.2, *number(doc.Get("s")))

	for _, key := range []string{"empty", "bad", "null", "b", "missing"} {
		assert.Nil(t, number(doc.Get(key)), key)
	}
}

func TestMatrixRecords(t *testing.T) {
	body := []byte(`[["time_tag","bz_gsm","bt"],["2025-01-15 12:00:00.000","-4.1","6.2"],["2025-01-15 12:01:00.000",null,"6.0"]]`)
	rows := matrixRecords(body)
	require.Len(t, rows, 2)

	assert.Equal(t, "2025-01-15 12:00:00.000", rows[0].firstString(timeFields))
	assert.Equal(t, -4.1, *rows[0].firstNumber(bzFields))
	assert.Nil(t, rows[1].firstNumber(bzFields))
	assert.Equal(t, 6.0, *rows[1].firstNumber(btFields))

	assert.Nil(t, matrixRecords([]byte(`[["time_tag"]]`)))
}

func TestFirstNumberUsesAliasOrder(t *testing.T) {
	r := objectRecord(gjson.Parse(`{"bz": 1, "gsm_bz": 2, "bz_gsm": "bad"}`))
	got := r.firstNumber(bzFields)
	require.NotNil(t, got)
	assert.Equal(t, 2.0, *got)
}

func TestValidateSolarWind(t *testing.T) {
	lim := config.Default().SolarWind.SuspectLimits
	tests := []struct {
		name      string
		sample    models.SolarWindSample
		wantFlags []string
	}{
		{
			name:   "valid sample",
			sample: models.SolarWindSample{Speed: models.Ptr(450.0), Density: models.Ptr(5.0), Bt: models.Ptr(8.0), Bz: models.Ptr(-3.0)},
		},
		{
			name: "empty sample",
		},
		{
			name:      "speed too low",
			sample:    models.SolarWindSample{Speed: models.Ptr(50.0)},
			wantFlags: []string{FlagSpeedOutOfRange},
		},
		{
			name:   "speed at boundary",
			sample: models.SolarWindSample{Speed: models.Ptr(2000.0)},
		},
		{
			name:      "negative density",
			sample:    models.SolarWindSample{Density: models.Ptr(-1.0)},
			wantFlags: []string{FlagDensityOutOfRange},
		},
		{
			name:      "field spikes",
			sample:    models.SolarWindSample{Bt: models.Ptr(150.0), Bz: models.Ptr(-120.0)},
			wantFlags: []string{FlagBtOutOfRange, FlagBzOutOfRange},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFlags, ValidateSolarWind(&tt.sample, lim))
		})
	}
}

func TestMarkSuspect(t *testing.T) {
	lim := config.Default().SolarWind.SuspectLimits
	samples := []models.SolarWindSample{
		{Speed: models.Ptr(400.0)},
		{Speed: models.Ptr(5000.0)},
	}
	markSuspect(samples, lim)
	assert.False(t, samples[0].Suspect)
	assert.Empty(t, samples[0].Flags)
	assert.True(t, samples[1].Suspect)
	assert.Equal(t, []string{FlagSpeedOutOfRange}, samples[1].Flags)
}
