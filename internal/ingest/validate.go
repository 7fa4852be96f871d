package ingest

import (
	"math"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

const (
	FlagSpeedOutOfRange   = "speed_out_of_range"
	FlagDensityOutOfRange = "density_out_of_range"
	FlagBtOutOfRange      = "bt_out_of_range"
	FlagBzOutOfRange      = "bz_out_of_range"
)

// ValidateSolarWind returns the quality flags for a sample. Missing fields
// are never flagged.
func ValidateSolarWind(s *models.SolarWindSample, lim config.SuspectLimits) []string {
	var flags []string

	if s.Speed != nil {
		if *s.Speed < lim.SpeedMin || *s.Speed > lim.SpeedMax {
			flags = append(flags, FlagSpeedOutOfRange)
		}
	}

	if s.Density != nil {
		if *s.Density < lim.DensityMin || *s.Density > lim.DensityMax {
			flags = append(flags, FlagDensityOutOfRange)
		}
	}

	if s.Bt != nil && math.Abs(*s.Bt) > lim.BtAbsMax {
		flags = append(flags, FlagBtOutOfRange)
	}
	if s.Bz != nil && math.Abs(*s.Bz) > lim.BzAbsMax {
		flags = append(flags, FlagBzOutOfRange)
	}

	return flags
}

// markSuspect sets Flags and Suspect on every sample.
func markSuspect(samples []models.SolarWindSample, lim config.SuspectLimits) {
	for i := range samples {
		samples[i].Flags = ValidateSolarWind(&samples[i], lim)
		samples[i].Suspect = len(samples[i].Flags) > 0
	}
}
