package config

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Weather: WeatherConfig{
			Cache:        CacheConfig{Dir: "cache", TTLMinutes: 30},
			MetUserAgent: "aurorawatch/1.0 (github.com/lox/aurorawatch)",
			Providers:    []string{"met", "smhi", "openmeteo"},
			Consensus: ConsensusConfig{
				Method: "weighted-median",
				Weights: map[string]float64{
					"met":       0.5,
					"smhi":      0.3,
					"openmeteo": 0.2,
				},
				DisagreementThreshold: 40,
				Levels:                LevelConfig{Medium: 25, High: 40},
			},
		},
		Sightability: SightabilityConfig{
			Model:      "multiplicative",
			SunGateDeg: -8,
			Weights: SightabilityWeight{
				Sun:         1.0,
				Clouds:      1.6,
				MoonLowGeo:  1.2,
				MoonHighGeo: 0.35,
			},
			Twilight:          TwilightConfig{FromDeg: -8, ToDeg: 0, AllowanceMax: 0.35},
			OvercastThreshold: 80,
			OvercastPenalty:   0.85,
			MoonFloor:         0.5,
			MoonScale:         0.6,
			MoonRampFromDeg:   -2,
			MoonRampSpanDeg:   20,
			GeoMidScore:       5,
		},
		Geomagnetic: GeomagneticConfig{
			WindowSize:          6,
			ClampMin:            0,
			ClampMax:            10,
			SpeedBands:          []float64{400, 500, 600, 700},
			SpeedScores:         []float64{0, 1, 2, 3, 4},
			BzBands:             []float64{-1, -3, -6, -10},
			BzScores:            []float64{1, 2, 3, 4},
			BzNorthAvgThreshold: 0,
			BzNorthPenalty:      -2,
			BtBands:             []float64{10, 15, 20},
			BtScores:            []float64{0, 1, 2, 3},
			DensityBands: []DensityBand{
				{Upper: 1, Score: -2},
				{Upper: 2, Score: -1},
				{Upper: 5, Inclusive: true, Score: 0},
				{Upper: 15, Inclusive: true, Score: 1},
				{Upper: 30, Inclusive: true, Score: 0.5},
			},
			DensityAboveScore: 0,
			Sources:           IndexSources{UseHemiPower: true, UseAE: true, UseDst: false},
			Blend: map[string]float64{
				"hpo":       0.55,
				"kp":        0.15,
				"solarwind": 0.10,
				"hemi":      0.12,
				"ae":        0.06,
				"dst":       0.02,
			},
			Maps: AuxMaps{
				HemiPowerGW: [][2]float64{{0, 0}, {20, 2}, {50, 5}, {100, 8}, {150, 10}},
				AeNT:        [][2]float64{{0, 0}, {100, 2}, {300, 5}, {700, 8}, {1200, 10}},
				DstNT:       [][2]float64{{0, 0}, {50, 2.5}, {100, 5}, {150, 7.5}, {250, 10}},
			},
			MemoTTLMinutes: 10,
		},
		SolarWind: SolarWindConfig{
			SuspectLimits: SuspectLimits{
				SpeedMin:   100,
				SpeedMax:   2000,
				DensityMin: 0,
				DensityMax: 60,
				BtAbsMax:   100,
				BzAbsMax:   100,
			},
			SourcesOrder: []string{"swpc_products_2h", "swpc_products_1d", "ace_1h"},
			StaleHours:   StaleHours{Fresh: 1, Slight: 3, Stale: 12},
		},
		AuroralOval: AuroralOvalConfig{
			KpBoundaryLat: []float64{67, 66, 64, 62, 60, 58, 56, 54, 52, 50},
			FalloffDeg:    10,
			KpFactor:      0.9,
		},
		LightPollution: LightPollutionConfig{
			Provider: "zones",
			Zones: map[string]Zone{
				"umea":      {Name: "Umeå", Lat: 63.825, Lon: 20.263, UrbanKm: 2, SuburbanKm: 5},
				"ostersund": {Name: "Östersund", Lat: 63.179, Lon: 14.635, UrbanKm: 2, SuburbanKm: 5},
			},
			BortleMultipliers: []float64{1.00, 0.97, 0.94, 0.90, 0.85, 0.77, 0.68, 0.60},
			UnknownMultiplier: 0.85,
		},
		Window: WindowConfig{
			FallbackStartHour: 18,
			FallbackEndHour:   2,
			MinTotalHours:     6,
			MaxHalfHours:      4,
			NightMinHours:     6,
			TimezoneAware:     true,
		},
		HPO: HPOConfig{
			HP60URL:         "https://spaceweather.gfz.de/fileadmin/SW-Monitor/hp60_product_file_FORECAST_HP60_SWIFT_DRIVEN_LAST.json",
			HP30URL:         "https://spaceweather.gfz.de/fileadmin/SW-Monitor/hp30_product_file_FORECAST_HP30_SWIFT_DRIVEN_LAST.json",
			CacheTTLMinutes: 30,
		},
		Kp: KpConfig{
			FTPHost: "ftp.gfz-potsdam.de:21",
			FTPPath: "/pub/home/obs/Kp_ap_Ap_SN_F107/Kp_ap_nowcast.txt",
			UseFTP:  true,
		},
		Spots: SpotsConfig{
			RingDistancesKm:  []float64{1, 3, 5},
			BearingsDeg:      []float64{0, 45, 90, 135, 180, 225, 270, 315},
			PreferNorthBonus: 0.5,
			CloudsWeight:     0.7,
			LightWeight:      0.3,
			WeatherMode:      "openmeteo_only",
		},
	}
}
