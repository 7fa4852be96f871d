package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable of the scoring engine and its adapters.
type Config struct {
	Log            LogConfig            `mapstructure:"log"`
	Weather        WeatherConfig        `mapstructure:"weather"`
	Sightability   SightabilityConfig   `mapstructure:"sightability"`
	Geomagnetic    GeomagneticConfig    `mapstructure:"geomagnetic"`
	SolarWind      SolarWindConfig      `mapstructure:"solarwind"`
	AuroralOval    AuroralOvalConfig    `mapstructure:"auroraloval"`
	LightPollution LightPollutionConfig `mapstructure:"lightpollution"`
	Window         WindowConfig         `mapstructure:"window"`
	HPO            HPOConfig            `mapstructure:"hpo"`
	Kp             KpConfig             `mapstructure:"kp"`
	Spots          SpotsConfig          `mapstructure:"spots"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

type WeatherConfig struct {
	Cache        CacheConfig     `mapstructure:"cache"`
	MetUserAgent string          `mapstructure:"met_user_agent"`
	Providers    []string        `mapstructure:"providers"`
	Consensus    ConsensusConfig `mapstructure:"consensus"`
}

type CacheConfig struct {
	Dir        string `mapstructure:"dir"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

type ConsensusConfig struct {
	Method                string             `mapstructure:"method"` // weighted-median, median
	Weights               map[string]float64 `mapstructure:"weights"`
	DisagreementThreshold float64            `mapstructure:"disagreement_threshold"`
	Levels                LevelConfig        `mapstructure:"levels"`
}

type LevelConfig struct {
	Medium float64 `mapstructure:"medium"`
	High   float64 `mapstructure:"high"`
}

type SightabilityConfig struct {
	Model             string             `mapstructure:"model"` // multiplicative, additive
	SunGateDeg        float64            `mapstructure:"sun_gate_deg"`
	Weights           SightabilityWeight `mapstructure:"weights"`
	Twilight          TwilightConfig     `mapstructure:"twilight"`
	OvercastThreshold float64            `mapstructure:"overcast_threshold"`
	OvercastPenalty   float64            `mapstructure:"overcast_penalty"`
	MoonFloor         float64            `mapstructure:"moon_floor"`
	MoonScale         float64            `mapstructure:"moon_scale"`
	MoonRampFromDeg   float64            `mapstructure:"moon_ramp_from_deg"`
	MoonRampSpanDeg   float64            `mapstructure:"moon_ramp_span_deg"`
	GeoMidScore       float64            `mapstructure:"geo_mid_score"`
}

// SightabilityWeight carries the recognised factor weights. Sun and Clouds
// are not consumed by the multiplicative model.
type SightabilityWeight struct {
	Sun         float64 `mapstructure:"sun"`
	Clouds      float64 `mapstructure:"clouds"`
	MoonLowGeo  float64 `mapstructure:"moon_low_geo"`
	MoonHighGeo float64 `mapstructure:"moon_high_geo"`
}

type TwilightConfig struct {
	FromDeg      float64 `mapstructure:"from_deg"`
	ToDeg        float64 `mapstructure:"to_deg"`
	AllowanceMax float64 `mapstructure:"allowance_max"`
}

type GeomagneticConfig struct {
	WindowSize          int                `mapstructure:"window_size"` // samples, not hours: 6 minutes of 1-minute SWPC data
	ClampMin            float64            `mapstructure:"clamp_min"`
	ClampMax            float64            `mapstructure:"clamp_max"`
	SpeedBands          []float64          `mapstructure:"speed_bands"`
	SpeedScores         []float64          `mapstructure:"speed_scores"`
	BzBands             []float64          `mapstructure:"bz_bands"`
	BzScores            []float64          `mapstructure:"bz_scores"`
	BzNorthAvgThreshold float64            `mapstructure:"bz_north_avg_threshold"`
	BzNorthPenalty      float64            `mapstructure:"bz_north_penalty"`
	BtBands             []float64          `mapstructure:"bt_bands"`
	BtScores            []float64          `mapstructure:"bt_scores"`
	DensityBands        []DensityBand      `mapstructure:"density_bands"`
	DensityAboveScore   float64            `mapstructure:"density_above_score"`
	Sources             IndexSources       `mapstructure:"sources"`
	Blend               map[string]float64 `mapstructure:"blend"`
	Maps                AuxMaps            `mapstructure:"maps"`
	MemoTTLMinutes      int                `mapstructure:"memo_ttl_minutes"`
}

// DensityBand scores values below Upper (or at Upper when Inclusive).
type DensityBand struct {
	Upper     float64 `mapstructure:"upper"`
	Inclusive bool    `mapstructure:"inclusive"`
	Score     float64 `mapstructure:"score"`
}

type IndexSources struct {
	UseHemiPower bool `mapstructure:"use_hemi_power"`
	UseAE        bool `mapstructure:"use_ae"`
	UseDst       bool `mapstructure:"use_dst"`
}

// AuxMaps are ordered (x, score) breakpoints.
type AuxMaps struct {
	HemiPowerGW [][2]float64 `mapstructure:"hemi_power_gw"`
	AeNT        [][2]float64 `mapstructure:"ae_nt"`
	DstNT       [][2]float64 `mapstructure:"dst_nt"`
}

type SolarWindConfig struct {
	SuspectLimits SuspectLimits `mapstructure:"suspect_limits"`
	SourcesOrder  []string      `mapstructure:"sources_order"`
	StaleHours    StaleHours    `mapstructure:"stale_hours"`
}

type SuspectLimits struct {
	SpeedMin   float64 `mapstructure:"speed_min"`
	SpeedMax   float64 `mapstructure:"speed_max"`
	DensityMin float64 `mapstructure:"density_min"`
	DensityMax float64 `mapstructure:"density_max"`
	BtAbsMax   float64 `mapstructure:"bt_abs_max"`
	BzAbsMax   float64 `mapstructure:"bz_abs_max"`
}

type StaleHours struct {
	Fresh  float64 `mapstructure:"fresh"`
	Slight float64 `mapstructure:"slight"`
	Stale  float64 `mapstructure:"stale"`
}

type AuroralOvalConfig struct {
	KpBoundaryLat []float64 `mapstructure:"kp_boundary_lat"` // indexed by integer Kp
	FalloffDeg    float64   `mapstructure:"falloff_deg"`
	KpFactor      float64   `mapstructure:"kp_factor"`
}

type LightPollutionConfig struct {
	Provider          string          `mapstructure:"provider"` // zones, off
	Zones             map[string]Zone `mapstructure:"zones"`
	BortleMultipliers []float64       `mapstructure:"bortle_multipliers"` // index = Bortle-1
	UnknownMultiplier float64         `mapstructure:"unknown_multiplier"`
}

type Zone struct {
	Name       string  `mapstructure:"name"`
	Lat        float64 `mapstructure:"lat"`
	Lon        float64 `mapstructure:"lon"`
	UrbanKm    float64 `mapstructure:"urban_km"`
	SuburbanKm float64 `mapstructure:"suburban_km"`
}

type WindowConfig struct {
	FallbackStartHour int     `mapstructure:"fallback_start_hour"`
	FallbackEndHour   int     `mapstructure:"fallback_end_hour"`
	MinTotalHours     float64 `mapstructure:"min_total_hours"`
	MaxHalfHours      float64 `mapstructure:"max_half_hours"`
	NightMinHours     int     `mapstructure:"night_min_hours"`
	TimezoneAware     bool    `mapstructure:"timezone_aware"`
}

type HPOConfig struct {
	HP60URL         string `mapstructure:"hp60_url"`
	HP30URL         string `mapstructure:"hp30_url"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes"`
}

type KpConfig struct {
	HourlyJSONURL string `mapstructure:"hourly_json_url"`
	FTPHost       string `mapstructure:"ftp_host"`
	FTPPath       string `mapstructure:"ftp_path"`
	UseFTP        bool   `mapstructure:"use_ftp"`
}

type SpotsConfig struct {
	RingDistancesKm  []float64 `mapstructure:"ring_distances_km"`
	BearingsDeg      []float64 `mapstructure:"bearings_deg"`
	PreferNorthBonus float64   `mapstructure:"prefer_north_bonus"`
	CloudsWeight     float64   `mapstructure:"clouds_weight"`
	LightWeight      float64   `mapstructure:"light_weight"`
	WeatherMode      string    `mapstructure:"weather_mode"` // openmeteo_only, multi
}

// envKeys are the leaves that may be overridden from AURORA_* variables.
var envKeys = []string{
	"log.level",
	"log.format",
	"weather.cache.dir",
	"weather.cache.ttl_minutes",
	"weather.met_user_agent",
	"weather.consensus.method",
	"weather.consensus.weights.met",
	"weather.consensus.weights.smhi",
	"weather.consensus.weights.openmeteo",
	"weather.consensus.disagreement_threshold",
	"weather.consensus.levels.medium",
	"weather.consensus.levels.high",
	"sightability.model",
	"sightability.sun_gate_deg",
	"sightability.weights.moon_low_geo",
	"sightability.weights.moon_high_geo",
	"sightability.twilight.from_deg",
	"sightability.twilight.to_deg",
	"sightability.twilight.allowance_max",
	"geomagnetic.window_size",
	"geomagnetic.blend.hpo",
	"geomagnetic.blend.kp",
	"geomagnetic.blend.solarwind",
	"geomagnetic.blend.hemi",
	"geomagnetic.blend.ae",
	"geomagnetic.blend.dst",
	"geomagnetic.sources.use_dst",
	"lightpollution.provider",
	"hpo.hp60_url",
	"hpo.hp30_url",
	"kp.hourly_json_url",
	"kp.use_ftp",
	"window.timezone_aware",
}

// Load reads an optional YAML file and AURORA_* environment overrides on top
// of Default. An empty path searches ./ and ./config for aurorawatch.yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aurorawatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	defaults := cfg.flatten()
	for _, key := range envKeys {
		if val, ok := defaults[key]; ok {
			v.SetDefault(key, val)
		}
	}

	v.SetEnvPrefix("AURORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flatten exposes the env-overridable leaves of c keyed by dotted path.
func (c *Config) flatten() map[string]any {
	return map[string]any{
		"log.level":                                c.Log.Level,
		"log.format":                               c.Log.Format,
		"weather.cache.dir":                        c.Weather.Cache.Dir,
		"weather.cache.ttl_minutes":                c.Weather.Cache.TTLMinutes,
		"weather.met_user_agent":                   c.Weather.MetUserAgent,
		"weather.consensus.method":                 c.Weather.Consensus.Method,
		"weather.consensus.weights.met":            c.Weather.Consensus.Weights["met"],
		"weather.consensus.weights.smhi":           c.Weather.Consensus.Weights["smhi"],
		"weather.consensus.weights.openmeteo":      c.Weather.Consensus.Weights["openmeteo"],
		"weather.consensus.disagreement_threshold": c.Weather.Consensus.DisagreementThreshold,
		"weather.consensus.levels.medium":          c.Weather.Consensus.Levels.Medium,
		"weather.consensus.levels.high":            c.Weather.Consensus.Levels.High,
		"sightability.model":                       c.Sightability.Model,
		"sightability.sun_gate_deg":                c.Sightability.SunGateDeg,
		"sightability.weights.moon_low_geo":        c.Sightability.Weights.MoonLowGeo,
		"sightability.weights.moon_high_geo":       c.Sightability.Weights.MoonHighGeo,
		"sightability.twilight.from_deg":           c.Sightability.Twilight.FromDeg,
		"sightability.twilight.to_deg":             c.Sightability.Twilight.ToDeg,
		"sightability.twilight.allowance_max":      c.Sightability.Twilight.AllowanceMax,
		"geomagnetic.window_size":                  c.Geomagnetic.WindowSize,
		"geomagnetic.blend.hpo":                    c.Geomagnetic.Blend["hpo"],
		"geomagnetic.blend.kp":                     c.Geomagnetic.Blend["kp"],
		"geomagnetic.blend.solarwind":              c.Geomagnetic.Blend["solarwind"],
		"geomagnetic.blend.hemi":                   c.Geomagnetic.Blend["hemi"],
		"geomagnetic.blend.ae":                     c.Geomagnetic.Blend["ae"],
		"geomagnetic.blend.dst":                    c.Geomagnetic.Blend["dst"],
		"geomagnetic.sources.use_dst":              c.Geomagnetic.Sources.UseDst,
		"lightpollution.provider":                  c.LightPollution.Provider,
		"hpo.hp60_url":                             c.HPO.HP60URL,
		"hpo.hp30_url":                             c.HPO.HP30URL,
		"kp.hourly_json_url":                       c.Kp.HourlyJSONURL,
		"kp.use_ftp":                               c.Kp.UseFTP,
		"window.timezone_aware":                    c.Window.TimezoneAware,
	}
}

// Validate rejects configurations the scorers cannot use.
func (c *Config) Validate() error {
	switch c.Weather.Consensus.Method {
	case "weighted-median", "median":
	default:
		return fmt.Errorf("config: unknown consensus method %q", c.Weather.Consensus.Method)
	}
	if c.Weather.Consensus.Levels.Medium > c.Weather.Consensus.Levels.High {
		return errors.New("config: consensus medium level above high level")
	}
	switch c.Sightability.Model {
	case "multiplicative", "additive":
	default:
		return fmt.Errorf("config: unknown sightability model %q", c.Sightability.Model)
	}
	if c.Sightability.Twilight.ToDeg <= c.Sightability.Twilight.FromDeg {
		return errors.New("config: twilight to_deg must be above from_deg")
	}
	g := c.Geomagnetic
	if g.WindowSize <= 0 {
		return errors.New("config: geomagnetic window_size must be positive")
	}
	if len(g.SpeedScores) != len(g.SpeedBands)+1 {
		return errors.New("config: speed_scores needs one more entry than speed_bands")
	}
	if len(g.BtScores) != len(g.BtBands)+1 {
		return errors.New("config: bt_scores needs one more entry than bt_bands")
	}
	if len(g.BzScores) != len(g.BzBands) {
		return errors.New("config: bz_scores and bz_bands differ in length")
	}
	if !ascending(g.SpeedBands) || !ascending(g.BtBands) {
		return errors.New("config: speed and bt bands must be ascending")
	}
	for _, m := range [][][2]float64{g.Maps.HemiPowerGW, g.Maps.AeNT, g.Maps.DstNT} {
		if len(m) < 2 {
			return errors.New("config: aux maps need at least two breakpoints")
		}
	}
	var total float64
	for _, w := range g.Blend {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return errors.New("config: blend weights sum to zero")
	}
	if len(c.AuroralOval.KpBoundaryLat) != 10 {
		return errors.New("config: kp_boundary_lat needs entries for Kp 0..9")
	}
	if c.AuroralOval.FalloffDeg <= 0 {
		return errors.New("config: falloff_deg must be positive")
	}
	switch c.LightPollution.Provider {
	case "zones", "off":
	default:
		return fmt.Errorf("config: unknown light pollution provider %q", c.LightPollution.Provider)
	}
	if c.Window.MaxHalfHours <= 0 || c.Window.MinTotalHours <= 0 {
		return errors.New("config: window hours must be positive")
	}
	return nil
}

func ascending(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}

// NewLogger creates a slog.Logger from level and format strings.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
