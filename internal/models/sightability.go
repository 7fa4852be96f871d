package models

import "time"

type LightCategory string

const (
	LightUrbanCore LightCategory = "urban_core"
	LightSuburban  LightCategory = "suburban"
	LightRural     LightCategory = "rural"
	LightUnknown   LightCategory = "unknown"
)

// LightDetail classifies a point's light pollution. Bortle 0 means unknown.
type LightDetail struct {
	Source     string        `json:"source"`
	Category   LightCategory `json:"category"`
	Bortle     int           `json:"bortle"`
	CityKey    string        `json:"cityKey,omitempty"`
	CityName   string        `json:"cityName,omitempty"`
	DistanceKm *float64      `json:"distanceKm,omitempty"`
}

// BreakdownEntry explains one factor. Code and Params are stable for
// localisation; Label is a rendered English fallback.
type BreakdownEntry struct {
	Code         string         `json:"code"`
	Params       map[string]any `json:"params"`
	Label        string         `json:"label"`
	Contribution float64        `json:"contribution"`
}

type SightabilityInputs struct {
	SunAltitudeDeg           float64       `json:"sunAltitudeDeg"`
	MoonAltitudeDeg          float64       `json:"moonAltitudeDeg"`
	MoonIlluminationFraction float64       `json:"moonIlluminationFraction"`
	CloudsPct                *float64      `json:"cloudsPct"`
	GeomagneticScore10       float64       `json:"geomagneticScore10"`
	LightCategory            LightCategory `json:"lightCategory"`
	Bortle                   int           `json:"bortle,omitempty"`
}

type SightabilityFactors struct {
	Sun    float64 `json:"sun"`
	Clouds float64 `json:"clouds"`
	Moon   float64 `json:"moon"`
	Light  float64 `json:"light"`
}

type SightabilityResult struct {
	Algo      string              `json:"algo"`
	Score     float64             `json:"score"`
	Breakdown []BreakdownEntry    `json:"breakdown"`
	Inputs    SightabilityInputs  `json:"inputs"`
	Factors   SightabilityFactors `json:"factors"`
}

type WindowSource string

const (
	WindowSeasonal WindowSource = "seasonal"
	WindowFallback WindowSource = "fallback"
)

// EveningWindow bounds the observable night. End is always after Start.
type EveningWindow struct {
	Label  string       `json:"label,omitempty"`
	Start  time.Time    `json:"startUtc"`
	End    time.Time    `json:"endUtc"`
	Source WindowSource `json:"source"`
}

// Hours returns the window length in hours.
func (w EveningWindow) Hours() float64 {
	return w.End.Sub(w.Start).Hours()
}

// Contains reports whether t falls in [Start, End).
func (w EveningWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
