package models

import "time"

// Contribution is one labelled term of a banded score.
type Contribution struct {
	Contribution float64 `json:"contribution"`
	Label        string  `json:"label"`
}

type GeomagneticInputs struct {
	WindowSize int      `json:"windowSize"`
	SpeedAvg   *float64 `json:"speedAvg"`
	DensityAvg *float64 `json:"densityAvg"`
	BzMin      *float64 `json:"bzMin"`
	BzAvg      *float64 `json:"bzAvg"`
	BtAvg      *float64 `json:"btAvg"`
}

type ScoreWindow struct {
	Count int        `json:"count"`
	From  *time.Time `json:"from"`
	To    *time.Time `json:"to"`
}

type GeomagneticScoreResult struct {
	Score     float64           `json:"score"`
	Breakdown []Contribution    `json:"breakdown"`
	Inputs    GeomagneticInputs `json:"inputs"`
	Window    ScoreWindow       `json:"window"`
}

type IndexKind string

const (
	IndexSolarWind IndexKind = "solarwind"
	IndexHPO       IndexKind = "hpo"
	IndexKp        IndexKind = "kp"
	IndexHemi      IndexKind = "hemi"
	IndexAE        IndexKind = "ae"
	IndexDst       IndexKind = "dst"
)

// IndexKinds lists every index in blend order.
var IndexKinds = []IndexKind{IndexHPO, IndexKp, IndexSolarWind, IndexHemi, IndexAE, IndexDst}

// IndexSample is one geomagnetic index converted to the common scales.
// Weight is the configured weight; NormalizedWeight is set by the blender.
type IndexSample struct {
	Kind             IndexKind `json:"kind"`
	KpEquivalent     float64   `json:"kpEquivalent"`
	Score10          float64   `json:"score10"`
	Weight           float64   `json:"weight"`
	NormalizedWeight float64   `json:"normalizedWeight"`
	Time             time.Time `json:"timestamp"`
	Raw              *float64  `json:"raw,omitempty"`
}

type StaleStatus string

const (
	StaleFresh    StaleStatus = "fresh"
	StaleSlightly StaleStatus = "slightly-stale"
	StaleStale    StaleStatus = "stale"
	StaleVery     StaleStatus = "very-stale"
)

type BlendDetail struct {
	Parts     []IndexSample           `json:"parts"`
	SolarWind *GeomagneticScoreResult `json:"solarWind,omitempty"`
}

type BlendedGeomagnetic struct {
	TimeTag       time.Time   `json:"timeTag"`
	GlobalScore10 float64     `json:"globalScore10"`
	KpProxy       float64     `json:"kpProxy"`
	StaleHours    float64     `json:"staleHours"`
	StaleStatus   StaleStatus `json:"staleStatus"`
	Detail        BlendDetail `json:"detail"`
}

type LatitudeAdjustment struct {
	Factor          float64 `json:"factor"`
	AdjustedScore10 float64 `json:"adjustedScore10"`
	BoundaryLat     float64 `json:"boundaryLat"`
	KpApprox        float64 `json:"kpApprox"`
	Label           string  `json:"label"`
}
