package models

import (
	"encoding/json"
	"time"
)

// Location is a named observing point.
type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	ZoneKey   string  `json:"zoneKey,omitempty"` // light-zone city key, if near one
	Active    bool    `json:"active"`
}

// HourlyCloudSample is one provider's cloud cover for one UTC hour.
type HourlyCloudSample struct {
	Time     time.Time `json:"timestamp"`
	Source   string    `json:"sourceId"`
	CloudPct *float64  `json:"cloudPct"`
}

type ConsensusMethod string

const (
	MethodNone           ConsensusMethod = "none"
	MethodSingle         ConsensusMethod = "single"
	MethodMedian         ConsensusMethod = "median"
	MethodWeightedMedian ConsensusMethod = "weighted-median"
)

// DisagreementLevel marshals to null when unset.
type DisagreementLevel string

const (
	DisagreementLow    DisagreementLevel = "low"
	DisagreementMedium DisagreementLevel = "medium"
	DisagreementHigh   DisagreementLevel = "high"
)

func (l DisagreementLevel) MarshalJSON() ([]byte, error) {
	if l == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(l))
}

func (l *DisagreementLevel) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = DisagreementLevel(s)
	return nil
}

// ConsensusHourly is the fused cloud cover for one hour.
// ConsensusPct is nil iff PerSource holds no numeric value.
type ConsensusHourly struct {
	Time              time.Time           `json:"timestamp"`
	ConsensusPct      *float64            `json:"consensusPct"`
	Method            ConsensusMethod     `json:"method"`
	PerSource         map[string]*float64 `json:"perSource"`
	SpreadPct         *float64            `json:"spreadPct"`
	DisagreementLevel DisagreementLevel   `json:"disagreementLevel"`
	Disagree          bool                `json:"disagree"`
	OutlierSource     *string             `json:"outlierSource"`
	OutlierDiffPct    *float64            `json:"outlierDiffPct"`
}

// SolarWindSample is one merged magnetometer + plasma reading.
type SolarWindSample struct {
	Time    time.Time `json:"timestamp"`
	Bt      *float64  `json:"bt"`
	Bz      *float64  `json:"bz"`
	By      *float64  `json:"by"`
	Bx      *float64  `json:"bx"`
	Speed   *float64  `json:"speed"`
	Density *float64  `json:"density"`
	Suspect bool      `json:"suspect"`
	Source  string    `json:"source,omitempty"`
	Flags   []string  `json:"flags,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
