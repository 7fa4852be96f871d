package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput marks caller bugs such as non-finite coordinates.
var ErrInvalidInput = errors.New("invalid input")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ValidateCoordinates rejects non-finite or out-of-range coordinates.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return &ValidationError{Field: "lat", Reason: "not a finite number"}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return &ValidationError{Field: "lon", Reason: "not a finite number"}
	}
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Reason: fmt.Sprintf("%.4f outside [-90, 90]", lat)}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "lon", Reason: fmt.Sprintf("%.4f outside [-180, 180]", lon)}
	}
	return nil
}
