// Package light classifies light pollution from distance to known city cores.
package light

import (
	"math"
	"sort"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Classifier maps a point to a light-pollution category.
type Classifier struct {
	cfg  config.LightPollutionConfig
	keys []string
}

func NewClassifier(cfg config.LightPollutionConfig) *Classifier {
	keys := make([]string, 0, len(cfg.Zones))
	for k := range cfg.Zones {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Classifier{cfg: cfg, keys: keys}
}

// Classify returns the category of the point relative to the nearest zone.
// With the provider switched off, or no zones configured, it is unknown.
func (c *Classifier) Classify(lat, lon float64) models.LightDetail {
	if c.cfg.Provider != "zones" || len(c.keys) == 0 {
		return models.LightDetail{Source: c.cfg.Provider, Category: models.LightUnknown}
	}

	bestKey := ""
	bestDist := math.Inf(1)
	for _, k := range c.keys {
		z := c.cfg.Zones[k]
		if d := HaversineKm(lat, lon, z.Lat, z.Lon); d < bestDist {
			bestKey, bestDist = k, d
		}
	}
	zone := c.cfg.Zones[bestKey]

	urbanKm, suburbanKm := zone.UrbanKm, zone.SuburbanKm
	if urbanKm <= 0 {
		urbanKm = 2
	}
	if suburbanKm <= 0 {
		suburbanKm = 5
	}

	detail := models.LightDetail{
		Source:     "zones",
		Category:   models.LightRural,
		Bortle:     3,
		CityKey:    bestKey,
		CityName:   zone.Name,
		DistanceKm: models.Ptr(math.Round(bestDist*10) / 10),
	}
	switch {
	case bestDist <= urbanKm:
		detail.Category, detail.Bortle = models.LightUrbanCore, 8
	case bestDist <= suburbanKm:
		detail.Category, detail.Bortle = models.LightSuburban, 6
	}
	return detail
}

// Multiplier returns the sightability factor for a Bortle class. Classes
// outside the table use the unknown multiplier.
func (c *Classifier) Multiplier(bortle int) float64 {
	if bortle < 1 || bortle > len(c.cfg.BortleMultipliers) {
		return c.cfg.UnknownMultiplier
	}
	return c.cfg.BortleMultipliers[bortle-1]
}

// Factor returns the multiplier for a classified point. A known Bortle
// class wins; otherwise the category stands in for its typical class.
func (c *Classifier) Factor(cat models.LightCategory, bortle int) float64 {
	if bortle == 0 {
		bortle = CategoryBortle(cat)
	}
	return c.Multiplier(bortle)
}

// CategoryBortle is the Bortle class the classifier assigns to a category,
// or 0 for unknown.
func CategoryBortle(cat models.LightCategory) int {
	switch cat {
	case models.LightUrbanCore:
		return 8
	case models.LightSuburban:
		return 6
	case models.LightRural:
		return 3
	default:
		return 0
	}
}

// DarknessScore rates a category from 0 (bright) to 1 (dark) for spot ranking.
func DarknessScore(cat models.LightCategory) float64 {
	switch cat {
	case models.LightUrbanCore:
		return 0.1
	case models.LightSuburban:
		return 0.6
	case models.LightRural:
		return 1.0
	default:
		return 0.5
	}
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// DestPoint returns the point distKm away from (lat, lon) along bearingDeg.
func DestPoint(lat, lon, bearingDeg, distKm float64) (float64, float64) {
	br := toRad(bearingDeg)
	dR := distKm / EarthRadiusKm
	phi1, lambda1 := toRad(lat), toRad(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(dR) + math.Cos(phi1)*math.Sin(dR)*math.Cos(br))
	lambda2 := lambda1 + math.Atan2(math.Sin(br)*math.Sin(dR)*math.Cos(phi1), math.Cos(dR)-math.Sin(phi1)*math.Sin(phi2))

	return toDeg(phi2), math.Mod(toDeg(lambda2)+540, 360) - 180
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
