// Package spots suggests darker observing points around a location.
package spots

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/consensus"
	"github.com/lox/aurorawatch/internal/light"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/window"
)

const (
	ModeOpenMeteoOnly = "openmeteo_only"
	ModeMulti         = "multi"
)

// maxConcurrent bounds the weather lookups in flight per suggestion.
const maxConcurrent = 4

// CloudSource returns hourly cloud samples keyed by provider.
type CloudSource interface {
	FetchAll(ctx context.Context, lat, lon float64) map[string][]models.HourlyCloudSample
}

// Spot is one ranked candidate point.
type Spot struct {
	Latitude    float64            `json:"lat"`
	Longitude   float64            `json:"lon"`
	DistanceKm  float64            `json:"distanceKm"`
	BearingDeg  float64            `json:"bearingDeg"`
	Light       models.LightDetail `json:"light"`
	LightScore  float64            `json:"lightScore"`
	CloudsEarly *float64           `json:"cloudsEarlyPct"`
	CloudsLate  *float64           `json:"cloudsLatePct"`
	CloudScore  float64            `json:"cloudScore"`
	North       bool               `json:"north"`
	Score       float64            `json:"score"`
	Reasons     []string           `json:"reasons"`
}

type Suggester struct {
	cfg      config.SpotsConfig
	clouds   CloudSource
	light    *light.Classifier
	resolver *window.Resolver
	opts     consensus.Options
	log      *slog.Logger
}

func NewSuggester(cfg *config.Config, clouds CloudSource, resolver *window.Resolver, log *slog.Logger) *Suggester {
	if log == nil {
		log = slog.Default()
	}
	return &Suggester{
		cfg:      cfg.Spots,
		clouds:   clouds,
		light:    light.NewClassifier(cfg.LightPollution),
		resolver: resolver,
		opts:     consensus.OptionsFromConfig(cfg.Weather.Consensus),
		log:      log.With("component", "spots"),
	}
}

// Suggest ranks points on rings around (lat, lon) for the night of ref and
// returns the best topN. Urban-core points are never suggested.
func (s *Suggester) Suggest(ctx context.Context, lat, lon float64, ref time.Time, topN int) ([]Spot, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	halves, err := s.resolver.Seasonal(lat, lon, ref)
	if err != nil {
		return nil, err
	}

	var candidates []Spot
	for _, dist := range s.cfg.RingDistancesKm {
		for _, bearing := range s.cfg.BearingsDeg {
			plat, plon := light.DestPoint(lat, lon, bearing, dist)
			detail := s.light.Classify(plat, plon)
			if detail.Category == models.LightUrbanCore {
				continue
			}
			candidates = append(candidates, Spot{
				Latitude:   plat,
				Longitude:  plon,
				DistanceKm: dist,
				BearingDeg: bearing,
				Light:      detail,
				LightScore: light.DarknessScore(detail.Category),
				North:      inNorthSector(bearing),
			})
		}
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(c *Spot) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s.scoreClouds(ctx, c, halves)
		}(&candidates[i])
	}
	wg.Wait()

	for i := range candidates {
		c := &candidates[i]
		score := s.cfg.CloudsWeight*c.CloudScore + s.cfg.LightWeight*c.LightScore
		if c.North {
			score += s.cfg.PreferNorthBonus
		}
		c.Score = math.Round(score*10) / 10
		c.Reasons = reasons(c)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

func (s *Suggester) scoreClouds(ctx context.Context, c *Spot, halves []models.EveningWindow) {
	c.CloudScore = 0.5
	if s.clouds == nil {
		return
	}
	rows := consensus.Compute(s.clouds.FetchAll(ctx, c.Latitude, c.Longitude), s.opts)

	var parts []float64
	for _, w := range halves {
		avg := averageClouds(rows, w)
		switch w.Label {
		case "early":
			c.CloudsEarly = avg
		case "late":
			c.CloudsLate = avg
		}
		if avg != nil {
			parts = append(parts, 1-math.Max(0, math.Min(100, *avg))/100)
		} else {
			parts = append(parts, 0.5)
		}
	}
	if len(parts) > 0 {
		sum := 0.0
		for _, p := range parts {
			sum += p
		}
		c.CloudScore = sum / float64(len(parts))
	}
}

func averageClouds(rows []models.ConsensusHourly, w models.EveningWindow) *float64 {
	sum, n := 0.0, 0
	for _, r := range rows {
		if r.ConsensusPct == nil || !w.Contains(r.Time) {
			continue
		}
		sum += *r.ConsensusPct
		n++
	}
	if n == 0 {
		return nil
	}
	return models.Ptr(sum / float64(n))
}

func inNorthSector(bearing float64) bool {
	b := math.Mod(math.Mod(bearing, 360)+360, 360)
	return b >= 330 || b <= 30
}

func reasons(c *Spot) []string {
	var out []string
	if c.Light.Category == models.LightRural {
		out = append(out, "dark surroundings")
	} else {
		out = append(out, "less city light")
	}
	if c.CloudsEarly != nil {
		out = append(out, fmt.Sprintf("clouds early ~%d%%", int(math.Round(*c.CloudsEarly))))
	}
	if c.CloudsLate != nil {
		out = append(out, fmt.Sprintf("clouds late ~%d%%", int(math.Round(*c.CloudsLate))))
	}
	if c.North {
		out = append(out, "north of your position")
	}
	return out
}
