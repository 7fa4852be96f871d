// Package outlook scores the hours of an evening window for one location by
// combining cloud consensus, the blended geomagnetic index, ephemeris and
// light pollution.
package outlook

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/consensus"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/light"
	"github.com/lox/aurorawatch/internal/metrics"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/sightability"
	"github.com/lox/aurorawatch/internal/window"
)

// WeatherSource returns hourly cloud samples keyed by provider. Failed
// providers are simply absent.
type WeatherSource interface {
	FetchAll(ctx context.Context, lat, lon float64) map[string][]models.HourlyCloudSample
}

// History is the stored consensus written by the refresh scheduler.
type History interface {
	GetActiveLocations() ([]models.Location, error)
	GetConsensus(locationID string, from, to time.Time) ([]models.ConsensusHourly, error)
}

// historyRadiusKm bounds how far a tracked location may be from the
// requested point for its stored clouds to stand in.
const historyRadiusKm = 5.0

// Loader gathers the geomagnetic inputs for a blend.
type Loader func(ctx context.Context) (geomagnetic.Sources, error)

// HourOutlook is the fused result for one hour.
type HourOutlook struct {
	Time         time.Time                 `json:"timestamp"`
	Consensus    models.ConsensusHourly    `json:"consensus"`
	Sightability models.SightabilityResult `json:"sightability"`
}

func (h HourOutlook) Timestamp() time.Time { return h.Time }

func (h HourOutlook) SunAltitude() (float64, bool) {
	return h.Sightability.Inputs.SunAltitudeDeg, true
}

// Outlook is the scored evening window for one location.
type Outlook struct {
	Latitude    float64                    `json:"lat"`
	Longitude   float64                    `json:"lon"`
	Timezone    string                     `json:"timezone"`
	GeneratedAt time.Time                  `json:"generatedAt"`
	Window      models.EveningWindow       `json:"window"`
	Halves      []models.EveningWindow     `json:"halves"`
	Geomagnetic *models.BlendedGeomagnetic `json:"geomagnetic"`
	Adjustment  *models.LatitudeAdjustment `json:"adjustment"`
	Light       models.LightDetail         `json:"light"`
	Providers   []string                   `json:"providers"`
	StoredFrom  string                     `json:"storedFrom,omitempty"`
	Hours       []HourOutlook              `json:"hours"`
	Stats       []WindowStats              `json:"stats"`
	Best        *HourOutlook               `json:"best"`
}

// Now is the score for the current hour.
type Now struct {
	Latitude    float64                    `json:"lat"`
	Longitude   float64                    `json:"lon"`
	Geomagnetic *models.BlendedGeomagnetic `json:"geomagnetic"`
	Adjustment  *models.LatitudeAdjustment `json:"adjustment"`
	Light       models.LightDetail         `json:"light"`
	Providers   []string                   `json:"providers"`
	StoredFrom  string                     `json:"storedFrom,omitempty"`
	Hour        HourOutlook                `json:"hour"`
}

type Engine struct {
	cfg      *config.Config
	weather  WeatherSource
	blender  *geomagnetic.Blender
	load     Loader
	resolver *window.Resolver
	history  History
	scorer   *sightability.Scorer
	light    *light.Classifier
	opts     consensus.Options
	clock    clockwork.Clock
	log      *slog.Logger
}

// NewEngine wires an engine. weather and load may be nil, in which case
// clouds or geomagnetic activity are treated as unknown.
func NewEngine(cfg *config.Config, weather WeatherSource, blender *geomagnetic.Blender, load Loader, resolver *window.Resolver, clock clockwork.Clock, log *slog.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	lc := light.NewClassifier(cfg.LightPollution)
	return &Engine{
		cfg:      cfg,
		weather:  weather,
		blender:  blender,
		load:     load,
		resolver: resolver,
		scorer:   sightability.NewScorer(cfg.Sightability, lc),
		light:    lc,
		opts:     consensus.OptionsFromConfig(cfg.Weather.Consensus),
		clock:    clock,
		log:      log.With("component", "outlook"),
	}
}

// WithHistory lets the engine fall back to stored cloud consensus for the
// nearest tracked location when no provider answers.
func (e *Engine) WithHistory(h History) *Engine {
	e.history = h
	return e
}

// Geomagnetic returns the current blend, or nil when no index is available.
func (e *Engine) Geomagnetic(ctx context.Context) *models.BlendedGeomagnetic {
	if e.blender == nil || e.load == nil {
		return nil
	}
	blend, err := e.blender.Current(ctx, e.load)
	if err != nil {
		e.log.Warn("geomagnetic blend failed", "error", err)
		return nil
	}
	return blend
}

// Tonight scores every hour of the evening window containing ref. A zero
// ref means now.
func (e *Engine) Tonight(ctx context.Context, lat, lon float64, ref time.Time) (*Outlook, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		ref = e.clock.Now()
	}

	w, err := e.resolver.Resolve(lat, lon, ref)
	if err != nil {
		return nil, err
	}
	halves, err := e.resolver.Seasonal(lat, lon, ref)
	if err != nil {
		return nil, err
	}

	samples, blend := e.gather(ctx, lat, lon)
	rows, storedFrom := e.clouds(samples, lat, lon, w.Start.Truncate(time.Hour), w.End)
	adj, geo := e.adjust(blend, lat)
	detail := e.light.Classify(lat, lon)

	var hours []HourOutlook
	for t := w.Start.Truncate(time.Hour); t.Before(w.End); t = t.Add(time.Hour) {
		h, err := e.scoreHour(lat, lon, t, rows, geo, detail)
		if err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}

	out := &Outlook{
		Latitude:    lat,
		Longitude:   lon,
		Timezone:    e.resolver.Location(lat, lon).String(),
		GeneratedAt: e.clock.Now().UTC(),
		Window:      w,
		Halves:      halves,
		Geomagnetic: blend,
		Adjustment:  adj,
		Light:       detail,
		Providers:   providers(samples),
		StoredFrom:  storedFrom,
		Hours:       hours,
		Stats:       Stats(halves, hours),
	}
	for i := range hours {
		if out.Best == nil || hours[i].Sightability.Score > out.Best.Sightability.Score {
			out.Best = &hours[i]
		}
	}
	return out, nil
}

// Now scores the current hour at a location.
func (e *Engine) Now(ctx context.Context, lat, lon float64) (*Now, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	hour := e.clock.Now().UTC().Truncate(time.Hour)
	samples, blend := e.gather(ctx, lat, lon)
	rows, storedFrom := e.clouds(samples, lat, lon, hour, hour.Add(time.Hour))
	adj, geo := e.adjust(blend, lat)
	detail := e.light.Classify(lat, lon)

	h, err := e.scoreHour(lat, lon, hour, rows, geo, detail)
	if err != nil {
		return nil, err
	}
	return &Now{
		Latitude:    lat,
		Longitude:   lon,
		Geomagnetic: blend,
		Adjustment:  adj,
		Light:       detail,
		Providers:   providers(samples),
		StoredFrom:  storedFrom,
		Hour:        h,
	}, nil
}

// gather fetches weather and the geomagnetic blend concurrently.
func (e *Engine) gather(ctx context.Context, lat, lon float64) (map[string][]models.HourlyCloudSample, *models.BlendedGeomagnetic) {
	var (
		wg      sync.WaitGroup
		samples map[string][]models.HourlyCloudSample
		blend   *models.BlendedGeomagnetic
	)
	if e.weather != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples = e.weather.FetchAll(ctx, lat, lon)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		blend = e.Geomagnetic(ctx)
	}()
	wg.Wait()
	return samples, blend
}

// clouds fuses the live samples. With none it reads the stored rows of the
// nearest tracked location and returns that location's id.
func (e *Engine) clouds(samples map[string][]models.HourlyCloudSample, lat, lon float64, from, to time.Time) (map[int64]models.ConsensusHourly, string) {
	if len(samples) > 0 || e.history == nil {
		return indexByHour(consensus.Compute(samples, e.opts)), ""
	}
	locs, err := e.history.GetActiveLocations()
	if err != nil {
		e.log.Warn("load tracked locations", "error", err)
		return nil, ""
	}
	var nearest *models.Location
	best := historyRadiusKm
	for i := range locs {
		if d := light.HaversineKm(lat, lon, locs[i].Latitude, locs[i].Longitude); d <= best {
			nearest, best = &locs[i], d
		}
	}
	if nearest == nil {
		return nil, ""
	}
	rows, err := e.history.GetConsensus(nearest.ID, from, to)
	if err != nil {
		e.log.Warn("load stored consensus", "location", nearest.ID, "error", err)
		return nil, ""
	}
	if len(rows) == 0 {
		return nil, ""
	}
	e.log.Debug("using stored consensus", "location", nearest.ID, "hours", len(rows))
	return indexByHour(rows), nearest.ID
}

// adjust maps the global score to the location. Without a blend the
// activity counts as zero and no adjustment is reported.
func (e *Engine) adjust(blend *models.BlendedGeomagnetic, lat float64) (*models.LatitudeAdjustment, float64) {
	if blend == nil {
		return nil, 0
	}
	adj := geomagnetic.AdjustForLatitude(blend.GlobalScore10, lat, &blend.KpProxy, e.cfg.AuroralOval)
	return &adj, adj.AdjustedScore10
}

func (e *Engine) scoreHour(lat, lon float64, t time.Time, rows map[int64]models.ConsensusHourly, geo float64, detail models.LightDetail) (HourOutlook, error) {
	row, ok := rows[t.Unix()]
	if !ok {
		row = models.ConsensusHourly{Time: t, Method: models.MethodNone, PerSource: map[string]*float64{}}
	}
	res, err := e.scorer.Score(sightability.Input{
		Lat:           lat,
		Lon:           lon,
		When:          t,
		CloudsPct:     row.ConsensusPct,
		Geomagnetic10: geo,
		Light:         detail,
	})
	if err != nil {
		return HourOutlook{}, err
	}
	metrics.HoursScored.Inc()
	return HourOutlook{Time: t, Consensus: row, Sightability: res}, nil
}

func indexByHour(rows []models.ConsensusHourly) map[int64]models.ConsensusHourly {
	out := make(map[int64]models.ConsensusHourly, len(rows))
	for _, r := range rows {
		out[r.Time.Truncate(time.Hour).Unix()] = r
	}
	return out
}

func providers(samples map[string][]models.HourlyCloudSample) []string {
	out := make([]string, 0, len(samples))
	for name := range samples {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
