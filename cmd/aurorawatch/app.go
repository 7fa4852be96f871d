package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/lox/aurorawatch/internal/cache"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/consensus"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/ingest"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/narrative"
	"github.com/lox/aurorawatch/internal/outlook"
	"github.com/lox/aurorawatch/internal/spots"
	"github.com/lox/aurorawatch/internal/store"
	"github.com/lox/aurorawatch/internal/window"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	clock    clockwork.Clock
	weather  *ingest.WeatherSet
	indices  *ingest.IndexSet
	blender  *geomagnetic.Blender
	resolver *window.Resolver
	engine   *outlook.Engine
	spots    *spots.Suggester
	narrator *narrative.Narrator
}

func newApp(g *Globals) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := config.NewLogger(g.LogLevel, g.LogFormat)
	slog.SetDefault(log)
	clock := clockwork.NewRealClock()

	fetcher := ingest.NewFetcher(cfg.Weather.MetUserAgent, log)
	weatherCache := cache.NewFile(cfg.Weather.Cache.Dir, minutes(cfg.Weather.Cache.TTLMinutes), clock, log)
	hpoCache := cache.NewFile(cfg.Weather.Cache.Dir, minutes(cfg.HPO.CacheTTLMinutes), clock, log)

	weather := ingest.NewWeatherSet(log, ingest.NewWeatherAdapters(cfg.Weather, fetcher, weatherCache)...)
	indices := ingest.NewDefaultIndexSet(cfg, fetcher, hpoCache, clock, log)

	memo := cache.NewMemo[*models.BlendedGeomagnetic](minutes(cfg.Geomagnetic.MemoTTLMinutes), clock)
	blender := geomagnetic.NewBlender(cfg.Geomagnetic, cfg.SolarWind.StaleHours, clock, memo)

	var tz window.TZFinder
	if cfg.Window.TimezoneAware {
		if tz, err = window.NewTZFinder(); err != nil {
			log.Warn("timezone lookup disabled, using UTC", "error", err)
			tz = nil
		}
	}
	resolver := window.NewResolver(cfg.Window, tz)

	// Spot suggestions make one weather lookup per candidate, so the default
	// mode asks a single provider.
	clouds := weather
	if cfg.Spots.WeatherMode != spots.ModeMulti {
		om := weather.Adapter(ingest.ProviderOpenMeteo)
		if om == nil {
			om = ingest.NewOpenMeteo(fetcher, weatherCache, "")
		}
		clouds = ingest.NewWeatherSet(log, om)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		clock:    clock,
		weather:  weather,
		indices:  indices,
		blender:  blender,
		resolver: resolver,
		engine:   outlook.NewEngine(cfg, weather, blender, indices.Load, resolver, clock, log),
		spots:    spots.NewSuggester(cfg, clouds, resolver, log),
		narrator: narrative.New(g.OpenAIKey, clock, log),
	}, nil
}

// useStore lets scoring fall back to what earlier refreshes stored.
func (a *app) useStore(st *store.Store) {
	a.indices.WithHistory(st, a.clock)
	a.engine.WithHistory(st)
}

func (a *app) scheduler(st *store.Store) *ingest.Scheduler {
	return ingest.NewScheduler(st, a.indices, a.weather, a.blender, consensus.OptionsFromConfig(a.cfg.Weather.Consensus), a.clock, a.log)
}

// openStore opens the database the way the service expects it: WAL mode,
// a busy timeout and all migrations applied.
func openStore(path string) (*store.Store, func(), error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

// seedLocations stores the given locations, or one per configured light
// zone when none are given, and marks them active for the scheduler.
func (a *app) seedLocations(st *store.Store, args []string) error {
	var locs []models.Location
	for _, arg := range args {
		l, err := parseLocation(arg)
		if err != nil {
			return err
		}
		locs = append(locs, l)
	}
	if len(locs) == 0 {
		keys := make([]string, 0, len(a.cfg.LightPollution.Zones))
		for k := range a.cfg.LightPollution.Zones {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			z := a.cfg.LightPollution.Zones[k]
			locs = append(locs, models.Location{ID: k, Name: z.Name, Latitude: z.Lat, Longitude: z.Lon, ZoneKey: k, Active: true})
		}
	}
	for _, l := range locs {
		if err := st.UpsertLocation(l); err != nil {
			return fmt.Errorf("upsert location %s: %w", l.ID, err)
		}
	}
	a.log.Info("locations seeded", "count", len(locs))
	return nil
}

// parseLocation reads "id=lat,lon".
func parseLocation(arg string) (models.Location, error) {
	id, coords, ok := strings.Cut(arg, "=")
	if !ok || id == "" {
		return models.Location{}, fmt.Errorf("location %q: expected id=lat,lon", arg)
	}
	latStr, lonStr, ok := strings.Cut(coords, ",")
	if !ok {
		return models.Location{}, fmt.Errorf("location %q: expected id=lat,lon", arg)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("location %q: bad latitude: %w", arg, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("location %q: bad longitude: %w", arg, err)
	}
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return models.Location{}, fmt.Errorf("location %q: %w", arg, err)
	}
	return models.Location{ID: id, Name: id, Latitude: lat, Longitude: lon, Active: true}, nil
}

// parseDate turns YYYY-MM-DD into local noon at the location. An empty
// string means now.
func parseDate(date string, loc *time.Location, now time.Time) (time.Time, error) {
	if date == "" {
		return now, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: expected YYYY-MM-DD", date)
	}
	return d.Add(12 * time.Hour), nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
