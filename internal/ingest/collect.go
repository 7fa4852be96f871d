package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/aurorawatch/internal/cache"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
)

// IndexFetch is the outcome of one index source call.
type IndexFetch struct {
	Kind     models.IndexKind
	Endpoint string
	Reading  *geomagnetic.Reading
	Result   *FetchResult
	Err      error
}

// Collection is everything gathered in one geomagnetic refresh.
// StoredSolarWind counts the archived samples scored when no live solar
// wind link answered.
type Collection struct {
	SolarWind       *SolarWindResult
	SolarWindErr    error
	StoredSolarWind int
	Indices         []IndexFetch
	Sources         geomagnetic.Sources
}

// SolarWindHistory is the archive of samples written by earlier refreshes.
type SolarWindHistory interface {
	GetSolarWindSince(since time.Time) ([]models.SolarWindSample, error)
}

// storedSolarWindLookback bounds how old archived samples may be.
const storedSolarWindLookback = 6 * time.Hour

// IndexSet gathers solar wind and index readings for the blender.
type IndexSet struct {
	chain   *SolarWindChain
	sources []IndexSource
	history SolarWindHistory
	clock   clockwork.Clock
	cfg     config.GeomagneticConfig
	log     *slog.Logger
}

func NewIndexSet(chain *SolarWindChain, cfg config.GeomagneticConfig, log *slog.Logger, sources ...IndexSource) *IndexSet {
	if log == nil {
		log = slog.Default()
	}
	return &IndexSet{chain: chain, sources: sources, cfg: cfg, log: log.With("component", "indices")}
}

// WithHistory scores archived solar wind when every live link fails, so a
// restart during an outage still has a solar wind part.
func (s *IndexSet) WithHistory(h SolarWindHistory, clock clockwork.Clock) *IndexSet {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s.history, s.clock = h, clock
	return s
}

// NewDefaultIndexSet wires the solar wind chain and every index enabled in cfg.
func NewDefaultIndexSet(cfg *config.Config, f *Fetcher, hpoCache *cache.File, clock clockwork.Clock, log *slog.Logger) *IndexSet {
	chain := NewSolarWindChain(cfg.SolarWind, f, "", log)
	sources := []IndexSource{
		NewHPOSource(cfg.HPO, f, hpoCache, clock),
		NewKpSource(cfg.Kp, f, clock),
	}
	if cfg.Geomagnetic.Sources.UseHemiPower {
		sources = append(sources, NewHemiSource(f, ""))
	}
	if cfg.Geomagnetic.Sources.UseAE {
		sources = append(sources, NewAESource(f, "", clock))
	}
	if cfg.Geomagnetic.Sources.UseDst {
		sources = append(sources, NewDstSource(f, "", clock))
	}
	return NewIndexSet(chain, cfg.Geomagnetic, log, sources...)
}

// Collect fetches every source concurrently. Failures are recorded per
// source and never abort the others.
func (s *IndexSet) Collect(ctx context.Context) *Collection {
	c := &Collection{Indices: make([]IndexFetch, len(s.sources))}

	var wg sync.WaitGroup
	if s.chain != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SolarWind, c.SolarWindErr = s.chain.Fetch(ctx)
		}()
	}
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src IndexSource) {
			defer wg.Done()
			r, res, err := src.Fetch(ctx)
			c.Indices[i] = IndexFetch{Kind: src.Kind(), Endpoint: src.Endpoint(), Reading: r, Result: res, Err: err}
		}(i, src)
	}
	wg.Wait()

	if c.SolarWind != nil && len(c.SolarWind.Samples) > 0 {
		score := geomagnetic.Score(c.SolarWind.Samples, s.cfg.WindowSize, s.cfg)
		c.Sources.SolarWind = &score
	} else {
		if c.SolarWindErr != nil {
			s.log.Warn("solar wind unavailable", "error", c.SolarWindErr)
		}
		s.scoreStored(c)
	}

	for _, f := range c.Indices {
		if f.Err != nil {
			s.log.Warn("index source failed", "index", f.Kind, "error", f.Err)
			continue
		}
		switch f.Kind {
		case models.IndexHPO:
			c.Sources.HPO = f.Reading
		case models.IndexKp:
			c.Sources.Kp = f.Reading
		case models.IndexHemi:
			c.Sources.HemiPower = f.Reading
		case models.IndexAE:
			c.Sources.AE = f.Reading
		case models.IndexDst:
			c.Sources.Dst = f.Reading
		}
	}
	return c
}

func (s *IndexSet) scoreStored(c *Collection) {
	if s.history == nil {
		return
	}
	samples, err := s.history.GetSolarWindSince(s.clock.Now().Add(-storedSolarWindLookback))
	if err != nil {
		s.log.Warn("load stored solar wind", "error", err)
		return
	}
	if len(samples) == 0 {
		return
	}
	score := geomagnetic.Score(samples, s.cfg.WindowSize, s.cfg)
	c.Sources.SolarWind = &score
	c.StoredSolarWind = len(samples)
	s.log.Info("scoring stored solar wind", "samples", len(samples), "last", samples[len(samples)-1].Time)
}

// Load adapts Collect to geomagnetic.Blender.Current.
func (s *IndexSet) Load(ctx context.Context) (geomagnetic.Sources, error) {
	return s.Collect(ctx).Sources, nil
}
