package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

const (
	SourceProducts2h = "swpc_products_2h"
	SourceProducts1d = "swpc_products_1d"
	SourceACE1h      = "ace_1h"
)

const swpcBaseURL = "https://services.swpc.noaa.gov"

// ErrNoSamples is returned by a chain link that answered with nothing usable.
var ErrNoSamples = errors.New("no usable samples")

// SolarWindResult is the batch from the first chain link that succeeded.
type SolarWindResult struct {
	Source  string
	Samples []models.SolarWindSample
	Fetch   *FetchResult
}

// SolarWindChain tries each configured source in order until one returns
// merged magnetometer and plasma samples.
type SolarWindChain struct {
	fetcher *Fetcher
	baseURL string
	order   []string
	limits  config.SuspectLimits
	log     *slog.Logger
}

// NewSolarWindChain builds the chain. An empty baseURL uses the SWPC service.
func NewSolarWindChain(cfg config.SolarWindConfig, f *Fetcher, baseURL string, log *slog.Logger) *SolarWindChain {
	if baseURL == "" {
		baseURL = swpcBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	order := cfg.SourcesOrder
	if len(order) == 0 {
		order = []string{SourceProducts2h, SourceProducts1d, SourceACE1h}
	}
	return &SolarWindChain{
		fetcher: f,
		baseURL: baseURL,
		order:   order,
		limits:  cfg.SuspectLimits,
		log:     log.With("component", "solarwind"),
	}
}

// Fetch returns samples sorted by time from the first source that yields
// any. When every source fails the error lists each failure.
func (c *SolarWindChain) Fetch(ctx context.Context) (*SolarWindResult, error) {
	var errs *multierror.Error
	for _, source := range c.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, res, err := c.fetchSource(ctx, source)
		if err == nil && len(samples) == 0 {
			err = ErrNoSamples
		}
		if err != nil {
			c.log.Warn("solar wind source failed", "source", source, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", source, err))
			continue
		}
		markSuspect(samples, c.limits)
		for i := range samples {
			samples[i].Source = source
		}
		return &SolarWindResult{Source: source, Samples: samples, Fetch: res}, nil
	}
	if errs == nil {
		return nil, errors.New("no solar wind sources configured")
	}
	return nil, errs.ErrorOrNil()
}

func (c *SolarWindChain) fetchSource(ctx context.Context, source string) ([]models.SolarWindSample, *FetchResult, error) {
	switch source {
	case SourceProducts2h:
		return c.fetchProducts(ctx, source, "2-hour")
	case SourceProducts1d:
		return c.fetchProducts(ctx, source, "1-day")
	case SourceACE1h:
		return c.fetchACE(ctx, source)
	default:
		return nil, nil, fmt.Errorf("unknown solar wind source %q", source)
	}
}

// fetchProducts reads the real-time mag and plasma products, which are
// header-row matrices, and joins them on time tag.
func (c *SolarWindChain) fetchProducts(ctx context.Context, source, window string) ([]models.SolarWindSample, *FetchResult, error) {
	magBody, magRes, err := c.fetcher.Get(ctx, source, fmt.Sprintf("%s/products/solar-wind/mag-%s.json", c.baseURL, window))
	if err != nil {
		return nil, magRes, fmt.Errorf("mag: %w", err)
	}
	plasmaBody, plasmaRes, err := c.fetcher.Get(ctx, source, fmt.Sprintf("%s/products/solar-wind/plasma-%s.json", c.baseURL, window))
	if err != nil {
		return nil, plasmaRes, fmt.Errorf("plasma: %w", err)
	}
	samples, bad := joinSolarWind(matrixRecords(magBody), matrixRecords(plasmaBody))
	return samples, combineResults(magRes, plasmaRes, magBody, plasmaBody, len(samples), bad), nil
}

// fetchACE reads the hourly ACE mag and SWEPAM JSON, which are arrays of objects.
func (c *SolarWindChain) fetchACE(ctx context.Context, source string) ([]models.SolarWindSample, *FetchResult, error) {
	magBody, magRes, err := c.fetcher.Get(ctx, source, c.baseURL+"/json/ace/mag/ace_mag_1h.json")
	if err != nil {
		return nil, magRes, fmt.Errorf("mag: %w", err)
	}
	swepamBody, swepamRes, err := c.fetcher.Get(ctx, source, c.baseURL+"/json/ace/swepam/ace_swepam_1h.json")
	if err != nil {
		return nil, swepamRes, fmt.Errorf("swepam: %w", err)
	}
	samples, bad := joinSolarWind(objectRecords(magBody), objectRecords(swepamBody))
	return samples, combineResults(magRes, swepamRes, magBody, swepamBody, len(samples), bad), nil
}

func objectRecords(body []byte) []record {
	var out []record
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			out = append(out, objectRecord(v))
		}
		return true
	})
	return out
}

// joinSolarWind pairs magnetometer rows with the plasma row of the same time
// tag. Rows without a partner or a readable time are dropped; the second
// return counts unreadable times.
func joinSolarWind(mag, plasma []record) ([]models.SolarWindSample, int) {
	byTime := make(map[string]record, len(plasma))
	for _, p := range plasma {
		if t := p.firstString(timeFields); t != "" {
			byTime[t] = p
		}
	}

	var out []models.SolarWindSample
	bad := 0
	for _, m := range mag {
		key := m.firstString(timeFields)
		if key == "" {
			continue
		}
		p, ok := byTime[key]
		if !ok {
			continue
		}
		t, ok := parseTime(key)
		if !ok {
			bad++
			continue
		}
		out = append(out, models.SolarWindSample{
			Time:    t,
			Bx:      m.firstNumber(bxFields),
			By:      m.firstNumber(byFields),
			Bz:      m.firstNumber(bzFields),
			Bt:      m.firstNumber(btFields),
			Speed:   p.firstNumber(speedFields),
			Density: p.firstNumber(densityFields),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, bad
}

// combineResults merges the audit data of a paired fetch. The raw payload is
// kept as a two-element JSON array.
func combineResults(a, b *FetchResult, aBody, bBody []byte, records, bad int) *FetchResult {
	raw := make([]byte, 0, len(aBody)+len(bBody)+3)
	raw = append(raw, '[')
	raw = append(raw, aBody...)
	raw = append(raw, ',')
	raw = append(raw, bBody...)
	raw = append(raw, ']')

	res := &FetchResult{
		HTTPStatus:   b.HTTPStatus,
		ResponseSize: a.ResponseSize + b.ResponseSize,
		RecordCount:  records,
		ParseErrors:  bad,
		Raw:          raw,
	}
	if bad > 0 {
		res.ParseError = fmt.Sprintf("%d rows with unreadable time tags", bad)
	}
	return res
}
