package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lox/aurorawatch/internal/cache"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

const (
	ProviderMET       = "met"
	ProviderSMHI      = "smhi"
	ProviderOpenMeteo = "openmeteo"
)

const (
	metBaseURL       = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	smhiBaseURL      = "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2"
	openMeteoBaseURL = "https://api.open-meteo.com/v1/forecast"
)

// WeatherAdapter fetches hourly cloud cover for a point.
type WeatherAdapter interface {
	Name() string
	Endpoint() string
	FetchClouds(ctx context.Context, lat, lon float64) ([]models.HourlyCloudSample, *FetchResult, error)
}

type weatherSource struct {
	name     string
	endpoint string
	url      func(lat, lon float64) string
	parse    func(body []byte, source string) ([]models.HourlyCloudSample, int)
	fetcher  *Fetcher
	cache    *cache.File
}

func (w *weatherSource) Name() string     { return w.name }
func (w *weatherSource) Endpoint() string { return w.endpoint }

// FetchClouds returns hour-floored UTC samples. A fresh cache entry is used
// in place of a network call.
func (w *weatherSource) FetchClouds(ctx context.Context, lat, lon float64) ([]models.HourlyCloudSample, *FetchResult, error) {
	var body []byte
	var result *FetchResult

	var cached json.RawMessage
	if w.cache != nil && w.cache.Get(w.name, lat, lon, &cached) {
		body = cached
		result = &FetchResult{ResponseSize: len(body)}
	} else {
		b, res, err := w.fetcher.Get(ctx, w.name, w.url(lat, lon))
		if err != nil {
			return nil, res, err
		}
		body, result = b, res
		if !gjson.ValidBytes(body) {
			result.Error = fmt.Errorf("%s: response is not JSON", w.name)
			return nil, result, result.Error
		}
		if w.cache != nil {
			w.cache.Set(w.name, lat, lon, json.RawMessage(body))
		}
	}

	samples, parseErrors := w.parse(body, w.name)
	result.RecordCount = len(samples)
	if parseErrors > 0 {
		result.ParseErrors = parseErrors
		result.ParseError = fmt.Sprintf("%d rows with unreadable timestamps", parseErrors)
	}
	return samples, result, nil
}

// NewMET returns the MET Norway locationforecast adapter. MET rejects
// requests without an identifying User-Agent, which the fetcher supplies.
func NewMET(f *Fetcher, c *cache.File, baseURL string) WeatherAdapter {
	if baseURL == "" {
		baseURL = metBaseURL
	}
	return &weatherSource{
		name:     ProviderMET,
		endpoint: "locationforecast/compact",
		url: func(lat, lon float64) string {
			return fmt.Sprintf("%s?lat=%.4f&lon=%.4f", baseURL, lat, lon)
		},
		parse:   parseMET,
		fetcher: f,
		cache:   c,
	}
}

// NewSMHI returns the SMHI pmp3g point forecast adapter.
func NewSMHI(f *Fetcher, c *cache.File, baseURL string) WeatherAdapter {
	if baseURL == "" {
		baseURL = smhiBaseURL
	}
	return &weatherSource{
		name:     ProviderSMHI,
		endpoint: "pmp3g/point",
		url: func(lat, lon float64) string {
			return fmt.Sprintf("%s/geotype/point/lon/%.6f/lat/%.6f/data.json", baseURL, lon, lat)
		},
		parse:   parseSMHI,
		fetcher: f,
		cache:   c,
	}
}

// NewOpenMeteo returns the Open-Meteo hourly forecast adapter.
func NewOpenMeteo(f *Fetcher, c *cache.File, baseURL string) WeatherAdapter {
	if baseURL == "" {
		baseURL = openMeteoBaseURL
	}
	return &weatherSource{
		name:     ProviderOpenMeteo,
		endpoint: "forecast/hourly",
		url: func(lat, lon float64) string {
			return fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&hourly=cloudcover&timezone=UTC", baseURL, lat, lon)
		},
		parse:   parseOpenMeteo,
		fetcher: f,
		cache:   c,
	}
}

// NewWeatherAdapters builds the adapters named in cfg.Providers, in order.
// Unknown names are skipped.
func NewWeatherAdapters(cfg config.WeatherConfig, f *Fetcher, c *cache.File) []WeatherAdapter {
	var out []WeatherAdapter
	for _, name := range cfg.Providers {
		switch name {
		case ProviderMET:
			out = append(out, NewMET(f, c, ""))
		case ProviderSMHI:
			out = append(out, NewSMHI(f, c, ""))
		case ProviderOpenMeteo:
			out = append(out, NewOpenMeteo(f, c, ""))
		}
	}
	return out
}

func parseMET(body []byte, source string) ([]models.HourlyCloudSample, int) {
	var out []models.HourlyCloudSample
	bad := 0
	gjson.GetBytes(body, "properties.timeseries").ForEach(func(_, row gjson.Result) bool {
		t, ok := parseTime(row.Get("time").String())
		if !ok {
			bad++
			return true
		}
		details := row.Get("data.instant.details")
		pct := number(details.Get("cloud_area_fraction"))
		if pct == nil {
			pct = meanOf(
				number(details.Get("cloud_area_fraction_low")),
				number(details.Get("cloud_area_fraction_medium")),
				number(details.Get("cloud_area_fraction_high")),
			)
		}
		if pct != nil {
			out = append(out, cloudSample(t, source, *pct))
		}
		return true
	})
	return out, bad
}

func parseSMHI(body []byte, source string) ([]models.HourlyCloudSample, int) {
	var out []models.HourlyCloudSample
	bad := 0
	gjson.GetBytes(body, "timeSeries").ForEach(func(_, row gjson.Result) bool {
		t, ok := parseTime(row.Get("validTime").String())
		if !ok {
			bad++
			return true
		}
		var octas *float64
		for _, want := range []string{"tcc_mean", "tcc"} {
			row.Get("parameters").ForEach(func(_, p gjson.Result) bool {
				if strings.EqualFold(p.Get("name").String(), want) {
					octas = number(p.Get("values.0"))
					return false
				}
				return true
			})
			if octas != nil {
				break
			}
		}
		if octas != nil {
			out = append(out, cloudSample(t, source, *octas/8*100))
		}
		return true
	})
	return out, bad
}

func parseOpenMeteo(body []byte, source string) ([]models.HourlyCloudSample, int) {
	hourly := gjson.GetBytes(body, "hourly")
	times := hourly.Get("time").Array()
	cover := hourly.Get("cloudcover").Array()
	if len(cover) == 0 {
		cover = hourly.Get("cloud_cover").Array()
	}

	var out []models.HourlyCloudSample
	bad := 0
	for i, ts := range times {
		t, ok := parseTime(ts.String())
		if !ok {
			bad++
			continue
		}
		if i >= len(cover) {
			break
		}
		if pct := number(cover[i]); pct != nil {
			out = append(out, cloudSample(t, source, *pct))
		}
	}
	return out, bad
}

func cloudSample(t time.Time, source string, pct float64) models.HourlyCloudSample {
	return models.HourlyCloudSample{
		Time:     floorHour(t),
		Source:   source,
		CloudPct: models.Ptr(math.Max(0, math.Min(100, math.Round(pct)))),
	}
}

func meanOf(vals ...*float64) *float64 {
	sum, n := 0.0, 0
	for _, v := range vals {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return models.Ptr(sum / float64(n))
}

// WeatherFetch is the outcome of one adapter call.
type WeatherFetch struct {
	Provider string
	Endpoint string
	Samples  []models.HourlyCloudSample
	Result   *FetchResult
	Err      error
}

// WeatherSet queries several weather adapters concurrently.
type WeatherSet struct {
	adapters []WeatherAdapter
	log      *slog.Logger
}

func NewWeatherSet(log *slog.Logger, adapters ...WeatherAdapter) *WeatherSet {
	if log == nil {
		log = slog.Default()
	}
	return &WeatherSet{adapters: adapters, log: log.With("component", "weather")}
}

// Adapter returns the adapter with the given name, or nil.
func (s *WeatherSet) Adapter(name string) WeatherAdapter {
	for _, a := range s.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// FetchEach calls every adapter in parallel and returns one entry per
// adapter in configuration order.
func (s *WeatherSet) FetchEach(ctx context.Context, lat, lon float64) []WeatherFetch {
	out := make([]WeatherFetch, len(s.adapters))
	var wg sync.WaitGroup
	for i, a := range s.adapters {
		wg.Add(1)
		go func(i int, a WeatherAdapter) {
			defer wg.Done()
			samples, res, err := a.FetchClouds(ctx, lat, lon)
			out[i] = WeatherFetch{Provider: a.Name(), Endpoint: a.Endpoint(), Samples: samples, Result: res, Err: err}
		}(i, a)
	}
	wg.Wait()
	return out
}

// FetchAll returns samples keyed by provider. Failed providers are logged
// and left out; the result may be empty.
func (s *WeatherSet) FetchAll(ctx context.Context, lat, lon float64) map[string][]models.HourlyCloudSample {
	out := make(map[string][]models.HourlyCloudSample)
	for _, f := range s.FetchEach(ctx, lat, lon) {
		if f.Err != nil {
			s.log.Warn("weather provider failed", "provider", f.Provider, "error", f.Err)
			continue
		}
		out[f.Provider] = f.Samples
	}
	return out
}
