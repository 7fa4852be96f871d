package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jlaffaye/ftp"
	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	"github.com/lox/aurorawatch/internal/cache"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
)

const (
	hemiPowerURL  = "https://services.swpc.noaa.gov/text/aurora-nowcast-hemi-power.txt"
	kyotoAEBase   = "https://wdc.kugi.kyoto-u.ac.jp/ae_realtime/data_dir"
	kyotoDstMonth = "https://wdc.kugi.kyoto-u.ac.jp/dst_realtime/presentmonth/"
)

// IndexSource fetches the current value of one geomagnetic index.
type IndexSource interface {
	Kind() models.IndexKind
	Endpoint() string
	Fetch(ctx context.Context) (*geomagnetic.Reading, *FetchResult, error)
}

// point is one timestamped value of an index time series.
type point struct {
	Time  time.Time
	Value float64
}

var (
	seriesTimeKeys  = []string{"time_tag", "time", "TIME", "times", "datetime", "datetimes", "timestamp", "t", "hour_start", "valid_time"}
	seriesValueKeys = []string{"value", "values", "VALUE", "VALUES", "v", "median", "MEDIAN", "hp60_median", "hp30_median", "Kp", "kp", "kp_predicted", "hp"}
)

// seriesPoints reads the time series layouts GFZ products have used: a map
// of timestamp to value, parallel time/value columns, [time, value] pairs or
// an array of objects.
func seriesPoints(v gjson.Result) []point {
	var out []point
	switch {
	case v.IsObject():
		allNumeric := true
		v.ForEach(func(_, val gjson.Result) bool {
			if number(val) == nil {
				allNumeric = false
				return false
			}
			return true
		})
		if allNumeric {
			v.ForEach(func(k, val gjson.Result) bool {
				if t, ok := parseTime(k.String()); ok {
					out = append(out, point{Time: t, Value: *number(val)})
				}
				return true
			})
			break
		}
		r := objectRecord(v)
		times, vals := firstArray(r, seriesTimeKeys), firstArray(r, seriesValueKeys)
		if len(times) == 0 || len(times) != len(vals) {
			break
		}
		for i := range times {
			t, ok := parseTime(times[i].String())
			f := number(vals[i])
			if ok && f != nil {
				out = append(out, point{Time: t, Value: *f})
			}
		}
	case v.IsArray():
		v.ForEach(func(_, el gjson.Result) bool {
			if el.IsArray() {
				cells := el.Array()
				if len(cells) >= 2 {
					t, ok := parseTime(cells[0].String())
					if f := number(cells[1]); ok && f != nil {
						out = append(out, point{Time: t, Value: *f})
					}
				}
				return true
			}
			if el.IsObject() {
				r := objectRecord(el)
				t, ok := parseTime(r.firstString(seriesTimeKeys))
				if f := r.firstNumber(seriesValueKeys); ok && f != nil {
					out = append(out, point{Time: t, Value: *f})
				}
			}
			return true
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func firstArray(r record, keys []string) []gjson.Result {
	for _, k := range keys {
		if v, ok := r[k]; ok && v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

// forecastPoints extracts the median series of a GFZ forecast document,
// falling back to a data array or a bare series.
func forecastPoints(body []byte) []point {
	doc := gjson.ParseBytes(body)
	for _, key := range []string{"MEDIAN", "median"} {
		if m := doc.Get(key); m.Exists() {
			return seriesPoints(m)
		}
	}
	if data := doc.Get("data"); data.IsArray() {
		return seriesPoints(data)
	}
	return seriesPoints(doc)
}

// bestPoint picks the latest value at or before now, or else the earliest
// future one.
func bestPoint(points []point, now time.Time) *point {
	var past, future *point
	for i := range points {
		p := &points[i]
		if !p.Time.After(now) {
			if past == nil || p.Time.After(past.Time) {
				past = p
			}
		} else if future == nil || p.Time.Before(future.Time) {
			future = p
		}
	}
	if past != nil {
		return past
	}
	return future
}

// HPOSource reads the GFZ Hp60 forecast, falling back to Hp30.
type HPOSource struct {
	fetcher *Fetcher
	cache   *cache.File
	urls    []string
	clock   clockwork.Clock
}

func NewHPOSource(cfg config.HPOConfig, f *Fetcher, c *cache.File, clock clockwork.Clock) *HPOSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var urls []string
	for _, u := range []string{cfg.HP60URL, cfg.HP30URL} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return &HPOSource{fetcher: f, cache: c, urls: urls, clock: clock}
}

func (s *HPOSource) Kind() models.IndexKind { return models.IndexHPO }
func (s *HPOSource) Endpoint() string       { return "hp60_forecast" }

func (s *HPOSource) Fetch(ctx context.Context) (*geomagnetic.Reading, *FetchResult, error) {
	var errs *multierror.Error
	var last *FetchResult
	for i, url := range s.urls {
		key := fmt.Sprintf("hpo_%d", i)
		body, res, err := cachedGet(ctx, s.fetcher, s.cache, key, "hpo", url)
		last = res
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		points := forecastPoints(body)
		res.RecordCount = len(points)
		if p := bestPoint(points, s.clock.Now()); p != nil {
			return &geomagnetic.Reading{Value: p.Value, Time: p.Time}, res, nil
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", url, ErrNoSamples))
	}
	if errs == nil {
		return nil, last, errors.New("hpo: no forecast URL configured")
	}
	return nil, last, errs.ErrorOrNil()
}

// cachedGet serves a fresh cached body for key before fetching url.
func cachedGet(ctx context.Context, f *Fetcher, c *cache.File, key, provider, url string) ([]byte, *FetchResult, error) {
	var cached json.RawMessage
	if c != nil && c.Get(key, 0, 0, &cached) {
		return cached, &FetchResult{ResponseSize: len(cached)}, nil
	}
	body, res, err := f.Get(ctx, provider, url)
	if err != nil {
		return nil, res, err
	}
	if c != nil && gjson.ValidBytes(body) {
		c.Set(key, 0, 0, json.RawMessage(body))
	}
	return body, res, nil
}

// KpSource reads an hourly Kp forecast JSON when configured and falls back
// to the GFZ nowcast text file over FTP.
type KpSource struct {
	fetcher *Fetcher
	jsonURL string
	useFTP  bool
	ftpHost string
	ftpPath string
	retr    func(ctx context.Context, host, path string) ([]byte, error)
	clock   clockwork.Clock
}

func NewKpSource(cfg config.KpConfig, f *Fetcher, clock clockwork.Clock) *KpSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &KpSource{
		fetcher: f,
		jsonURL: cfg.HourlyJSONURL,
		useFTP:  cfg.UseFTP,
		ftpHost: cfg.FTPHost,
		ftpPath: cfg.FTPPath,
		retr:    ftpRetr,
		clock:   clock,
	}
}

// WithFTPRetriever replaces the FTP download function.
func (s *KpSource) WithFTPRetriever(fn func(ctx context.Context, host, path string) ([]byte, error)) *KpSource {
	s.retr = fn
	return s
}

func (s *KpSource) Kind() models.IndexKind { return models.IndexKp }
func (s *KpSource) Endpoint() string       { return "kp_hourly" }

func (s *KpSource) Fetch(ctx context.Context) (*geomagnetic.Reading, *FetchResult, error) {
	var errs *multierror.Error
	var last *FetchResult
	now := s.clock.Now()

	if s.jsonURL != "" {
		body, res, err := s.fetcher.Get(ctx, "kp", s.jsonURL)
		last = res
		if err == nil {
			points := forecastPoints(body)
			res.RecordCount = len(points)
			if p := bestPoint(points, now); p != nil {
				return &geomagnetic.Reading{Value: p.Value, Time: p.Time}, res, nil
			}
			err = ErrNoSamples
		}
		errs = multierror.Append(errs, fmt.Errorf("kp json: %w", err))
	}

	if s.useFTP && s.ftpHost != "" {
		body, err := s.retr(ctx, s.ftpHost, s.ftpPath)
		if err == nil {
			points, bad := parseKpNowcast(body)
			last = &FetchResult{ResponseSize: len(body), RecordCount: len(points), ParseErrors: bad, Raw: body}
			if p := bestPoint(points, now); p != nil {
				return &geomagnetic.Reading{Value: p.Value, Time: p.Time}, last, nil
			}
			err = ErrNoSamples
		}
		errs = multierror.Append(errs, fmt.Errorf("kp ftp: %w", err))
	}

	if errs == nil {
		return nil, last, errors.New("kp: no source configured")
	}
	return nil, last, errs.ErrorOrNil()
}

func ftpRetr(ctx context.Context, host, path string) ([]byte, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parseKpNowcast reads the GFZ Kp_ap_nowcast.txt layout:
//
//	YYYY MM DD hh.h hh._m days days_m Kp ap D
//
// Missing Kp values are written as -1 and skipped.
func parseKpNowcast(body []byte) ([]point, int) {
	var out []point
	bad := 0
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 8 {
			bad++
			continue
		}
		y, err1 := strconv.Atoi(f[0])
		m, err2 := strconv.Atoi(f[1])
		d, err3 := strconv.Atoi(f[2])
		h, err4 := strconv.ParseFloat(f[3], 64)
		kp, err5 := strconv.ParseFloat(f[7], 64)
		if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
			bad++
			continue
		}
		if kp < 0 {
			continue
		}
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC).Add(time.Duration(h * float64(time.Hour)))
		out = append(out, point{Time: t, Value: kp})
	}
	return out, bad
}

// HemiSource reads the SWPC hemispheric power nowcast.
type HemiSource struct {
	fetcher *Fetcher
	url     string
}

func NewHemiSource(f *Fetcher, url string) *HemiSource {
	if url == "" {
		url = hemiPowerURL
	}
	return &HemiSource{fetcher: f, url: url}
}

func (s *HemiSource) Kind() models.IndexKind { return models.IndexHemi }
func (s *HemiSource) Endpoint() string       { return "aurora-nowcast-hemi-power" }

func (s *HemiSource) Fetch(ctx context.Context) (*geomagnetic.Reading, *FetchResult, error) {
	body, res, err := s.fetcher.Get(ctx, "hemi", s.url)
	if err != nil {
		return nil, res, err
	}
	r, ok := parseHemiPower(body)
	if !ok {
		return nil, res, fmt.Errorf("hemi: %w", ErrNoSamples)
	}
	res.RecordCount = 1
	return r, res, nil
}

var hemiRow = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[T_ ](\d{2}:\d{2})Z?[,\s]+(-?\d+(?:\.\d+)?)[,\s]+(-?\d+(?:\.\d+)?)`)

// parseHemiPower returns the northern power of the last data row.
func parseHemiPower(body []byte) (*geomagnetic.Reading, bool) {
	var latest *geomagnetic.Reading
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := hemiRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := time.Parse("2006-01-02 15:04", m[1]+" "+m[2])
		if err != nil {
			continue
		}
		north, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		latest = &geomagnetic.Reading{Value: north, Time: t.UTC()}
	}
	return latest, latest != nil
}

// AESource reads the Kyoto AE quicklook file for the current UTC day.
type AESource struct {
	fetcher *Fetcher
	baseURL string
	clock   clockwork.Clock
}

func NewAESource(f *Fetcher, baseURL string, clock clockwork.Clock) *AESource {
	if baseURL == "" {
		baseURL = kyotoAEBase
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AESource{fetcher: f, baseURL: baseURL, clock: clock}
}

func (s *AESource) Kind() models.IndexKind { return models.IndexAE }
func (s *AESource) Endpoint() string       { return "ae_realtime" }

func (s *AESource) Fetch(ctx context.Context) (*geomagnetic.Reading, *FetchResult, error) {
	now := s.clock.Now().UTC()
	url := fmt.Sprintf("%s/%s/ae%s", s.baseURL, now.Format("2006/01/02"), now.Format("060102"))
	body, res, err := s.fetcher.Get(ctx, "ae", url)
	if err != nil {
		return nil, res, err
	}
	v, ok := parseAE(body)
	if !ok {
		return nil, res, fmt.Errorf("ae: %w", ErrNoSamples)
	}
	res.RecordCount = 1
	return &geomagnetic.Reading{Value: v, Time: now.Truncate(time.Minute)}, res, nil
}

var numberToken = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseAE returns the last value of the last line carrying a full hour of
// minute values.
func parseAE(body []byte) (float64, bool) {
	var last []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if nums := numberToken.FindAllString(sc.Text(), -1); len(nums) >= 60 {
			last = nums
		}
	}
	if last == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(last[len(last)-1], 64)
	return v, err == nil
}

// DstSource scrapes the Kyoto present-month Dst page.
type DstSource struct {
	fetcher *Fetcher
	url     string
	clock   clockwork.Clock
}

func NewDstSource(f *Fetcher, url string, clock clockwork.Clock) *DstSource {
	if url == "" {
		url = kyotoDstMonth
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DstSource{fetcher: f, url: url, clock: clock}
}

func (s *DstSource) Kind() models.IndexKind { return models.IndexDst }
func (s *DstSource) Endpoint() string       { return "dst_realtime" }

func (s *DstSource) Fetch(ctx context.Context) (*geomagnetic.Reading, *FetchResult, error) {
	body, res, err := s.fetcher.Get(ctx, "dst", s.url)
	if err != nil {
		return nil, res, err
	}
	v, ok := parseDst(body)
	if !ok {
		return nil, res, fmt.Errorf("dst: %w", ErrNoSamples)
	}
	res.RecordCount = 1
	return &geomagnetic.Reading{Value: v, Time: s.clock.Now().UTC().Truncate(time.Hour)}, res, nil
}

var dstTriple = regexp.MustCompile(`>\s*(\d{1,2})\s+(\d{1,2})\s+(-?\d{1,4})\s*<`)

// parseDst takes the last "day hour value" cell in the page.
func parseDst(body []byte) (float64, bool) {
	rows := dstTriple.FindAllSubmatch(body, -1)
	if len(rows) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(rows[len(rows)-1][3]), 64)
	return v, err == nil
}
