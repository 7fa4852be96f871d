// Package consensus fuses per-provider cloud cover into one value per hour.
package consensus

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

// ProviderPriority is the stable iteration order used for outlier ties.
// Unknown sources follow in lexical order.
var ProviderPriority = []string{"met", "smhi", "openmeteo"}

// Options controls one consensus run.
type Options struct {
	Method                models.ConsensusMethod
	Weights               map[string]float64
	DisagreementThreshold float64
	MediumLevel           float64
	HighLevel             float64
}

// OptionsFromConfig builds Options from the consensus config section.
func OptionsFromConfig(cfg config.ConsensusConfig) Options {
	return Options{
		Method:                models.ConsensusMethod(cfg.Method),
		Weights:               cfg.Weights,
		DisagreementThreshold: cfg.DisagreementThreshold,
		MediumLevel:           cfg.Levels.Medium,
		HighLevel:             cfg.Levels.High,
	}
}

// Compute returns one row per distinct hour present in any source, ordered by time.
// A zero-weight source is left out of the weighted median only; it still
// counts toward single-source, spread, disagreement and outlier.
func Compute(samples map[string][]models.HourlyCloudSample, opts Options) []models.ConsensusHourly {
	sources := orderedSources(samples)

	byHour := make(map[time.Time]map[string]*float64)
	for _, src := range sources {
		for _, s := range samples[src] {
			hour := s.Time.UTC().Truncate(time.Hour)
			slot, ok := byHour[hour]
			if !ok {
				slot = make(map[string]*float64)
				byHour[hour] = slot
			}
			var v *float64
			if s.CloudPct != nil && isFinite(*s.CloudPct) {
				v = models.Ptr(*s.CloudPct)
			}
			// keep an earlier numeric value over a later null for the same hour
			if existing, seen := slot[src]; seen && existing != nil && v == nil {
				continue
			}
			slot[src] = v
		}
	}

	hours := make([]time.Time, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	out := make([]models.ConsensusHourly, 0, len(hours))
	for _, h := range hours {
		out = append(out, Hour(h, byHour[h], sources, opts))
	}
	return out
}

// Hour fuses the per-source values for a single hour. order fixes the
// iteration order for outlier ties; sources missing from it are appended.
func Hour(t time.Time, perSource map[string]*float64, order []string, opts Options) models.ConsensusHourly {
	row := models.ConsensusHourly{
		Time:      t,
		Method:    models.MethodNone,
		PerSource: make(map[string]*float64, len(perSource)),
	}

	order = completeOrder(order, perSource)

	type present struct {
		source string
		value  float64
	}
	var values []present
	for _, src := range order {
		v, ok := perSource[src]
		if !ok {
			continue
		}
		row.PerSource[src] = v
		if v != nil && isFinite(*v) {
			values = append(values, present{src, *v})
		}
	}

	switch len(values) {
	case 0:
		return row
	case 1:
		row.Method = models.MethodSingle
		row.ConsensusPct = models.Ptr(values[0].value)
	default:
		vals := make([]float64, len(values))
		ws := make([]float64, len(values))
		for i, p := range values {
			vals[i] = p.value
			ws[i] = opts.Weights[p.source]
		}
		var c *float64
		if opts.Method == models.MethodMedian {
			c = Median(vals)
			row.Method = models.MethodMedian
		} else {
			c = WeightedMedian(vals, ws)
			row.Method = models.MethodWeightedMedian
		}
		if c == nil {
			// every present source has a non-positive weight
			c = Median(vals)
			row.Method = models.MethodMedian
		}
		row.ConsensusPct = c
	}

	if len(values) >= 2 {
		lo, hi := values[0].value, values[0].value
		for _, p := range values[1:] {
			lo = math.Min(lo, p.value)
			hi = math.Max(hi, p.value)
		}
		spread := hi - lo
		row.SpreadPct = models.Ptr(spread)
		row.Disagree = spread >= opts.DisagreementThreshold
		row.DisagreementLevel = Level(spread, opts.MediumLevel, opts.HighLevel)

		c := *row.ConsensusPct
		best := -1.0
		for _, p := range values {
			d := math.Abs(p.value - c)
			if d > best {
				best = d
				row.OutlierSource = models.Ptr(p.source)
				row.OutlierDiffPct = models.Ptr(d)
			}
		}
	}

	return row
}

// Level buckets a spread into low, medium or high.
func Level(spread, medium, high float64) models.DisagreementLevel {
	switch {
	case spread >= high:
		return models.DisagreementHigh
	case spread >= medium:
		return models.DisagreementMedium
	default:
		return models.DisagreementLow
	}
}

// WeightedMedian returns the first value, in ascending order, at which the
// cumulative weight reaches half the total. Non-positive weights are dropped.
// It returns nil when nothing participates.
func WeightedMedian(values, weights []float64) *float64 {
	type pair struct{ v, w float64 }
	var pairs []pair
	var total float64
	for i, v := range values {
		if i >= len(weights) {
			break
		}
		w := weights[i]
		if !isFinite(v) || !isFinite(w) || w <= 0 {
			continue
		}
		pairs = append(pairs, pair{v, w})
		total += w
	}
	if len(pairs) == 0 || total == 0 {
		return nil
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	var acc float64
	for _, p := range pairs {
		acc += p.w
		if acc >= total/2 {
			return models.Ptr(p.v)
		}
	}
	return models.Ptr(pairs[len(pairs)-1].v)
}

// Median returns the plain median of the finite values, or nil.
func Median(values []float64) *float64 {
	var v []float64
	for _, x := range values {
		if isFinite(x) {
			v = append(v, x)
		}
	}
	if len(v) == 0 {
		return nil
	}
	slices.Sort(v)
	i := len(v) / 2
	if len(v)%2 == 1 {
		return models.Ptr(v[i])
	}
	return models.Ptr((v[i-1] + v[i]) / 2)
}

func orderedSources(samples map[string][]models.HourlyCloudSample) []string {
	present := make(map[string]*float64, len(samples))
	for src := range samples {
		present[src] = nil
	}
	return completeOrder(nil, present)
}

// completeOrder returns order followed by the remaining keys of m: priority
// providers first, then the rest sorted.
func completeOrder(order []string, m map[string]*float64) []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	add := func(src string) {
		if _, ok := m[src]; ok && !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	for _, src := range order {
		add(src)
	}
	for _, src := range ProviderPriority {
		add(src)
	}
	var rest []string
	for src := range m {
		if !seen[src] {
			rest = append(rest, src)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
