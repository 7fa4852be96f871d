package geomagnetic

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/aurorawatch/internal/cache"
	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/models"
)

// Reading is a single index value and the time it applies to.
type Reading struct {
	Value float64
	Time  time.Time
}

// Sources is the set of indices available for one blend. Nil fields are absent.
type Sources struct {
	SolarWind *models.GeomagneticScoreResult
	HPO       *Reading // Hp60/Hp30 value on the Kp scale, may exceed 9
	Kp        *Reading
	HemiPower *Reading // northern hemispheric power, GW
	AE        *Reading // nT
	Dst       *Reading // nT, storms are negative
}

// Blender merges independent geomagnetic indices into one global score.
type Blender struct {
	cfg   config.GeomagneticConfig
	stale config.StaleHours
	clock clockwork.Clock
	memo  *cache.Memo[*models.BlendedGeomagnetic]
}

// NewBlender returns a blender. memo may be nil to disable memoisation.
func NewBlender(cfg config.GeomagneticConfig, stale config.StaleHours, clock clockwork.Clock, memo *cache.Memo[*models.BlendedGeomagnetic]) *Blender {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Blender{cfg: cfg, stale: stale, clock: clock, memo: memo}
}

// Invalidate drops any memoised blend so the next Current call reloads.
func (b *Blender) Invalidate() {
	if b.memo != nil {
		b.memo.Invalidate()
	}
}

// Current returns the memoised blend, calling load to gather sources on a miss.
// A nil result with a nil error means no index data is available.
func (b *Blender) Current(ctx context.Context, load func(context.Context) (Sources, error)) (*models.BlendedGeomagnetic, error) {
	if b.memo != nil {
		if v, ok := b.memo.Get(); ok {
			return WithAge(v, b.clock.Now(), b.stale), nil
		}
	}
	src, err := load(ctx)
	if err != nil {
		return nil, err
	}
	out := b.Blend(src)
	if out != nil && b.memo != nil {
		b.memo.Set(out)
	}
	return out, nil
}

// Blend converts each present source to a (kpEquivalent, score10) pair and
// combines them with weights renormalised over the present parts. It returns
// nil when nothing is present.
func (b *Blender) Blend(src Sources) *models.BlendedGeomagnetic {
	var parts []models.IndexSample

	add := func(kind models.IndexKind, kpEq, score10 float64, at time.Time, raw float64) {
		w := b.cfg.Blend[string(kind)]
		if w <= 0 || !isFinite(kpEq) || !isFinite(score10) {
			return
		}
		parts = append(parts, models.IndexSample{
			Kind:         kind,
			KpEquivalent: kpEq,
			Score10:      score10,
			Weight:       w,
			Time:         at,
			Raw:          models.Ptr(raw),
		})
	}

	if r := src.HPO; r != nil {
		kp := clamp(r.Value, 0, 12)
		add(models.IndexHPO, kp, clamp(kp/9*10, 0, 10), r.Time, r.Value)
	}
	if r := src.Kp; r != nil {
		kp := clamp(r.Value, 0, 9)
		add(models.IndexKp, kp, clamp(kp/9*10, 0, 10), r.Time, r.Value)
	}
	if sw := src.SolarWind; sw != nil && sw.Window.To != nil {
		add(models.IndexSolarWind, clamp(sw.Score*0.9, 0, 9), clamp(sw.Score, 0, 10), *sw.Window.To, sw.Score)
	}
	if r := src.HemiPower; r != nil {
		s := clamp(Piecewise(r.Value, b.cfg.Maps.HemiPowerGW), 0, 10)
		add(models.IndexHemi, s*0.9, s, r.Time, r.Value)
	}
	if r := src.AE; r != nil {
		s := clamp(Piecewise(r.Value, b.cfg.Maps.AeNT), 0, 10)
		add(models.IndexAE, s*0.9, s, r.Time, r.Value)
	}
	if r := src.Dst; r != nil {
		s := clamp(Piecewise(math.Max(0, -r.Value), b.cfg.Maps.DstNT), 0, 10)
		add(models.IndexDst, s*0.9, s, r.Time, r.Value)
	}

	if len(parts) == 0 {
		return nil
	}

	var total float64
	for _, p := range parts {
		total += p.Weight
	}

	var kpProxy, score float64
	var timeTag time.Time
	for i := range parts {
		parts[i].NormalizedWeight = parts[i].Weight / total
		kpProxy += parts[i].KpEquivalent * parts[i].NormalizedWeight
		score += parts[i].Score10 * parts[i].NormalizedWeight
		if parts[i].Time.After(timeTag) {
			timeTag = parts[i].Time
		}
	}

	return WithAge(&models.BlendedGeomagnetic{
		TimeTag:       timeTag.UTC(),
		GlobalScore10: clamp(score, 0, 10),
		KpProxy:       clamp(kpProxy, 0, 9),
		Detail:        models.BlendDetail{Parts: parts, SolarWind: src.SolarWind},
	}, b.clock.Now(), b.stale)
}

// Staleness buckets an age in hours.
func Staleness(hours float64, th config.StaleHours) models.StaleStatus {
	switch {
	case hours <= th.Fresh:
		return models.StaleFresh
	case hours <= th.Slight:
		return models.StaleSlightly
	case hours <= th.Stale:
		return models.StaleStale
	default:
		return models.StaleVery
	}
}

// WithAge returns a copy of v with StaleHours and StaleStatus measured at now.
func WithAge(v *models.BlendedGeomagnetic, now time.Time, th config.StaleHours) *models.BlendedGeomagnetic {
	if v == nil {
		return nil
	}
	out := *v
	out.StaleHours = math.Max(0, now.Sub(v.TimeTag).Hours())
	out.StaleStatus = Staleness(out.StaleHours, th)
	return &out
}

// Prime stores a blend computed elsewhere so Current serves it until expiry.
func (b *Blender) Prime(v *models.BlendedGeomagnetic) {
	if b.memo != nil && v != nil {
		b.memo.Set(v)
	}
}
