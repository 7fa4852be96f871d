package window

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"
)

// TZFinder resolves the civil time zone at a coordinate.
type TZFinder interface {
	Location(lat, lon float64) (*time.Location, error)
}

type tzfFinder struct {
	finder tzf.F
	mu     sync.RWMutex
}

var (
	finderInstance *tzfFinder
	finderErr      error
	finderOnce     sync.Once
)

// NewTZFinder returns the shared tzf-backed finder. The polygon data is
// large, so it is loaded once per process.
func NewTZFinder() (TZFinder, error) {
	finderOnce.Do(func() {
		f, err := tzf.NewDefaultFinder()
		if err != nil {
			finderErr = fmt.Errorf("failed to initialize timezone finder: %w", err)
			return
		}
		finderInstance = &tzfFinder{finder: f}
	})
	if finderErr != nil {
		return nil, finderErr
	}
	return finderInstance, nil
}

func (f *tzfFinder) Location(lat, lon float64) (*time.Location, error) {
	f.mu.RLock()
	name := f.finder.GetTimezoneName(lon, lat)
	f.mu.RUnlock()

	if name == "" {
		return nil, fmt.Errorf("could not determine timezone for coordinates lat=%f, lon=%f", lat, lon)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", name, err)
	}
	return loc, nil
}

// FixedFinder always returns the same location. Useful for tests and for
// deployments that serve one region.
type FixedFinder struct {
	Loc *time.Location
}

func (f FixedFinder) Location(float64, float64) (*time.Location, error) {
	return f.Loc, nil
}
