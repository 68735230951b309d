package source

import (
	"context"
	"errors"
	"time"

	"prayerbell/internal/prayer"
)

var ErrNoData = errors.New("source: no timings for day")

// Source returns one civil day's timings.
type Source interface {
	Fetch(ctx context.Context, date time.Time, loc prayer.Location, method prayer.Method) (prayer.EventTimeSet, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, date time.Time, loc prayer.Location, method prayer.Method) (prayer.EventTimeSet, error)

func (f Func) Fetch(ctx context.Context, date time.Time, loc prayer.Location, method prayer.Method) (prayer.EventTimeSet, error) {
	return f(ctx, date, loc, method)
}

// LoadLocation resolves the location's timezone, falling back to fallback
// (or time.Local) when it is empty or unknown.
func LoadLocation(loc prayer.Location, fallback *time.Location) *time.Location {
	if loc.Timezone != "" {
		if tz, err := time.LoadLocation(loc.Timezone); err == nil {
			return tz
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.Local
}
