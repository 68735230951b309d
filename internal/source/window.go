package source

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"prayerbell/internal/prayer"
	logx "prayerbell/pkg/logx"
)

type WindowConfig struct {
	// Concurrency bounds in-flight fetches (default 4).
	Concurrency int
	// RatePerSec paces request starts (0 = unlimited).
	RatePerSec float64
}

// Window loads consecutive days from a Source.
type Window struct {
	src     Source
	cfg     WindowConfig
	limiter *rate.Limiter
	log     logx.Logger
}

func NewWindow(src Source, cfg WindowConfig, log logx.Logger) *Window {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &Window{src: src, cfg: cfg, log: log}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return w
}

// Report summarizes one Load.
type Report struct {
	Days   int
	Loaded int
	Failed int
}

// Load fetches days starting at start's civil day. Entry i of the result is
// day index i; a failed day is an empty set. Load only returns an error when
// ctx ends.
func (w *Window) Load(ctx context.Context, start time.Time, days int, loc prayer.Location, method prayer.Method) ([]prayer.EventTimeSet, Report, error) {
	if days <= 0 {
		return nil, Report{}, nil
	}
	first := prayer.DayStart(start)
	out := make([]prayer.EventTimeSet, days)
	failed := make([]bool, days)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i := 0; i < days; i++ {
		i := i
		date := first.AddDate(0, 0, i)
		g.Go(func() error {
			if w.limiter != nil {
				if err := w.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			set, err := w.src.Fetch(gctx, date, loc, method)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed[i] = true
				w.log.Warn("day unavailable", logx.String("date", prayer.DayKey(date)), logx.Err(err))
				return nil
			}
			out[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	rep := Report{Days: days}
	for i := range out {
		if failed[i] || out[i].Empty() {
			rep.Failed++
			continue
		}
		rep.Loaded++
	}
	w.log.Debug("window loaded",
		logx.String("from", prayer.DayKey(first)),
		logx.Int("days", days),
		logx.Int("loaded", rep.Loaded),
		logx.Int("failed", rep.Failed),
	)
	return out, rep, nil
}
