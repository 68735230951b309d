package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"prayerbell/internal/planner"
	"prayerbell/internal/prayer"
	"prayerbell/internal/settings"
	"prayerbell/internal/source"
	logx "prayerbell/pkg/logx"
)

// ErrNoTimings is returned when a whole planning window failed to load.
var ErrNoTimings = errors.New("no prayer times available for the planning window")

// Planning joins the time source, the settings view and the planning pass.
// It is the Replacer's generator and the countdown's day loader.
type Planning struct {
	base     source.Source // nil selects the HTTP source
	settings *settings.Service
	log      logx.Logger
	now      func() time.Time

	mu     sync.RWMutex
	loc    prayer.Location
	method prayer.Method
	tz     *time.Location
	days   int
	cfg    planner.Config
	cache  *source.Cache
	window *source.Window
	last   planner.Plan
}

func newPlanning(rc runtimeConfig, base source.Source, set *settings.Service, log logx.Logger) *Planning {
	p := &Planning{base: base, settings: set, log: log, now: time.Now}
	p.Apply(rc)
	return p
}

// Apply installs a new runtime config. The day cache is rebuilt when the
// source or location changed; it reports whether that happened.
func (p *Planning) Apply(rc runtimeConfig) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := p.cache == nil || p.loc != rc.Location || p.method != rc.Method
	p.loc, p.method, p.days, p.cfg = rc.Location, rc.Method, rc.Days, rc.Planner
	p.tz = source.LoadLocation(rc.Location, time.Local)

	src := p.base
	if src == nil {
		src = source.NewHTTP(rc.HTTP, p.log.With(logx.String("comp", "source.http")))
	}
	if changed || p.base == nil {
		p.cache = source.NewCache(src, rc.CacheSize)
	}
	p.window = source.NewWindow(p.cache, rc.Window, p.log.With(logx.String("comp", "source.window")))
	return changed
}

func (p *Planning) snapshot() (prayer.Location, prayer.Method, *time.Location, int, planner.Config, *source.Cache, *source.Window) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loc, p.method, p.tz, p.days, p.cfg, p.cache, p.window
}

// Location returns the configured location's timezone.
func (p *Planning) Location() *time.Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tz
}

// Generate loads the window and runs one planning pass. An entirely
// unavailable window is an error so the pending alerts stay in place.
func (p *Planning) Generate(ctx context.Context) (planner.Plan, error) {
	loc, method, tz, days, cfg, _, window := p.snapshot()
	now := p.now().In(tz)

	sets, rep, err := window.Load(ctx, now, days, loc, method)
	if err != nil {
		return planner.Plan{}, err
	}
	if rep.Loaded == 0 {
		return planner.Plan{}, ErrNoTimings
	}
	plan := planner.Build(planner.Input{
		Days:    sets,
		Prefs:   p.settings.Preferences(),
		Toggles: p.settings.Toggles(),
		Now:     now,
	}, cfg)

	p.log.Info("plan built",
		logx.Int("days", rep.Days),
		logx.Int("days_failed", rep.Failed),
		logx.Int("generated", plan.Generated),
		logx.Int("selected", len(plan.Candidates)),
		logx.Int("dropped", plan.Dropped),
		logx.Int("past", plan.Past),
		logx.Int("guarded", plan.Guarded),
		logx.Time("through", plan.Through),
	)
	p.mu.Lock()
	p.last = plan
	p.mu.Unlock()
	return plan, nil
}

// LastPlan returns the most recently built plan.
func (p *Planning) LastPlan() planner.Plan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// LoadDay fetches one civil day through the cache.
func (p *Planning) LoadDay(ctx context.Context, date time.Time) (prayer.EventTimeSet, error) {
	loc, method, tz, _, _, cache, _ := p.snapshot()
	return cache.Fetch(ctx, date.In(tz), loc, method)
}

// Days loads today and tomorrow. Either may be empty on failure.
func (p *Planning) Days(ctx context.Context) (today, tomorrow prayer.EventTimeSet) {
	tz := p.Location()
	now := p.now().In(tz)
	var err error
	if today, err = p.LoadDay(ctx, now); err != nil {
		p.log.Warn("today's prayer times unavailable", logx.Err(err))
	}
	if tomorrow, err = p.LoadDay(ctx, now.AddDate(0, 0, 1)); err != nil {
		p.log.Debug("tomorrow's prayer times unavailable", logx.Err(err))
	}
	return today, tomorrow
}

// Purge drops cached days.
func (p *Planning) Purge() {
	_, _, _, _, _, cache, _ := p.snapshot()
	cache.Purge()
}
