package refresh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "prayerbell/pkg/logx"
)

type Config struct {
	// Check is how often coverage is examined (default "1h").
	Check string
	// MinCoverage is the minimum distance between now and the
	// "scheduled through" marker (default 7 days).
	MinCoverage time.Duration
	// Rollover is the daily reload spec (default "1 0 * * *").
	Rollover string
	// Timezone for cron evaluation; empty means local.
	Timezone string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Check) == "" {
		c.Check = "1h"
	}
	if c.MinCoverage <= 0 {
		c.MinCoverage = 7 * 24 * time.Hour
	}
	if strings.TrimSpace(c.Rollover) == "" {
		c.Rollover = "1 0 * * *"
	}
	return c
}

// Hooks connects the watcher to the rest of the application.
type Hooks struct {
	// Through returns the current "scheduled through" marker.
	Through func() time.Time
	// Request asks for an asynchronous regeneration.
	Request func(reason string)
	// Rollover reloads day data after midnight.
	Rollover func(ctx context.Context)
}

type Watcher struct {
	cfg    Config
	hooks  Hooks
	log    logx.Logger
	now    func() time.Time
	parser cron.Parser

	mu     sync.Mutex
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	checks int
}

type Option func(*Watcher)

func WithLogger(log logx.Logger) Option { return func(w *Watcher) { w.log = log } }

// WithNow overrides the time source used by the coverage check.
func WithNow(now func() time.Time) Option { return func(w *Watcher) { w.now = now } }

func New(cfg Config, hooks Hooks, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:    cfg.withDefaults(),
		hooks:  hooks,
		now:    time.Now,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, o := range opts {
		o(w)
	}
	if w.log.IsZero() {
		w.log = logx.Nop()
	}
	return w
}

// Start validates both schedules and begins triggering. A coverage check
// runs once immediately. Start is idempotent.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return nil
	}
	check, err := ParseSchedule(w.cfg.Check)
	if err != nil {
		return fmt.Errorf("refresh check: %w", err)
	}
	roll, err := ParseSchedule(w.cfg.Rollover)
	if err != nil {
		return fmt.Errorf("refresh rollover: %w", err)
	}

	loc := time.Local
	if tz := strings.TrimSpace(w.cfg.Timezone); tz != "" {
		if l, lerr := time.LoadLocation(tz); lerr == nil {
			loc = l
		} else {
			w.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(lerr))
		}
	}

	c := cron.New(cron.WithParser(w.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(check.CronSpec(), func() { w.CheckCoverage() }); err != nil {
		return fmt.Errorf("refresh check %q: %w", check, err)
	}
	if _, err := c.AddFunc(roll.CronSpec(), w.rollover); err != nil {
		return fmt.Errorf("refresh rollover %q: %w", roll, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.c = c
	c.Start()
	w.log.Info("refresh watcher started",
		logx.String("check", check.String()),
		logx.String("rollover", roll.String()),
		logx.Duration("min_coverage", w.cfg.MinCoverage),
		logx.String("tz", loc.String()),
	)
	go w.CheckCoverage()
	return nil
}

// Stop halts triggering and waits for running jobs, bounded by ctx.
func (w *Watcher) Stop(ctx context.Context) {
	w.mu.Lock()
	c, cancel := w.c, w.cancel
	w.c, w.cancel = nil, nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	w.log.Info("refresh watcher stopped")
}

// CheckCoverage requests regeneration when the marker is unset or closer
// than MinCoverage. It reports whether a request was made.
func (w *Watcher) CheckCoverage() bool {
	w.mu.Lock()
	w.checks++
	w.mu.Unlock()

	if w.hooks.Through == nil || w.hooks.Request == nil {
		return false
	}
	now := w.now()
	through := w.hooks.Through()
	if !through.IsZero() && through.Sub(now) >= w.cfg.MinCoverage {
		return false
	}
	w.log.Info("coverage low, requesting regeneration",
		logx.Time("through", through),
		logx.Duration("min_coverage", w.cfg.MinCoverage),
	)
	w.hooks.Request("coverage")
	return true
}

// Checks returns how many coverage checks have run.
func (w *Watcher) Checks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checks
}

func (w *Watcher) rollover() {
	if w.hooks.Rollover == nil {
		return
	}
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	w.log.Debug("daily rollover")
	w.hooks.Rollover(ctx)
}
