package countdown

import (
	"context"
	"sync"
	"time"

	"prayerbell/internal/eventbus"
	"prayerbell/internal/prayer"
	logx "prayerbell/pkg/logx"
)

// DayLoader fetches one day's EventTimeSet. The clock calls it from a
// separate goroutine so a slow fetch never blocks a tick.
type DayLoader interface {
	LoadDay(ctx context.Context, date time.Time) (prayer.EventTimeSet, error)
}

// DayLoaderFunc adapts a function to DayLoader.
type DayLoaderFunc func(ctx context.Context, date time.Time) (prayer.EventTimeSet, error)

func (f DayLoaderFunc) LoadDay(ctx context.Context, date time.Time) (prayer.EventTimeSet, error) {
	return f(ctx, date)
}

type Config struct {
	// Tick is the countdown refresh period (default 1s).
	Tick time.Duration
	// NowHold is how long the transient "Now" state is held before the
	// single debounced re-resolution (default 1s, never shorter than Tick).
	NowHold time.Duration
	// FetchRetry is the minimum gap between two tomorrow-fetch attempts
	// (default 30s).
	FetchRetry time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.NowHold < c.Tick {
		c.NowHold = c.Tick
	}
	if c.FetchRetry <= 0 {
		c.FetchRetry = 30 * time.Second
	}
	return c
}

// Clock is the single-threaded periodic re-evaluator. One goroutine owns the
// ticker, the "Now" hold timer and every resolution, so evaluations never
// overlap; ticks that arrive while an evaluation runs are dropped by the
// ticker's one-slot channel.
type Clock struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	loader DayLoader
	now    func() time.Time

	mu        sync.Mutex
	today     prayer.EventTimeSet
	tomorrow  prayer.EventTimeSet
	toggles   prayer.Toggles
	state     State
	fetching  bool
	lastFetch time.Time

	kick chan struct{}

	subsMu sync.Mutex
	subs   []chan State

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	baseCtx context.Context
}

type Option func(*Clock)

func WithLogger(log logx.Logger) Option { return func(c *Clock) { c.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(c *Clock) { c.bus = bus } }

func WithLoader(l DayLoader) Option { return func(c *Clock) { c.loader = l } }

// WithNow overrides the time source (tests).
func WithNow(now func() time.Time) Option { return func(c *Clock) { c.now = now } }

func NewClock(cfg Config, opts ...Option) *Clock {
	c := &Clock{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		kick:    make(chan struct{}, 1),
		state:   State{Kind: KindLoading},
		baseCtx: context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.bus == nil {
		c.bus = eventbus.Nop{}
	}
	return c
}

// Start runs the clock until ctx is cancelled or Stop is called.
// Start is idempotent.
func (c *Clock) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.baseCtx = rctx
	c.done = make(chan struct{})
	go c.run(rctx, c.done)
	c.log.Debug("countdown started", logx.Duration("tick", c.cfg.Tick))
}

// Stop halts the clock and waits for the loop to exit.
func (c *Clock) Stop() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetDays replaces today's and tomorrow's sets and forces a re-run.
// tomorrow may be empty.
func (c *Clock) SetDays(today, tomorrow prayer.EventTimeSet) {
	c.mu.Lock()
	c.today = today
	c.tomorrow = tomorrow
	c.mu.Unlock()
	c.Trigger()
}

// SetTomorrow installs tomorrow's set (typically after an async fetch).
func (c *Clock) SetTomorrow(tomorrow prayer.EventTimeSet) {
	c.mu.Lock()
	c.tomorrow = tomorrow
	c.mu.Unlock()
	c.Trigger()
}

// SetToggles changes visibility and forces a re-run.
func (c *Clock) SetToggles(t prayer.Toggles) {
	c.mu.Lock()
	c.toggles = t
	c.mu.Unlock()
	c.Trigger()
}

// Trigger cancels the active timer and forces an immediate re-resolution.
// Concurrent triggers coalesce into one run.
func (c *Clock) Trigger() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// State returns the latest emitted state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ResolveNow resolves against the current data without touching the loop.
func (c *Clock) ResolveNow() State {
	c.mu.Lock()
	today, tomorrow, toggles := c.today, c.tomorrow, c.toggles
	c.mu.Unlock()
	return Resolve(today, tomorrow, toggles, c.now())
}

// Subscribe returns a channel receiving every emitted state. Slow
// subscribers only see the latest state.
func (c *Clock) Subscribe(buffer int) (<-chan State, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan State, buffer)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			for i, s := range c.subs {
				if s == ch {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()
	tickC := ticker.C

	var hold *time.Timer
	var holdC <-chan time.Time
	stopHold := func() {
		if hold != nil {
			hold.Stop()
			hold, holdC = nil, nil
		}
	}
	defer stopHold()

	resume := func() {
		ticker.Reset(c.cfg.Tick)
		tickC = ticker.C
	}

	step := func(full bool) {
		if c.evaluate(full) {
			// Target reached: stop ticking and arm exactly one re-resolution.
			ticker.Stop()
			tickC = nil
			stopHold()
			hold = time.NewTimer(c.cfg.NowHold)
			holdC = hold.C
		}
	}

	step(true)
	for {
		select {
		case <-ctx.Done():
			c.log.Debug("countdown stopped")
			return
		case <-c.kick:
			stopHold()
			resume()
			step(true)
		case <-holdC:
			hold, holdC = nil, nil
			resume()
			step(true)
		case <-tickC:
			step(false)
		}
	}
}

// evaluate refreshes the state. A full evaluation runs the resolver; a tick
// only recomputes the remaining time while a target is live. It reports
// whether the target has been reached.
func (c *Clock) evaluate(full bool) bool {
	now := c.now()

	c.mu.Lock()
	prev := c.state
	if !full && prev.Kind == KindEvent && prev.HasTarget() {
		rem := prev.Target.Sub(now)
		if rem <= 0 {
			st := State{Kind: KindNow, Category: prev.Category, Target: prev.Target, Display: DisplayNow}
			c.state = st
			c.mu.Unlock()
			c.emit(prev, st)
			return true
		}
		st := prev
		st.Remaining = rem
		st.Display = FormatRemaining(rem)
		c.state = st
		c.mu.Unlock()
		c.emit(prev, st)
		return false
	}
	st := Resolve(c.today, c.tomorrow, c.toggles, now)
	c.state = st
	needFetch := st.NeedTomorrow && c.loader != nil && !c.fetching &&
		(c.lastFetch.IsZero() || now.Sub(c.lastFetch) >= c.cfg.FetchRetry)
	var date time.Time
	if needFetch {
		c.fetching = true
		c.lastFetch = now
		date = c.today.Date().AddDate(0, 0, 1)
	}
	c.mu.Unlock()

	c.emit(prev, st)
	if needFetch {
		go c.fetchTomorrow(date)
	}
	return false
}

func (c *Clock) fetchTomorrow(date time.Time) {
	c.runMu.Lock()
	ctx := c.baseCtx
	c.runMu.Unlock()

	set, err := c.loader.LoadDay(ctx, date)

	c.mu.Lock()
	c.fetching = false
	c.mu.Unlock()

	if err != nil || set.Empty() {
		c.log.Warn("tomorrow fetch failed", logx.String("date", prayer.DayKey(date)), logx.Err(err))
		return
	}
	c.log.Debug("tomorrow fetched", logx.String("date", prayer.DayKey(date)))
	c.SetTomorrow(set)
}

func (c *Clock) emit(prev, st State) {
	c.subsMu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
	c.subsMu.Unlock()

	if !prev.Same(st) {
		c.log.Debug("countdown state changed",
			logx.String("label", st.Label()),
			logx.Time("target", st.Target),
			logx.String("remaining", st.Display),
		)
		c.bus.Publish(eventbus.Event{Type: eventbus.TopicCountdownState, Data: st})
	}
}
