package alerts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"prayerbell/internal/eventbus"
	"prayerbell/internal/planner"
	logx "prayerbell/pkg/logx"
)

// Phase is the replacer's lifecycle state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseReplacing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseReplacing:
		return "replacing"
	default:
		return "unknown"
	}
}

// Generator produces a fresh plan. An error means nothing is registered
// and the currently pending alerts stay untouched.
type Generator func(ctx context.Context) (planner.Plan, error)

type ReplacerConfig struct {
	// RegisterRate paces Register calls (per second, 0 = unlimited).
	RegisterRate float64
	// Debounce delays Request so only the last request of a burst runs
	// (default 2s).
	Debounce time.Duration
}

// Result describes one replacement pass.
type Result struct {
	PassID     string        `json:"pass_id"`
	Reason     string        `json:"reason"`
	Started    time.Time     `json:"started"`
	Took       time.Duration `json:"took"`
	Planned    int           `json:"planned"`
	Registered int           `json:"registered"`
	Failed     int           `json:"failed"`
	Abandoned  bool          `json:"abandoned"`
	Through    time.Time     `json:"through"`
	Err        string        `json:"error,omitempty"`
}

// Replacer performs full cancel-then-register replacement passes.
//
// Passes are last-writer-wins: starting a pass bumps the generation and
// cancels the previous pass, which stops registering at its next step.
// Store calls of two passes never interleave.
type Replacer struct {
	store   Store
	gen     Generator
	marker  MarkerStore
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter
	cfg     ReplacerConfig

	phase      atomic.Int32
	generation atomic.Uint64

	// runMu serializes store access between passes.
	runMu sync.Mutex

	mu         sync.Mutex
	cancelPass context.CancelFunc
	last       Result
	debounce   *time.Timer
	reasons    []string
	baseCtx    context.Context
}

type ReplacerOption func(*Replacer)

func WithMarker(m MarkerStore) ReplacerOption { return func(r *Replacer) { r.marker = m } }

func WithReplacerLogger(log logx.Logger) ReplacerOption {
	return func(r *Replacer) { r.log = log }
}

func WithReplacerBus(bus eventbus.Bus) ReplacerOption {
	return func(r *Replacer) { r.bus = bus }
}

func NewReplacer(store Store, gen Generator, cfg ReplacerConfig, opts ...ReplacerOption) *Replacer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	r := &Replacer{
		store:   store,
		gen:     gen,
		cfg:     cfg,
		baseCtx: context.Background(),
	}
	if cfg.RegisterRate > 0 {
		burst := int(cfg.RegisterRate)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RegisterRate), burst)
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.bus == nil {
		r.bus = eventbus.Nop{}
	}
	return r
}

// Bind sets the context used by debounced passes.
func (r *Replacer) Bind(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()
}

func (r *Replacer) Phase() Phase { return Phase(r.phase.Load()) }

// Last returns the result of the most recent finished pass.
func (r *Replacer) Last() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Request schedules a debounced regeneration. Reasons of a burst are
// merged into the single pass that runs.
func (r *Replacer) Request(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = appendReason(r.reasons, reason)
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(r.cfg.Debounce, r.flush)
}

func (r *Replacer) flush() {
	r.mu.Lock()
	ctx := r.baseCtx
	reasons := r.reasons
	r.reasons = nil
	r.debounce = nil
	r.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_, _ = r.Regenerate(ctx, strings.Join(reasons, ","))
}

// Cancel drops a pending debounced request and aborts any running pass.
func (r *Replacer) Cancel() {
	r.mu.Lock()
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	r.reasons = nil
	cancel := r.cancelPass
	r.mu.Unlock()
	r.generation.Add(1)
	if cancel != nil {
		cancel()
	}
}

// Regenerate runs Generating then Replacing immediately.
func (r *Replacer) Regenerate(ctx context.Context, reason string) (Result, error) {
	gen, pctx, done := r.begin(ctx)
	defer done()

	r.phase.Store(int32(PhaseGenerating))
	plan, err := r.gen(pctx)
	if err != nil {
		r.phase.CompareAndSwap(int32(PhaseGenerating), int32(PhaseIdle))
		r.log.Warn("plan generation failed", logx.String("reason", reason), logx.Err(err))
		res := Result{Reason: reason, Started: time.Now(), Err: err.Error()}
		r.finish(res)
		return res, err
	}
	if r.generation.Load() != gen {
		r.phase.CompareAndSwap(int32(PhaseGenerating), int32(PhaseIdle))
		return Result{Reason: reason, Abandoned: true}, nil
	}
	return r.replace(pctx, gen, reason, plan), nil
}

// Replace registers an already built plan.
func (r *Replacer) Replace(ctx context.Context, reason string, plan planner.Plan) Result {
	gen, pctx, done := r.begin(ctx)
	defer done()
	return r.replace(pctx, gen, reason, plan)
}

// begin supersedes any running pass and returns this pass's generation.
func (r *Replacer) begin(ctx context.Context) (uint64, context.Context, func()) {
	gen := r.generation.Add(1)
	pctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	prev := r.cancelPass
	r.cancelPass = cancel
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
	return gen, pctx, func() {
		r.mu.Lock()
		if r.generation.Load() == gen {
			r.cancelPass = nil
		}
		r.mu.Unlock()
		cancel()
	}
}

func (r *Replacer) replace(ctx context.Context, gen uint64, reason string, plan planner.Plan) Result {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	res := Result{
		PassID:  uuid.NewString(),
		Reason:  reason,
		Started: time.Now(),
		Planned: len(plan.Candidates),
	}
	log := r.log.With(logx.String("pass", res.PassID))
	superseded := func() bool { return r.generation.Load() != gen || ctx.Err() != nil }

	if superseded() {
		res.Abandoned = true
		r.finish(res)
		return res
	}
	r.phase.Store(int32(PhaseReplacing))
	defer r.phase.CompareAndSwap(int32(PhaseReplacing), int32(PhaseIdle))

	if err := r.store.CancelAll(ctx); err != nil {
		log.Warn("cancel pending alerts failed", logx.Err(err))
	}

	for _, c := range plan.Candidates {
		if superseded() {
			res.Abandoned = true
			break
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				res.Abandoned = true
				break
			}
		}
		if err := r.store.Register(ctx, c.ID, c.Trigger, c.Payload); err != nil {
			if errors.Is(err, context.Canceled) && superseded() {
				res.Abandoned = true
				break
			}
			res.Failed++
			log.Warn("register alert failed", logx.String("id", c.ID), logx.Time("trigger", c.Trigger), logx.Err(err))
			continue
		}
		res.Registered++
		if c.Kind != planner.KindMeta && c.Trigger.After(res.Through) {
			res.Through = c.Trigger
		}
	}
	res.Took = time.Since(res.Started)

	if res.Abandoned {
		log.Info("replacement superseded",
			logx.String("reason", reason),
			logx.Int("registered", res.Registered),
			logx.Int("planned", res.Planned),
		)
		r.finish(res)
		return res
	}

	// The marker covers only what actually registered; a zero marker makes
	// the coverage check ask again.
	if r.marker != nil && !plan.Through.IsZero() {
		if err := r.marker.SetScheduledThrough(ctx, res.Through); err != nil {
			log.Warn("write scheduled-through marker failed", logx.Err(err))
		}
	}
	log.Info("alerts replaced",
		logx.String("reason", reason),
		logx.Int("registered", res.Registered),
		logx.Int("failed", res.Failed),
		logx.Int("generated", plan.Generated),
		logx.Int("dropped", plan.Dropped),
		logx.Time("through", res.Through),
		logx.Duration("took", res.Took),
	)
	r.finish(res)
	r.bus.Publish(eventbus.Event{Type: eventbus.TopicScheduleReplaced, Data: res})
	return res
}

func (r *Replacer) finish(res Result) {
	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
}

func appendReason(rs []string, r string) []string {
	if r == "" {
		return rs
	}
	for _, x := range rs {
		if x == r {
			return rs
		}
	}
	return append(rs, r)
}
