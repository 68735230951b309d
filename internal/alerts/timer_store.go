package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"prayerbell/internal/eventbus"
	"prayerbell/internal/planner"
	logx "prayerbell/pkg/logx"
)

// FireFunc receives an alert when its trigger time arrives.
type FireFunc func(a Alert)

// TimerStore keeps pending alerts as one-shot runtime timers.
//
// Register upserts by ID: the previous timer is stopped and its version
// bumped so a callback already in flight is ignored.
type TimerStore struct {
	ceiling int
	fire    FireFunc
	log     logx.Logger
	bus     eventbus.Bus
	now     func() time.Time

	mu      sync.Mutex
	stopped bool
	timers  map[string]*time.Timer
	pending map[string]Alert
	ver     map[string]uint64
	fired   uint64
}

type TimerStoreOption func(*TimerStore)

func WithStoreLogger(log logx.Logger) TimerStoreOption {
	return func(s *TimerStore) { s.log = log }
}

func WithStoreBus(bus eventbus.Bus) TimerStoreOption {
	return func(s *TimerStore) { s.bus = bus }
}

func WithStoreClock(now func() time.Time) TimerStoreOption {
	return func(s *TimerStore) { s.now = now }
}

// NewTimerStore returns a store holding at most ceiling pending alerts
// (default 64).
func NewTimerStore(ceiling int, fire FireFunc, opts ...TimerStoreOption) *TimerStore {
	if ceiling <= 0 {
		ceiling = 64
	}
	s := &TimerStore{
		ceiling: ceiling,
		fire:    fire,
		now:     time.Now,
		timers:  map[string]*time.Timer{},
		pending: map[string]Alert{},
		ver:     map[string]uint64{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	return s
}

func (s *TimerStore) Ceiling() int { return s.ceiling }

func (s *TimerStore) CancelAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	for id, t := range s.timers {
		t.Stop()
		s.ver[id]++
	}
	s.timers = map[string]*time.Timer{}
	s.pending = map[string]Alert{}
	s.log.Debug("pending alerts cancelled", logx.Int("count", n))
	return nil
}

func (s *TimerStore) Register(ctx context.Context, id string, trigger time.Time, payload planner.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return errors.New("alerts: id required")
	}
	if trigger.IsZero() {
		return errors.New("alerts: trigger required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	} else if len(s.pending) >= s.ceiling {
		return ErrQuotaExceeded
	}

	ver := s.ver[id] + 1
	s.ver[id] = ver
	a := Alert{ID: id, Trigger: trigger, Payload: payload}
	s.pending[id] = a

	delay := trigger.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.onTimer(id, ver) })
	return nil
}

func (s *TimerStore) onTimer(id string, ver uint64) {
	s.mu.Lock()
	a, ok := s.pending[id]
	if !ok || s.ver[id] != ver || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	delete(s.timers, id)
	s.fired++
	fire := s.fire
	s.mu.Unlock()

	s.log.Info("alert fired", logx.String("id", id), logx.Time("trigger", a.Trigger))
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicAlertFired, Data: a})
	if fire != nil {
		fire(a)
	}
}

// Pending returns the pending alerts ordered by trigger, then ID.
func (s *TimerStore) Pending() []Alert {
	s.mu.Lock()
	out := make([]Alert, 0, len(s.pending))
	for _, a := range s.pending {
		out = append(out, a)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Trigger.Equal(out[j].Trigger) {
			return out[i].Trigger.Before(out[j].Trigger)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *TimerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *TimerStore) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Stop cancels every timer and rejects further registrations.
func (s *TimerStore) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.pending = map[string]Alert{}
}
