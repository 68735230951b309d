package alerts

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"prayerbell/internal/planner"
)

type recordingStore struct {
	mu      sync.Mutex
	ops     []string
	failIDs map[string]bool
	block   chan struct{} // first Register waits here until ctx is done
	blocked bool
}

func (s *recordingStore) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "cancel")
	return nil
}

func (s *recordingStore) Register(ctx context.Context, id string, trigger time.Time, p planner.Payload) error {
	s.mu.Lock()
	if s.block != nil && !s.blocked {
		s.blocked = true
		s.mu.Unlock()
		close(s.block)
		<-ctx.Done()
		return ctx.Err()
	}
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return errors.New("platform rejected")
	}
	s.ops = append(s.ops, id)
	return nil
}

func (s *recordingStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

type markerRecorder struct {
	mu      sync.Mutex
	through time.Time
}

func (m *markerRecorder) SetScheduledThrough(_ context.Context, t time.Time) error {
	m.mu.Lock()
	m.through = t
	m.mu.Unlock()
	return nil
}

func testPlan(prefix string, n int) planner.Plan {
	start := time.Now().Add(time.Hour)
	p := planner.Plan{}
	for i := 0; i < n; i++ {
		c := planner.Candidate{
			ID:      fmt.Sprintf("%s-%d", prefix, i),
			Trigger: start.Add(time.Duration(i) * time.Minute),
			Kind:    planner.KindStart,
		}
		p.Candidates = append(p.Candidates, c)
		p.Through = c.Trigger
	}
	return p
}

func TestReplaceCancelsThenRegistersInOrder(t *testing.T) {
	t.Parallel()
	st := &recordingStore{}
	mk := &markerRecorder{}
	r := NewReplacer(st, nil, ReplacerConfig{}, WithMarker(mk))

	plan := testPlan("a", 3)
	res := r.Replace(context.Background(), "test", plan)

	if want := []string{"cancel", "a-0", "a-1", "a-2"}; !reflect.DeepEqual(st.Ops(), want) {
		t.Fatalf("ops = %v, want %v", st.Ops(), want)
	}
	if res.Registered != 3 || res.Failed != 0 || res.Abandoned {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.PassID == "" {
		t.Fatalf("missing pass id")
	}
	if !mk.through.Equal(plan.Through) {
		t.Fatalf("marker = %s, want %s", mk.through, plan.Through)
	}
	if r.Phase() != PhaseIdle {
		t.Fatalf("phase = %s after pass", r.Phase())
	}
}

func TestReplaceContinuesAfterRegisterFailure(t *testing.T) {
	t.Parallel()
	st := &recordingStore{failIDs: map[string]bool{"a-1": true}}
	r := NewReplacer(st, nil, ReplacerConfig{})

	res := r.Replace(context.Background(), "test", testPlan("a", 3))
	if res.Registered != 2 || res.Failed != 1 {
		t.Fatalf("registered=%d failed=%d", res.Registered, res.Failed)
	}
	if want := []string{"cancel", "a-0", "a-2"}; !reflect.DeepEqual(st.Ops(), want) {
		t.Fatalf("ops = %v", st.Ops())
	}
}

func TestMarkerCoversOnlyRegisteredAlerts(t *testing.T) {
	t.Parallel()
	st := &recordingStore{failIDs: map[string]bool{"a-3": true, "a-4": true}}
	m := &markerRecorder{}
	r := NewReplacer(st, nil, ReplacerConfig{}, WithMarker(m))

	plan := testPlan("a", 5)
	meta := planner.Candidate{ID: "meta", Trigger: plan.Through.Add(time.Hour), Kind: planner.KindMeta}
	plan.Candidates = append(plan.Candidates, meta)

	res := r.Replace(context.Background(), "test", plan)
	if res.Registered != 4 || res.Failed != 2 {
		t.Fatalf("registered=%d failed=%d", res.Registered, res.Failed)
	}
	want := plan.Candidates[2].Trigger
	if !res.Through.Equal(want) {
		t.Fatalf("result through = %s, want %s", res.Through, want)
	}
	m.mu.Lock()
	got := m.through
	m.mu.Unlock()
	if !got.Equal(want) {
		t.Fatalf("marker = %s, want %s (last registered, meta excluded)", got, want)
	}
}

func TestFailedGenerationKeepsNewerPassPhase(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	st := &recordingStore{block: make(chan struct{})}
	r := NewReplacer(st, func(context.Context) (planner.Plan, error) {
		close(started)
		<-release
		return planner.Plan{}, errors.New("source down")
	}, ReplacerConfig{})

	genDone := make(chan error, 1)
	go func() {
		_, err := r.Regenerate(context.Background(), "slow")
		genDone <- err
	}()
	<-started

	replDone := make(chan Result, 1)
	go func() { replDone <- r.Replace(context.Background(), "newer", testPlan("new", 3)) }()
	<-st.block
	if got := r.Phase(); got != PhaseReplacing {
		t.Fatalf("phase = %s, want replacing", got)
	}

	close(release)
	if err := <-genDone; err == nil {
		t.Fatalf("expected generator error")
	}
	if got := r.Phase(); got != PhaseReplacing {
		t.Fatalf("phase after stale generator failure = %s, want replacing", got)
	}

	r.Cancel()
	<-replDone
}

func TestNewerPassSupersedesInFlightPass(t *testing.T) {
	t.Parallel()
	st := &recordingStore{block: make(chan struct{})}
	r := NewReplacer(st, nil, ReplacerConfig{})

	first := make(chan Result, 1)
	go func() { first <- r.Replace(context.Background(), "first", testPlan("old", 5)) }()
	<-st.block

	second := r.Replace(context.Background(), "second", testPlan("new", 2))
	old := <-first

	if !old.Abandoned || old.Registered != 0 {
		t.Fatalf("first pass = %+v, want abandoned", old)
	}
	if second.Abandoned || second.Registered != 2 {
		t.Fatalf("second pass = %+v", second)
	}
	if want := []string{"cancel", "cancel", "new-0", "new-1"}; !reflect.DeepEqual(st.Ops(), want) {
		t.Fatalf("ops = %v, want %v", st.Ops(), want)
	}
}

func TestRegenerateGeneratorErrorKeepsPending(t *testing.T) {
	t.Parallel()
	st := &recordingStore{}
	r := NewReplacer(st, func(context.Context) (planner.Plan, error) {
		return planner.Plan{}, errors.New("source down")
	}, ReplacerConfig{})

	if _, err := r.Regenerate(context.Background(), "test"); err == nil {
		t.Fatalf("expected error")
	}
	if ops := st.Ops(); len(ops) != 0 {
		t.Fatalf("store touched on failed generation: %v", ops)
	}
	if r.Last().Err == "" {
		t.Fatalf("last result has no error")
	}
}

func TestRequestDebounces(t *testing.T) {
	t.Parallel()
	st := &recordingStore{}
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{}, 4)
	r := NewReplacer(st, func(context.Context) (planner.Plan, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
		return testPlan("d", 1), nil
	}, ReplacerConfig{Debounce: 30 * time.Millisecond})

	r.Request("toggles")
	r.Request("prefs")
	r.Request("toggles")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced pass never ran")
	}
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("generator ran %d times, want 1", calls)
	}
	deadline := time.Now().Add(time.Second)
	for r.Last().Reason == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.Last().Reason; got != "toggles,prefs" {
		t.Fatalf("reason = %q", got)
	}
}

func TestTimerStoreCeiling(t *testing.T) {
	t.Parallel()
	s := NewTimerStore(2, nil)
	defer s.Stop()
	ctx := context.Background()
	at := time.Now().Add(time.Hour)

	if err := s.Register(ctx, "a", at, planner.Payload{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(ctx, "b", at, planner.Payload{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(ctx, "c", at, planner.Payload{}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	// Upsert of an existing ID does not count against the ceiling.
	if err := s.Register(ctx, "a", at.Add(time.Minute), planner.Payload{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	if err := s.CancelAll(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("len after cancel = %d", s.Len())
	}
}

func TestTimerStoreFiresOnceAndCancelledNever(t *testing.T) {
	t.Parallel()
	fired := make(chan Alert, 4)
	s := NewTimerStore(8, func(a Alert) { fired <- a })
	defer s.Stop()
	ctx := context.Background()

	if err := s.Register(ctx, "keep", time.Now().Add(20*time.Millisecond), planner.Payload{Title: "Fajr"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(ctx, "drop", time.Now().Add(20*time.Millisecond), planner.Payload{}); err != nil {
		t.Fatal(err)
	}
	// Re-registering "drop" and then cancelling everything must silence both
	// of its timers; "keep" is re-added afterwards.
	_ = s.Register(ctx, "drop", time.Now().Add(30*time.Millisecond), planner.Payload{})
	_ = s.CancelAll(ctx)
	if err := s.Register(ctx, "keep", time.Now().Add(20*time.Millisecond), planner.Payload{Title: "Fajr"}); err != nil {
		t.Fatal(err)
	}

	select {
	case a := <-fired:
		if a.ID != "keep" || a.Payload.Title != "Fajr" {
			t.Fatalf("fired %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("alert never fired")
	}
	select {
	case a := <-fired:
		t.Fatalf("unexpected second fire %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
	if s.Fired() != 1 || s.Len() != 0 {
		t.Fatalf("fired=%d len=%d", s.Fired(), s.Len())
	}
}

func TestReplacerWithTimerStoreRespectsCeiling(t *testing.T) {
	t.Parallel()
	s := NewTimerStore(4, nil)
	defer s.Stop()
	r := NewReplacer(s, nil, ReplacerConfig{RegisterRate: 1000})

	res := r.Replace(context.Background(), "test", testPlan("x", 6))
	if res.Registered != 4 || res.Failed != 2 {
		t.Fatalf("registered=%d failed=%d", res.Registered, res.Failed)
	}
	pending := s.Pending()
	if len(pending) != 4 || pending[0].ID != "x-0" {
		t.Fatalf("pending = %+v", pending)
	}
}
