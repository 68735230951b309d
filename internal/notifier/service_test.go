package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prayerbell/internal/transport"
	logx "prayerbell/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	failures int
	sent     []string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return transport.MessageRef{}, errors.New("telegram: too many requests")
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testConfig() Config {
	return Config{
		Enabled:     true,
		Workers:     1,
		RatePerSec:  100,
		RetryMax:    2,
		RetryBase:   time.Millisecond,
		DedupWindow: time.Minute,
	}
}

func waitSent(t *testing.T, f *fakeAdapter, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := f.Sent(); len(s) >= n {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sent %d messages, want %d", len(f.Sent()), n)
	return nil
}

var chat = transport.ChatTarget{ChatID: 42}

func TestNotifyRetriesThenDelivers(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{failures: 2}
	s := New(testConfig(), ad, logx.Nop(), nil, nil)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Notify(ctx, transport.Notification{Channel: "telegram", Target: chat, Text: "Fajr is at 05:42"}); err != nil {
		t.Fatal(err)
	}
	got := waitSent(t, ad, 1)
	if got[0] != "Fajr is at 05:42" {
		t.Fatalf("sent %q", got[0])
	}
	if st := s.Stats(); st.Sent != 1 || st.Failed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestNotifyDedupsWithinWindow(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(testConfig(), ad, logx.Nop(), nil, nil)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	n := transport.Notification{Channel: "telegram", Target: chat, Text: "Maghrib is at 17:48"}
	for i := 0; i < 3; i++ {
		if err := s.Notify(ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	waitSent(t, ad, 1)
	time.Sleep(50 * time.Millisecond)
	if len(ad.Sent()) != 1 {
		t.Fatalf("duplicates delivered: %v", ad.Sent())
	}
	if s.Stats().Deduped != 2 {
		t.Fatalf("deduped = %d", s.Stats().Deduped)
	}
}

type memDedup struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (d *memDedup) PutDedup(_ context.Context, k string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[k] = until
	return nil
}

func (d *memDedup) GetDedup(_ context.Context, k string) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.m[k]
	return u, ok, nil
}

func TestPersistedDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	store := &memDedup{m: map[string]time.Time{}}
	cfg := testConfig()
	cfg.PersistDedup = true
	ctx := context.Background()
	n := transport.Notification{Channel: "telegram", Target: chat, Text: "Isha is at 18:55"}

	first := &fakeAdapter{}
	s1 := New(cfg, first, logx.Nop(), nil, store)
	s1.Start(ctx)
	if err := s1.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	waitSent(t, first, 1)
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	s1.Stop(stopCtx)
	cancel()

	second := &fakeAdapter{}
	s2 := New(cfg, second, logx.Nop(), nil, store)
	s2.Start(ctx)
	defer s2.Stop(ctx)
	if err := s2.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(second.Sent()) != 0 {
		t.Fatalf("duplicate delivered after restart")
	}
}

func TestNotifyRejects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(testConfig(), &fakeAdapter{}, logx.Nop(), nil, nil)
	if err := s.Notify(ctx, transport.Notification{Target: chat, Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	s.Start(ctx)
	defer s.Stop(ctx)
	if err := s.Notify(ctx, transport.Notification{Text: "x"}); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("err = %v, want ErrNoTarget", err)
	}

	disabled := New(Config{}, &fakeAdapter{}, logx.Nop(), nil, nil)
	disabled.Start(ctx)
	if err := disabled.Notify(ctx, transport.Notification{Target: chat, Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: time.Second, RetryMaxDelay: 3 * time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %s", attempt, d)
		}
	}
}
