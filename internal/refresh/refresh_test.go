package refresh

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		cron  string
		every time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", cron: "*/5 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", cron: "0 0 * * *"},
		{name: "descriptor", raw: "@daily", cron: "@daily"},
		{name: "duration", raw: "10m", every: 10 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", every: 45 * time.Second},
		{name: "hhmm", raw: "01:30", every: 90 * time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Cron != tt.cron || got.Every != tt.every {
				t.Fatalf("ParseSchedule(%q) = %+v", tt.raw, got)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:00", "1:75", "-5m", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	if got := (Schedule{Every: 90 * time.Minute}).CronSpec(); got != "@every 1h30m0s" {
		t.Fatalf("CronSpec = %q", got)
	}
	if got := (Schedule{Cron: "1 0 * * *"}).CronSpec(); got != "1 0 * * *" {
		t.Fatalf("CronSpec = %q", got)
	}
}

type requests struct {
	mu      sync.Mutex
	reasons []string
}

func (r *requests) add(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *requests) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func TestCheckCoverage(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		through time.Time
		want    bool
	}{
		{name: "unset", want: true},
		{name: "past", through: now.Add(-time.Hour), want: true},
		{name: "short", through: now.Add(3 * 24 * time.Hour), want: true},
		{name: "enough", through: now.Add(10 * 24 * time.Hour), want: false},
		{name: "exact", through: now.Add(7 * 24 * time.Hour), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var r requests
			w := New(Config{}, Hooks{
				Through: func() time.Time { return tt.through },
				Request: r.add,
			}, WithNow(func() time.Time { return now }))
			if got := w.CheckCoverage(); got != tt.want {
				t.Fatalf("CheckCoverage = %v, want %v", got, tt.want)
			}
			if tt.want && (r.count() != 1 || r.reasons[0] != "coverage") {
				t.Fatalf("reasons = %v", r.reasons)
			}
		})
	}
}

func TestWatcherStartRunsInitialCheck(t *testing.T) {
	t.Parallel()
	var r requests
	w := New(Config{Check: "1h", Rollover: "@daily"}, Hooks{
		Through: func() time.Time { return time.Time{} },
		Request: r.add,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for r.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial coverage check never requested regeneration")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcherRollover(t *testing.T) {
	t.Parallel()
	done := make(chan struct{}, 1)
	w := New(Config{Check: "1h", Rollover: "every:50ms"}, Hooks{
		Rollover: func(ctx context.Context) {
			select {
			case done <- struct{}{}:
			default:
			}
		},
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("rollover never ran")
	}
}

func TestWatcherStartRejectsBadSpec(t *testing.T) {
	t.Parallel()
	w := New(Config{Check: "bogus"}, Hooks{})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	w = New(Config{Rollover: "61 * * * *"}, Hooks{})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron field")
	}
}
