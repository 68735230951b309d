package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"prayerbell/internal/app"
	"prayerbell/internal/countdown"
	"prayerbell/internal/prayer"
)

func TestReasonForSignal(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sig  os.Signal
		want app.StopReason
	}{
		{os.Interrupt, app.StopSIGINT},
		{syscall.SIGTERM, app.StopSIGTERM},
		{syscall.SIGHUP, app.StopUnknown},
	}
	for _, tc := range cases {
		if got := reasonForSignal(tc.sig); got != tc.want {
			t.Fatalf("reasonForSignal(%v) = %q, want %q", tc.sig, got, tc.want)
		}
	}
}

func TestDescribeState(t *testing.T) {
	t.Parallel()
	target := time.Date(2026, 3, 10, 17, 52, 0, 0, time.UTC)
	cases := []struct {
		name string
		st   countdown.State
		want string
	}{
		{"event", countdown.State{Kind: countdown.KindEvent, Category: prayer.Maghrib, Target: target, Display: "00:10:00"}, "Next: Maghrib at 17:52 (00:10:00)"},
		{"now", countdown.State{Kind: countdown.KindNow, Category: prayer.Maghrib, Target: target}, "Maghrib: now"},
		{"pending", countdown.State{Kind: countdown.KindPending}, "Waiting for tomorrow's prayer times"},
		{"none", countdown.State{Kind: countdown.KindNone}, "No upcoming prayer times"},
		{"loading", countdown.State{}, "Loading prayer times"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := describeState(tc.st); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCLICommands(t *testing.T) {
	t.Parallel()
	a := newCLI()
	for _, name := range []string{"run", "plan", "next", "n"} {
		if a.Command(name) == nil {
			t.Fatalf("command %q missing", name)
		}
	}
}
