package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"prayerbell/internal/config"
	"prayerbell/internal/prayer"
	"prayerbell/internal/source"
	"prayerbell/internal/transport"
	logx "prayerbell/pkg/logx"
)

type recordingAdapter struct {
	mu   sync.Mutex
	out  chan<- transport.Update
	sent []string
	menu []transport.BotCommand
}

func (r *recordingAdapter) Start(_ context.Context, out chan<- transport.Update) error {
	r.mu.Lock()
	r.out = out
	r.mu.Unlock()
	return nil
}

func (r *recordingAdapter) Stop(context.Context) error { return nil }

func (r *recordingAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *recordingAdapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	r.mu.Lock()
	r.menu = cmds
	r.mu.Unlock()
	return nil
}

func (r *recordingAdapter) push(text string) {
	r.mu.Lock()
	out := r.out
	r.mu.Unlock()
	out <- transport.Update{Message: &transport.Message{ChatID: 42, FromID: 7, Text: text}}
}

func (r *recordingAdapter) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// fixedDays returns the same clock times for every requested date.
func fixedDays() source.Source {
	return source.Func(func(_ context.Context, date time.Time, _ prayer.Location, _ prayer.Method) (prayer.EventTimeSet, error) {
		return source.ParseDay(date, time.UTC, map[string]string{
			"Fajr":     "04:30",
			"Sunrise":  "05:45",
			"Dhuhr":    "11:55",
			"Asr":      "15:15",
			"Sunset":   "17:50",
			"Maghrib":  "17:52",
			"Isha":     "19:05",
			"Midnight": "23:50",
		})
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const testConfig = `
telegram:
  token: "test-token"
logging:
  level: error
location:
  latitude: -6.2
  longitude: 106.8
  timezone: UTC
  method: 20
source:
  days: 5
alerts:
  debounce: 10ms
settings:
  driver: memory
refresh:
  check: 1h
`

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestAppStartupSchedulesAndStops(t *testing.T) {
	ad := &recordingAdapter{}
	a, err := NewApp(writeConfig(t, testConfig), WithAdapter(ad), WithSource(fixedDays()))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return a.Replacer().Last().PassID != "" })
	res := a.Replacer().Last()
	if res.Err != "" {
		t.Fatalf("pass error: %v", res.Err)
	}
	if res.Registered == 0 || a.Alerts().Len() == 0 {
		t.Fatalf("registered=%d pending=%d", res.Registered, a.Alerts().Len())
	}
	if a.Settings().ScheduledThrough().IsZero() {
		t.Fatalf("scheduled-through marker not saved")
	}
	waitFor(t, 2*time.Second, func() bool { return a.Countdown().ResolveNow().HasTarget() })

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := a.Alerts().Len(); n != 0 {
		t.Fatalf("pending after stop = %d", n)
	}
}

func TestAppCommandsOverUpdates(t *testing.T) {
	ad := &recordingAdapter{}
	a, err := NewApp(writeConfig(t, testConfig), WithAdapter(ad), WithSource(fixedDays()))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = a.Stop(stopCtx, StopUnknown)
	}()

	ad.push("/bind")
	waitFor(t, 2*time.Second, func() bool {
		chat, _ := a.Settings().Chat()
		return chat == 42
	})

	ad.push("/show asr off")
	waitFor(t, 2*time.Second, func() bool { return !a.Settings().Toggles().ShowAsr })

	waitFor(t, 2*time.Second, func() bool { return a.Countdown().ResolveNow().HasTarget() })
	ad.push("/next")
	waitFor(t, 2*time.Second, func() bool {
		for _, s := range ad.texts() {
			if strings.Contains(s, "Next:") {
				return true
			}
		}
		return false
	})
}

func TestPreviewPlanAndNext(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p, err := NewPreview(writeConfig(t, testConfig), logx.Nop(), WithSource(fixedDays()), WithNow(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewPreview: %v", err)
	}
	defer p.Close()

	plan, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Candidates) == 0 {
		t.Fatalf("empty plan")
	}
	for _, c := range plan.Candidates {
		if !c.Trigger.After(now) {
			t.Fatalf("candidate %s not in the future: %s", c.ID, c.Trigger)
		}
	}

	st := p.Next(context.Background())
	if st.Category != prayer.Asr {
		t.Fatalf("next = %s, want Asr", st.Category)
	}
	want := time.Date(2026, 3, 10, 15, 15, 0, 0, time.UTC)
	if !st.Target.Equal(want) {
		t.Fatalf("target = %s, want %s", st.Target, want)
	}
}

func TestPreviewNoTimings(t *testing.T) {
	failing := source.Func(func(context.Context, time.Time, prayer.Location, prayer.Method) (prayer.EventTimeSet, error) {
		return prayer.EventTimeSet{}, source.ErrNoData
	})
	p, err := NewPreview(writeConfig(t, testConfig), logx.Nop(), WithSource(failing))
	if err != nil {
		t.Fatalf("NewPreview: %v", err)
	}
	defer p.Close()
	if _, err := p.Plan(context.Background()); err == nil {
		t.Fatalf("expected error for an unavailable window")
	}
}

func TestMapConfig(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		return &config.Config{Location: config.LocationConfig{Latitude: 1, Longitude: 2, Timezone: "UTC"}}
	}
	cases := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "capacity exceeds ceiling",
			mutate:  func(c *config.Config) { c.Alerts.Capacity = 63 },
			wantErr: "exceeds alerts.ceiling",
		},
		{
			name:   "capacity fills ceiling without meta",
			mutate: func(c *config.Config) { c.Alerts.Capacity = 64; c.Alerts.DisableMeta = true },
		},
		{
			name:    "bad timezone",
			mutate:  func(c *config.Config) { c.Location.Timezone = "Mars/Olympus" },
			wantErr: "location.timezone",
		},
		{
			name:    "latitude out of range",
			mutate:  func(c *config.Config) { c.Location.Latitude = 91 },
			wantErr: "out of range",
		},
		{
			name:    "bad refresh spec",
			mutate:  func(c *config.Config) { c.Refresh.Check = "every:-1m" },
			wantErr: "refresh.check",
		},
		{
			name:    "bad meta time",
			mutate:  func(c *config.Config) { c.Alerts.MetaTime = "25:00" },
			wantErr: "alerts.meta_time",
		},
		{
			name:    "sqlite needs path",
			mutate:  func(c *config.Config) { c.Settings = &config.SettingsConfig{Driver: "sqlite"} },
			wantErr: "settings.path",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *config.Config) { c.Settings = &config.SettingsConfig{Driver: "redis"} },
			wantErr: "unknown settings.driver",
		},
		{
			name:    "unknown default category",
			mutate:  func(c *config.Config) { c.Defaults.Start = []string{"brunch"} },
			wantErr: "defaults.start",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			if tc.mutate != nil {
				tc.mutate(cfg)
			}
			_, err := mapConfig(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestMapConfigDefaults(t *testing.T) {
	t.Parallel()
	rc, err := mapConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapConfig: %v", err)
	}
	if rc.Planner.Capacity != 61 || rc.Ceiling != 64 {
		t.Fatalf("capacity=%d ceiling=%d", rc.Planner.Capacity, rc.Ceiling)
	}
	if rc.Settings.Driver != "file" {
		t.Fatalf("settings driver = %q", rc.Settings.Driver)
	}
	if !rc.Notifier.Enabled || rc.Notifier.Workers != 2 {
		t.Fatalf("notifier defaults = %+v", rc.Notifier)
	}
	if !rc.Defaults.Toggles.ShowAsr || !rc.Defaults.Toggles.ShowIsha {
		t.Fatalf("toggles = %+v", rc.Defaults.Toggles)
	}
	if rc.Days != 30 {
		t.Fatalf("days = %d", rc.Days)
	}
}

func TestAppStatusSnapshot(t *testing.T) {
	ad := &recordingAdapter{}
	a, err := NewApp(writeConfig(t, testConfig), WithAdapter(ad), WithSource(fixedDays()))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = a.Stop(stopCtx, StopUnknown)
	}()

	waitFor(t, 3*time.Second, func() bool { return a.Replacer().Last().PassID != "" })
	st := a.Status()
	if st.Pending == 0 || st.NextAlert == nil {
		t.Fatalf("status = %+v", st)
	}
	if st.ChatBound {
		t.Fatalf("chat should not be bound yet")
	}
	if st.LastPass.Registered == 0 {
		t.Fatalf("last pass = %+v", st.LastPass)
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.NewConfigManager("../../config.example.yaml").Load()
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	rc, err := mapConfig(cfg)
	if err != nil {
		t.Fatalf("map example: %v", err)
	}
	if rc.Settings.Driver != "sqlite" || rc.Location.Timezone != "Asia/Jakarta" {
		t.Fatalf("unexpected example mapping: %+v %+v", rc.Settings, rc.Location)
	}
}
