package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

const sampleJSON = `{
  "telegram": {"token": "file-token", "poll_timeout": "10s"},
  "logging": {"level": "debug", "console": true},
  "location": {"latitude": -6.2, "longitude": 106.8, "timezone": "Asia/Jakarta", "method": 20},
  "alerts": {"capacity": 61, "meta_time": "12:00"}
}`

const sampleYAML = `
telegram:
  token: file-token
  poll_timeout: 10s
logging:
  level: debug
  console: true
location:
  latitude: -6.2
  longitude: 106.8
  timezone: Asia/Jakarta
  method: 20
alerts:
  capacity: 61
  meta_time: "12:00"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func newTestManager(path string, env map[string]string) *ConfigManager {
	m := NewConfigManager(path)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestLoadJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()
	j, err := newTestManager(writeFile(t, "c.json", sampleJSON), nil).Load()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	y, err := newTestManager(writeFile(t, "c.yaml", sampleYAML), nil).Load()
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if hashConfig(j) != hashConfig(y) {
		t.Fatalf("json and yaml decode differently:\n%+v\n%+v", j, y)
	}
	if y.Location.Timezone != "Asia/Jakarta" || y.Location.Method != 20 || y.Alerts.Capacity != 61 {
		t.Fatalf("unexpected yaml config: %+v", y)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown json field", file: "c.json", body: `{"location": {"lat": 1}}`},
		{name: "unknown yaml field", file: "c.yml", body: "bogus: 1\n"},
		{name: "trailing data", file: "c.json", body: `{} {}`},
		{name: "bad yaml", file: "c.yaml", body: "a: [\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.file, []byte(tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte("\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Location.Timezone != "" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvTokenOverride(t *testing.T) {
	t.Parallel()
	m := newTestManager(writeFile(t, "c.json", sampleJSON), map[string]string{EnvTelegramToken: " env-token "})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.json", sampleJSON)
	m := newTestManager(path, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ok, err := m.Reload(context.Background())
	if err != nil || ok {
		t.Fatalf("unchanged reload = %v, %v", ok, err)
	}

	if err := os.WriteFile(path, []byte(`{"location": {"latitude": 1, "longitude": 2, "timezone": "UTC", "method": 3}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = m.Reload(context.Background())
	if err != nil || !ok {
		t.Fatalf("changed reload = %v, %v", ok, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Location.Method != 3 {
			t.Fatalf("published %+v", cfg.Location)
		}
	default:
		t.Fatal("nothing published")
	}
	if m.Get().Location.Method != 3 {
		t.Fatal("config not committed")
	}
}

func TestReloadValidatorRejects(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.json", sampleJSON)
	m := newTestManager(path, nil)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Location.Timezone == "Nowhere/Bad" {
			return os.ErrInvalid
		}
		return nil
	})
	if err := os.WriteFile(path, []byte(`{"location": {"timezone": "Nowhere/Bad"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("expected rejection")
	}
	if m.Get().Location.Timezone != "Asia/Jakarta" {
		t.Fatalf("rejected config was committed: %+v", m.Get().Location)
	}
}

func TestWatchPicksUpWrites(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.json", sampleJSON)
	m := newTestManager(path, nil)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"countdown": {"tick": "2s"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-sub:
		if cfg.Countdown.Tick != "2s" {
			t.Fatalf("published %+v", cfg.Countdown)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not publish")
	}
}

func TestSubscriberKeepsLatest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	sub := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-sub; got != b {
		t.Fatal("slow subscriber should see the newest config")
	}
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel should be closed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "a", PollTimeout: "10s"},
			Location: LocationConfig{Latitude: 1, Longitude: 2, Timezone: "UTC", Method: 3},
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   []string
		regen  bool
	}{
		{name: "none", mutate: func(c *Config) {}, want: []string{}},
		{name: "location", mutate: func(c *Config) { c.Location.Method = 4 }, want: []string{"location"}, regen: true},
		{name: "logging", mutate: func(c *Config) { c.Logging.Level = "debug" }, want: []string{"logging"}},
		{name: "alerts and refresh", mutate: func(c *Config) {
			c.Alerts.Capacity = 10
			c.Refresh.Check = "30m"
		}, want: []string{"alerts", "refresh"}, regen: true},
		{name: "explicit default notifier", mutate: func(c *Config) {
			n := DefaultNotifier()
			c.Notifier = &n
		}, want: []string{}},
		{name: "defaults", mutate: func(c *Config) { c.Defaults.Start = []string{"fajr"} }, want: []string{"defaults"}},
		{name: "settings", mutate: func(c *Config) { c.Settings = &SettingsConfig{Driver: "file"} }, want: []string{"settings"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := base()
			tt.mutate(next)
			got, _ := SummarizeConfigChange(base(), next)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("changed = %v, want %v", got, tt.want)
			}
			if NeedsRegeneration(got) != tt.regen {
				t.Fatalf("NeedsRegeneration(%v) = %v", got, !tt.regen)
			}
		})
	}
}

func TestParseClockField(t *testing.T) {
	t.Parallel()
	d, err := ParseClockField("alerts.meta_time", "", 12*time.Hour)
	if err != nil || d != 12*time.Hour {
		t.Fatalf("default = %v, %v", d, err)
	}
	d, err = ParseClockField("alerts.meta_time", "07:30", 0)
	if err != nil || d != 7*time.Hour+30*time.Minute {
		t.Fatalf("07:30 = %v, %v", d, err)
	}
	for _, bad := range []string{"24:00", "7", "aa:bb", "12:60"} {
		if _, err := ParseClockField("alerts.meta_time", bad, 0); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
