package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
	_ "time/tzdata" // location.timezone must resolve on hosts without zoneinfo

	"prayerbell/internal/alerts"
	"prayerbell/internal/config"
	"prayerbell/internal/countdown"
	"prayerbell/internal/debug"
	"prayerbell/internal/notifier"
	"prayerbell/internal/planner"
	"prayerbell/internal/prayer"
	"prayerbell/internal/refresh"
	"prayerbell/internal/settings"
	"prayerbell/internal/source"
	"prayerbell/internal/transport/telegram"
	logx "prayerbell/pkg/logx"
)

const (
	defaultDays     = 30
	defaultCapacity = 61
	defaultCeiling  = 64
)

// runtimeConfig is the parsed, defaulted form of config.Config.
type runtimeConfig struct {
	Logging   logx.Config
	Telegram  telegram.Config
	Owners    []int64
	Location  prayer.Location
	Method    prayer.Method
	HTTP      source.HTTPConfig
	Window    source.WindowConfig
	Days      int
	CacheSize int
	Planner   planner.Config
	Ceiling   int
	Replacer  alerts.ReplacerConfig
	Countdown countdown.Config
	Refresh   refresh.Config
	Notifier  notifier.Config
	Settings  settings.Config
	Defaults  settings.Defaults
	Debug     debug.Config
}

// mapConfig validates cfg and converts it into component configs.
func mapConfig(cfg *config.Config) (runtimeConfig, error) {
	if cfg == nil {
		return runtimeConfig{}, fmt.Errorf("config is nil")
	}
	var (
		rc  runtimeConfig
		err error
	)
	rc.Logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}

	rc.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if rc.Telegram.PollTimeout, err = config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second); err != nil {
		return runtimeConfig{}, err
	}
	rc.Owners = append([]int64(nil), cfg.Telegram.OwnerUserIDs...)

	if rc.Location, rc.Method, err = mapLocation(cfg.Location); err != nil {
		return runtimeConfig{}, err
	}
	if err := mapSource(cfg.Source, &rc); err != nil {
		return runtimeConfig{}, err
	}
	if err := mapAlerts(cfg.Alerts, &rc); err != nil {
		return runtimeConfig{}, err
	}
	if rc.Countdown, err = mapCountdown(cfg.Countdown); err != nil {
		return runtimeConfig{}, err
	}
	if rc.Refresh, err = mapRefresh(cfg.Refresh, rc.Location.Timezone); err != nil {
		return runtimeConfig{}, err
	}
	if rc.Notifier, err = mapNotifierConfig(cfg.Notifier); err != nil {
		return runtimeConfig{}, err
	}
	if rc.Settings, err = mapSettingsConfig(cfg.Settings); err != nil {
		return runtimeConfig{}, err
	}
	if rc.Defaults, err = mapDefaults(cfg.Defaults); err != nil {
		return runtimeConfig{}, err
	}
	if rc.Debug, err = mapDebug(cfg.Debug); err != nil {
		return runtimeConfig{}, err
	}
	return rc, nil
}

// Validate is the transactional hot-reload check.
func Validate(_ context.Context, cfg *config.Config) error {
	_, err := mapConfig(cfg)
	return err
}

func mapLocation(l config.LocationConfig) (prayer.Location, prayer.Method, error) {
	loc := prayer.Location{Latitude: l.Latitude, Longitude: l.Longitude, Timezone: strings.TrimSpace(l.Timezone)}
	if !loc.Valid() {
		return prayer.Location{}, 0, fmt.Errorf("location: latitude/longitude out of range (%s)", loc)
	}
	if loc.Timezone != "" {
		if _, err := time.LoadLocation(loc.Timezone); err != nil {
			return prayer.Location{}, 0, fmt.Errorf("location.timezone: invalid %q: %w", loc.Timezone, err)
		}
	}
	if l.Method < 0 {
		return prayer.Location{}, 0, fmt.Errorf("location.method must be >= 0")
	}
	return loc, prayer.Method(l.Method), nil
}

func mapSource(s config.SourceConfig, rc *runtimeConfig) error {
	timeout, err := config.ParseDurationOrDefault("source.timeout", s.Timeout, 15*time.Second)
	if err != nil {
		return err
	}
	if s.Days < 0 || s.Concurrency < 0 || s.RatePerSec < 0 || s.CacheSize < 0 {
		return fmt.Errorf("source: days, concurrency, rate_per_sec and cache_size must be >= 0")
	}
	rc.HTTP = source.HTTPConfig{BaseURL: strings.TrimSpace(s.BaseURL), Timeout: timeout, UserAgent: "prayerbell"}
	rc.Window = source.WindowConfig{Concurrency: s.Concurrency, RatePerSec: s.RatePerSec}
	rc.Days = s.Days
	if rc.Days == 0 {
		rc.Days = defaultDays
	}
	rc.CacheSize = s.CacheSize
	if rc.CacheSize == 0 {
		// two full windows
		rc.CacheSize = 2 * rc.Days
	}
	return nil
}

func mapAlerts(a config.AlertsConfig, rc *runtimeConfig) error {
	if a.Capacity < 0 || a.Ceiling < 0 || a.RegisterRate < 0 || a.RefreshDay < 0 {
		return fmt.Errorf("alerts: capacity, ceiling, register_rate and refresh_day must be >= 0")
	}
	capacity, ceiling := a.Capacity, a.Ceiling
	if capacity == 0 {
		capacity = defaultCapacity
	}
	if ceiling == 0 {
		ceiling = defaultCeiling
	}
	reserve := 2
	if a.DisableMeta {
		reserve = 0
	}
	if capacity+reserve > ceiling {
		return fmt.Errorf("alerts.capacity (%d) + %d meta reminders exceeds alerts.ceiling (%d)", capacity, reserve, ceiling)
	}
	metaTime, err := config.ParseClockField("alerts.meta_time", a.MetaTime, 12*time.Hour)
	if err != nil {
		return err
	}
	debounce, err := config.ParseDurationOrDefault("alerts.debounce", a.Debounce, 2*time.Second)
	if err != nil {
		return err
	}
	rc.Planner = planner.Config{
		Capacity: capacity,
		Meta:     planner.MetaConfig{TimeOfDay: metaTime, RefreshDay: a.RefreshDay, Disabled: a.DisableMeta},
	}
	rc.Ceiling = ceiling
	rc.Replacer = alerts.ReplacerConfig{RegisterRate: a.RegisterRate, Debounce: debounce}
	return nil
}

func mapCountdown(c config.CountdownConfig) (countdown.Config, error) {
	tick, err := config.ParseDurationOrDefault("countdown.tick", c.Tick, time.Second)
	if err != nil {
		return countdown.Config{}, err
	}
	hold, err := config.ParseDurationOrDefault("countdown.now_hold", c.NowHold, time.Second)
	if err != nil {
		return countdown.Config{}, err
	}
	return countdown.Config{Tick: tick, NowHold: hold}, nil
}

func mapRefresh(r config.RefreshConfig, tz string) (refresh.Config, error) {
	minCov, err := config.ParseDurationOrDefault("refresh.min_coverage", r.MinCoverage, 7*24*time.Hour)
	if err != nil {
		return refresh.Config{}, err
	}
	out := refresh.Config{Check: r.Check, MinCoverage: minCov, Rollover: r.Rollover, Timezone: tz}
	if strings.TrimSpace(r.Check) != "" {
		if _, err := refresh.ParseSchedule(r.Check); err != nil {
			return refresh.Config{}, fmt.Errorf("refresh.check: %w", err)
		}
	}
	if strings.TrimSpace(r.Rollover) != "" {
		if _, err := refresh.ParseSchedule(r.Rollover); err != nil {
			return refresh.Config{}, fmt.Errorf("refresh.rollover: %w", err)
		}
	}
	return out, nil
}

// mapNotifierConfig parses durations and applies defaults. An omitted
// section means enabled with defaults.
func mapNotifierConfig(n *config.NotifierConfig) (notifier.Config, error) {
	def := config.DefaultNotifier()
	if n == nil {
		n = &def
	}
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
	if out.Workers < 0 || out.QueueSize < 0 || out.RatePerSec < 0 || out.RetryMax < 0 || out.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec, retry_max and dedup_max_entries must be >= 0")
	}
	if out.Workers == 0 {
		out.Workers = def.Workers
	}
	if out.QueueSize == 0 {
		out.QueueSize = def.QueueSize
	}
	if out.RatePerSec == 0 {
		out.RatePerSec = def.RatePerSec
	}
	if out.RetryMax == 0 {
		out.RetryMax = def.RetryMax
	}
	if out.DedupMaxEntries == 0 {
		out.DedupMaxEntries = def.DedupMaxEntries
	}

	var err error
	durations := []struct {
		key string
		raw string
		def string
		dst *time.Duration
	}{
		{"notifier.retry_base", n.RetryBase, def.RetryBase, &out.RetryBase},
		{"notifier.retry_max_delay", n.RetryMaxDelay, def.RetryMaxDelay, &out.RetryMaxDelay},
		{"notifier.send_timeout", n.SendTimeout, def.SendTimeout, &out.SendTimeout},
		{"notifier.dedup_window", n.DedupWindow, def.DedupWindow, &out.DedupWindow},
	}
	for _, d := range durations {
		fallback, _ := time.ParseDuration(d.def)
		if *d.dst, err = config.ParseDurationOrDefault(d.key, d.raw, fallback); err != nil {
			return notifier.Config{}, err
		}
	}
	return out, nil
}

// mapSettingsConfig defaults to the file driver so preferences and the chat
// binding survive restarts.
func mapSettingsConfig(s *config.SettingsConfig) (settings.Config, error) {
	if s == nil {
		return settings.Config{Driver: "file", Path: "./prayerbell"}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	path := strings.TrimSpace(s.Path)
	switch driver {
	case "", "memory", "none":
		return settings.Config{Driver: "memory"}, nil
	case "file":
		return settings.Config{Driver: driver, Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return settings.Config{}, fmt.Errorf("settings.path is required when settings.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("settings.busy_timeout", s.BusyTimeout, time.Second)
		if err != nil {
			return settings.Config{}, err
		}
		return settings.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return settings.Config{}, fmt.Errorf("unknown settings.driver: %s", s.Driver)
	}
}

func mapDefaults(d config.DefaultsConfig) (settings.Defaults, error) {
	prefs := prayer.DefaultPreferences()
	if d.StartOffset < 0 || d.StartOffset > prayer.MaxStartOffset {
		return settings.Defaults{}, fmt.Errorf("defaults.start_offset must be within [%d, %d]", prayer.MinStartOffset, prayer.MaxStartOffset)
	}
	if d.ExpireOffset != 0 && (d.ExpireOffset < prayer.MinExpireOffset || d.ExpireOffset > prayer.MaxExpireOffset) {
		return settings.Defaults{}, fmt.Errorf("defaults.expire_offset must be within [%d, %d]", prayer.MinExpireOffset, prayer.MaxExpireOffset)
	}
	if d.Start != nil {
		for c, p := range prefs {
			p.StartEnabled = false
			prefs[c] = p
		}
		for _, name := range d.Start {
			c, err := prayer.ParseCategory(name)
			if err != nil {
				return settings.Defaults{}, fmt.Errorf("defaults.start: %w", err)
			}
			p := prefs[c]
			p.StartEnabled = true
			prefs[c] = p
		}
	}
	for _, name := range d.Expire {
		c, err := prayer.ParseCategory(name)
		if err != nil {
			return settings.Defaults{}, fmt.Errorf("defaults.expire: %w", err)
		}
		if _, ok := prayer.GroupOf(c); !ok {
			return settings.Defaults{}, fmt.Errorf("defaults.expire: %s has no expiration window", c)
		}
		p := prefs[c]
		p.ExpireEnabled = true
		prefs[c] = p
	}
	for c, p := range prefs {
		if d.StartOffset > 0 {
			p.StartOffset = d.StartOffset
		}
		if d.ExpireOffset > 0 {
			p.ExpireOffset = d.ExpireOffset
		}
		prefs[c] = p
	}

	toggles := prayer.Toggles{ShowAsr: true, ShowIsha: true}
	if d.ShowAsr != nil {
		toggles.ShowAsr = *d.ShowAsr
	}
	if d.ShowIsha != nil {
		toggles.ShowIsha = *d.ShowIsha
	}
	return settings.Defaults{Preferences: prefs, Toggles: toggles}, nil
}

func mapDebug(d config.DebugConfig) (debug.Config, error) {
	out := debug.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
	}
	if out.Addr == "" {
		out.Addr = debug.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 5*time.Second); err != nil {
		return debug.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, 2*time.Minute); err != nil {
		return debug.Config{}, err
	}
	if !out.Enabled {
		return out, nil
	}
	if _, _, err := net.SplitHostPort(out.Addr); err != nil {
		return debug.Config{}, fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", out.Addr, err)
	}
	if !out.AllowInsecure && out.Token == "" && !debug.IsLoopbackAddr(out.Addr) {
		return debug.Config{}, fmt.Errorf("debug: binding to non-loopback addr requires token or allow_insecure=true")
	}
	return out, nil
}
