package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "prayerbell/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionTelegram  = "telegram"
	SectionLogging   = "logging"
	SectionLocation  = "location"
	SectionSource    = "source"
	SectionAlerts    = "alerts"
	SectionCountdown = "countdown"
	SectionRefresh   = "refresh"
	SectionDefaults  = "defaults"
	SectionNotifier  = "notifier"
	SectionSettings  = "settings"
	SectionDebug     = "debug"
)

// SummarizeConfigChange returns the sorted list of changed sections and
// structured attrs safe for logging (the token is never included).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.Token != nt.Token {
		changed = append(changed, SectionTelegram)
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Location != newCfg.Location {
		l := newCfg.Location
		changed = append(changed, SectionLocation)
		attrs = append(attrs,
			logx.Any("location.latitude", l.Latitude),
			logx.Any("location.longitude", l.Longitude),
			logx.String("location.timezone", l.Timezone),
			logx.Int("location.method", l.Method),
		)
	}

	if oldCfg.Source != newCfg.Source {
		s := newCfg.Source
		changed = append(changed, SectionSource)
		attrs = append(attrs,
			logx.String("source.base_url", s.BaseURL),
			logx.Int("source.days", s.Days),
			logx.Int("source.concurrency", s.Concurrency),
		)
	}

	if oldCfg.Alerts != newCfg.Alerts {
		a := newCfg.Alerts
		changed = append(changed, SectionAlerts)
		attrs = append(attrs,
			logx.Int("alerts.capacity", a.Capacity),
			logx.Int("alerts.ceiling", a.Ceiling),
			logx.String("alerts.meta_time", a.MetaTime),
			logx.Int("alerts.refresh_day", a.RefreshDay),
		)
	}

	if oldCfg.Countdown != newCfg.Countdown {
		changed = append(changed, SectionCountdown)
		attrs = append(attrs, logx.String("countdown.tick", newCfg.Countdown.Tick))
	}

	if oldCfg.Refresh != newCfg.Refresh {
		changed = append(changed, SectionRefresh)
		attrs = append(attrs,
			logx.String("refresh.check", newCfg.Refresh.Check),
			logx.String("refresh.min_coverage", newCfg.Refresh.MinCoverage),
		)
	}

	if !reflect.DeepEqual(oldCfg.Defaults, newCfg.Defaults) {
		changed = append(changed, SectionDefaults)
	}

	oldN, newN := notifierOrDefault(oldCfg.Notifier), notifierOrDefault(newCfg.Notifier)
	if oldN != newN {
		changed = append(changed, SectionNotifier)
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Bool("notifier.persist_dedup", newN.PersistDedup),
		)
	}

	var oldS, newS SettingsConfig
	if oldCfg.Settings != nil {
		oldS = *oldCfg.Settings
	}
	if newCfg.Settings != nil {
		newS = *newCfg.Settings
	}
	if oldS != newS {
		changed = append(changed, SectionSettings)
		attrs = append(attrs,
			logx.String("settings.driver", newS.Driver),
			logx.Bool("settings.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		d := newCfg.Debug
		changed = append(changed, SectionDebug)
		attrs = append(attrs,
			logx.Bool("debug.enabled", d.Enabled),
			logx.String("debug.addr", d.Addr),
			logx.Bool("debug.pprof", d.Pprof),
			logx.Bool("debug.token_set", d.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// NeedsRegeneration reports whether any of the changed sections affects
// the computed plan.
func NeedsRegeneration(changed []string) bool {
	for _, s := range changed {
		switch s {
		case SectionLocation, SectionSource, SectionAlerts:
			return true
		}
	}
	return false
}

// RestartRequired lists changed sections that only apply on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case SectionSettings, SectionDefaults, SectionTelegram, SectionCountdown:
			out = append(out, s)
		}
	}
	return out
}

func notifierOrDefault(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return DefaultNotifier()
	}
	return *n
}

// DefaultNotifier is the effective notifier section when it is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       256,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		SendTimeout:     "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
	}
}
