package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m"). Omitted
// fields fall back to the defaults documented on each section.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Location  LocationConfig  `json:"location"`
	Source    SourceConfig    `json:"source"`
	Alerts    AlertsConfig    `json:"alerts"`
	Countdown CountdownConfig `json:"countdown"`
	Refresh   RefreshConfig   `json:"refresh"`
	Defaults  DefaultsConfig  `json:"defaults"`
	Debug     DebugConfig     `json:"debug"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Settings *SettingsConfig `json:"settings,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via PRAYERBELL_TELEGRAM_TOKEN.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LocationConfig selects where and how prayer times are computed.
//
// Example:
//
//	"location": { "latitude": -6.2, "longitude": 106.8, "timezone": "Asia/Jakarta", "method": 20 }
type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Method    int     `json:"method"`
}

// SourceConfig controls the prayer-time HTTP source.
//
// Defaults: base_url "https://api.aladhan.com", timeout "15s", days 30,
// rate_per_sec 0 (unpaced), concurrency 4, cache_size 64.
type SourceConfig struct {
	BaseURL     string  `json:"base_url,omitempty"`
	Timeout     string  `json:"timeout,omitempty"`
	Days        int     `json:"days,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Concurrency int     `json:"concurrency,omitempty"`
	CacheSize   int     `json:"cache_size,omitempty"`
}

// AlertsConfig controls planning and registration.
//
// Defaults: capacity 61, ceiling 64, register_rate 0 (unpaced),
// meta_time "12:00", refresh_day 28, debounce "2s".
type AlertsConfig struct {
	Capacity     int     `json:"capacity,omitempty"`
	Ceiling      int     `json:"ceiling,omitempty"`
	RegisterRate float64 `json:"register_rate,omitempty"`
	MetaTime     string  `json:"meta_time,omitempty"`
	RefreshDay   int     `json:"refresh_day,omitempty"`
	DisableMeta  bool    `json:"disable_meta,omitempty"`
	Debounce     string  `json:"debounce,omitempty"`
}

type CountdownConfig struct {
	Tick    string `json:"tick,omitempty"`
	NowHold string `json:"now_hold,omitempty"`
}

// RefreshConfig drives the coverage watcher. check and rollover accept
// cron expressions, Go durations or HH:MM intervals.
//
// Defaults: check "1h", min_coverage "168h", rollover "1 0 * * *".
type RefreshConfig struct {
	Check       string `json:"check,omitempty"`
	MinCoverage string `json:"min_coverage,omitempty"`
	Rollover    string `json:"rollover,omitempty"`
}

// DefaultsConfig seeds preferences and toggles before anything is saved.
// Lists hold category names ("fajr", "maghrib").
type DefaultsConfig struct {
	ShowAsr      *bool    `json:"show_asr,omitempty"`
	ShowIsha     *bool    `json:"show_isha,omitempty"`
	Start        []string `json:"start,omitempty"`
	StartOffset  int      `json:"start_offset,omitempty"`
	Expire       []string `json:"expire,omitempty"`
	ExpireOffset int      `json:"expire_offset,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// SettingsConfig selects the settings store.
//
// Example:
//
//	"settings": { "driver": "sqlite", "path": "./prayerbell.db" }
type SettingsConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DebugConfig controls the local HTTP endpoint serving /healthz, /status
// and, when pprof is set, /debug/pprof/.
//
// Defaults: addr "127.0.0.1:6061", read_timeout "5s", idle_timeout "2m".
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
