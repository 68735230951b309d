package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"prayerbell/internal/prayer"
	logx "prayerbell/pkg/logx"
)

var (
	ErrClosed   = errors.New("settings: store closed")
	ErrNotFound = errors.New("settings: not found")
)

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// State is everything the store keeps besides dedup windows. A zero
// Preferences map means "never saved".
type State struct {
	Preferences      prayer.Preferences `json:"preferences,omitempty"`
	Toggles          prayer.Toggles     `json:"toggles"`
	TogglesSaved     bool               `json:"toggles_saved"`
	ScheduledThrough time.Time          `json:"scheduled_through,omitempty"`
	ChatID           int64              `json:"chat_id,omitempty"`
	ThreadID         int                `json:"thread_id,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Store is the persistence port.
type Store interface {
	Load(ctx context.Context) (State, error)
	SavePreference(ctx context.Context, c prayer.Category, p prayer.NotificationPreference) error
	SaveToggles(ctx context.Context, t prayer.Toggles) error
	SaveScheduledThrough(ctx context.Context, through time.Time) error
	SaveChat(ctx context.Context, chatID int64, threadID int) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured driver. An empty driver selects memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory", "none":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown settings driver: " + driver)
	}
}
