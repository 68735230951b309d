package alerts

import (
	"context"
	"errors"
	"time"

	"prayerbell/internal/planner"
)

var (
	// ErrQuotaExceeded is returned by Register when the store already holds
	// its ceiling of pending alerts.
	ErrQuotaExceeded = errors.New("alerts: pending alert ceiling reached")
	ErrStopped       = errors.New("alerts: store stopped")
)

// Store is the pending-alert scheduler port.
type Store interface {
	CancelAll(ctx context.Context) error
	Register(ctx context.Context, id string, trigger time.Time, payload planner.Payload) error
}

// Alert is one pending or fired alert.
type Alert struct {
	ID      string          `json:"id"`
	Trigger time.Time       `json:"trigger"`
	Payload planner.Payload `json:"payload"`
}

// MarkerStore persists the "scheduled through" instant after a pass.
type MarkerStore interface {
	SetScheduledThrough(ctx context.Context, through time.Time) error
}
