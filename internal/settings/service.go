package settings

import (
	"context"
	"sync"
	"time"

	"prayerbell/internal/eventbus"
	"prayerbell/internal/prayer"
	logx "prayerbell/pkg/logx"
)

// Change kinds carried by eventbus.TopicSettingsChanged.
const (
	ChangeToggles    = "toggles"
	ChangePreference = "preference"
	ChangeChat       = "chat"
	ChangeThrough    = "scheduled_through"
)

// Change is the event payload published after a successful save.
type Change struct {
	Kind     string          `json:"kind"`
	Category prayer.Category `json:"category,omitempty"`
}

// Defaults apply when nothing has been saved yet.
type Defaults struct {
	Preferences prayer.Preferences
	Toggles     prayer.Toggles
}

// Service is the in-memory view over a Store. Reads never hit the store;
// writes go to the store first and only then update the view.
type Service struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.RWMutex
	state State
}

func NewService(ctx context.Context, store Store, def Defaults, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	st, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	prefs := def.Preferences
	if prefs == nil {
		prefs = prayer.DefaultPreferences()
	}
	merged := prefs.Clone()
	for c, p := range st.Preferences {
		merged[c] = p
	}
	st.Preferences = merged
	if !st.TogglesSaved {
		st.Toggles = def.Toggles
	}
	log.Debug("settings loaded",
		logx.Bool("toggles_saved", st.TogglesSaved),
		logx.Int64("chat_id", st.ChatID),
		logx.Time("scheduled_through", st.ScheduledThrough),
	)
	return &Service{store: store, bus: bus, log: log, state: st}, nil
}

// Snapshot returns a copy of the effective state.
func (s *Service) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Preferences = st.Preferences.Clone()
	return st
}

func (s *Service) Preferences() prayer.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Preferences.Clone()
}

func (s *Service) Toggles() prayer.Toggles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Toggles
}

// Chat returns the bound delivery chat (zero when unbound).
func (s *Service) Chat() (int64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ChatID, s.state.ThreadID
}

func (s *Service) ScheduledThrough() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ScheduledThrough
}

// SetVisibility changes the toggle of an optional category. It reports
// false when c has no toggle or the value did not change.
func (s *Service) SetVisibility(ctx context.Context, c prayer.Category, on bool) (bool, error) {
	s.mu.Lock()
	next, ok := s.state.Toggles.Set(c, on)
	if !ok || next == s.state.Toggles {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.store.SaveToggles(ctx, next); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.state.Toggles, s.state.TogglesSaved = next, true
	s.mu.Unlock()

	s.log.Info("visibility changed", logx.String("category", c.Key()), logx.Bool("visible", on))
	s.publish(Change{Kind: ChangeToggles, Category: c})
	return true, nil
}

// UpdatePreference applies fn to c's preference, normalizes and saves it.
func (s *Service) UpdatePreference(ctx context.Context, c prayer.Category, fn func(p *prayer.NotificationPreference)) (prayer.NotificationPreference, error) {
	s.mu.Lock()
	p := s.state.Preferences.Get(c)
	fn(&p)
	p = p.Normalize()
	if p == s.state.Preferences.Get(c) {
		s.mu.Unlock()
		return p, nil
	}
	if err := s.store.SavePreference(ctx, c, p); err != nil {
		s.mu.Unlock()
		return prayer.NotificationPreference{}, err
	}
	s.state.Preferences[c] = p
	s.mu.Unlock()

	s.log.Info("preference changed",
		logx.String("category", c.Key()),
		logx.Bool("start", p.StartEnabled), logx.Int("start_offset", p.StartOffset),
		logx.Bool("expire", p.ExpireEnabled), logx.Int("expire_offset", p.ExpireOffset),
	)
	s.publish(Change{Kind: ChangePreference, Category: c})
	return p, nil
}

func (s *Service) BindChat(ctx context.Context, chatID int64, threadID int) error {
	if err := s.store.SaveChat(ctx, chatID, threadID); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.ChatID, s.state.ThreadID = chatID, threadID
	s.mu.Unlock()
	s.log.Info("delivery chat bound", logx.Int64("chat_id", chatID), logx.Int("thread_id", threadID))
	s.publish(Change{Kind: ChangeChat})
	return nil
}

// SetScheduledThrough records the end of the registered coverage.
func (s *Service) SetScheduledThrough(ctx context.Context, through time.Time) error {
	if err := s.store.SaveScheduledThrough(ctx, through); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.ScheduledThrough = through
	s.mu.Unlock()
	s.publish(Change{Kind: ChangeThrough})
	return nil
}

func (s *Service) publish(c Change) {
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicSettingsChanged, Data: c})
}
