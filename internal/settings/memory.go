package settings

import (
	"context"
	"sync"
	"time"

	"prayerbell/internal/prayer"
)

type memoryStore struct {
	mu     sync.Mutex
	closed bool
	state  State
	dedup  map[string]time.Time
}

func NewMemory() Store {
	return &memoryStore{dedup: map[string]time.Time{}}
}

func (s *memoryStore) update(fn func(st *State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	fn(&s.state)
	s.state.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) Load(context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, ErrClosed
	}
	st := s.state
	if st.Preferences != nil {
		st.Preferences = st.Preferences.Clone()
	}
	return st, nil
}

func (s *memoryStore) SavePreference(_ context.Context, c prayer.Category, p prayer.NotificationPreference) error {
	return s.update(func(st *State) {
		if st.Preferences == nil {
			st.Preferences = prayer.Preferences{}
		}
		st.Preferences[c] = p.Normalize()
	})
}

func (s *memoryStore) SaveToggles(_ context.Context, t prayer.Toggles) error {
	return s.update(func(st *State) { st.Toggles, st.TogglesSaved = t, true })
}

func (s *memoryStore) SaveScheduledThrough(_ context.Context, through time.Time) error {
	return s.update(func(st *State) { st.ScheduledThrough = through })
}

func (s *memoryStore) SaveChat(_ context.Context, chatID int64, threadID int) error {
	return s.update(func(st *State) { st.ChatID, st.ThreadID = chatID, threadID })
}

func (s *memoryStore) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.dedup[key] = until
	return nil
}

func (s *memoryStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}
	until, ok := s.dedup[key]
	return until, ok, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
