package prayer

import "time"

const (
	MinStartOffset  = 0
	MaxStartOffset  = 60
	MinExpireOffset = 5
	MaxExpireOffset = 60
)

// NotificationPreference is the per-category alert configuration.
// Offsets are minutes before the category instant (start) or before the
// closing boundary (expire).
type NotificationPreference struct {
	StartEnabled  bool `json:"start_enabled"`
	StartOffset   int  `json:"start_offset"`
	ExpireEnabled bool `json:"expire_enabled"`
	ExpireOffset  int  `json:"expire_offset"`
}

// Normalize clamps offsets into their allowed ranges.
func (p NotificationPreference) Normalize() NotificationPreference {
	p.StartOffset = clamp(p.StartOffset, MinStartOffset, MaxStartOffset)
	p.ExpireOffset = clamp(p.ExpireOffset, MinExpireOffset, MaxExpireOffset)
	return p
}

func (p NotificationPreference) StartLead() time.Duration {
	return time.Duration(p.Normalize().StartOffset) * time.Minute
}

func (p NotificationPreference) ExpireLead() time.Duration {
	return time.Duration(p.Normalize().ExpireOffset) * time.Minute
}

// Preferences maps each category to its preference. Missing entries mean
// "everything off".
type Preferences map[Category]NotificationPreference

// DefaultPreferences enables start alerts for the obligatory prayers and
// leaves expiration alerts off.
func DefaultPreferences() Preferences {
	p := Preferences{}
	for _, c := range Categories() {
		p[c] = NotificationPreference{StartOffset: 0, ExpireOffset: 15}
	}
	for _, c := range []Category{Fajr, Dhuhr, Asr, Maghrib, Isha} {
		np := p[c]
		np.StartEnabled = true
		p[c] = np
	}
	return p
}

// Get returns the normalized preference for c.
func (p Preferences) Get(c Category) NotificationPreference {
	return p[c].Normalize()
}

// Clone returns an independent copy.
func (p Preferences) Clone() Preferences {
	out := make(Preferences, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
