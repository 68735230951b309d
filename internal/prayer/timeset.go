package prayer

import (
	"sort"
	"time"
)

// EventTimeSet is one calendar day's mapping of category to instant.
// It is immutable once built; a new day replaces it wholesale.
type EventTimeSet struct {
	date  time.Time
	times map[Category]time.Time
}

// Entry is one (category, instant) pair of an EventTimeSet.
type Entry struct {
	Category Category
	At       time.Time
}

// NewEventTimeSet copies times into an immutable set for the civil day of
// date (truncated to midnight in date's location). Zero instants and
// invalid categories are ignored.
func NewEventTimeSet(date time.Time, times map[Category]time.Time) EventTimeSet {
	m := make(map[Category]time.Time, len(times))
	for c, t := range times {
		if !c.Valid() || t.IsZero() {
			continue
		}
		m[c] = t
	}
	return EventTimeSet{date: DayStart(date), times: m}
}

// Date returns local midnight of the day this set covers.
func (s EventTimeSet) Date() time.Time { return s.date }

// Empty reports whether the set carries no data (a DataUnavailable day).
func (s EventTimeSet) Empty() bool { return len(s.times) == 0 }

func (s EventTimeSet) Len() int { return len(s.times) }

func (s EventTimeSet) Has(c Category) bool {
	_, ok := s.times[c]
	return ok
}

// At returns the instant for c.
func (s EventTimeSet) At(c Category) (time.Time, bool) {
	t, ok := s.times[c]
	return t, ok
}

// Entries returns all entries in canonical category order.
func (s EventTimeSet) Entries() []Entry {
	out := make([]Entry, 0, len(s.times))
	for _, c := range Categories() {
		if t, ok := s.times[c]; ok {
			out = append(out, Entry{Category: c, At: t})
		}
	}
	return out
}

// Chronological returns entries sorted by instant; equal instants keep
// canonical category order.
func (s EventTimeSet) Chronological() []Entry {
	out := s.Entries()
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// DayStart returns midnight of t's civil day in t's location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayKey formats the civil date of t as yyyy-mm-dd.
func DayKey(t time.Time) string { return t.Format("2006-01-02") }
