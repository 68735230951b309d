package planner

import (
	"fmt"
	"sort"
	"time"
)

// Select keeps the capacity highest-priority candidates. Ties go to the
// earliest trigger, then to the lexically smaller ID. The result stays in
// that order so registering it front to back covers the most important
// alerts first.
func Select(ranked []Candidate, capacity int) []Candidate {
	if capacity <= 0 || len(ranked) == 0 {
		return nil
	}
	sorted := append([]Candidate(nil), ranked...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.Trigger.Equal(b.Trigger) {
			return a.Trigger.Before(b.Trigger)
		}
		return a.ID < b.ID
	})
	if len(sorted) > capacity {
		sorted = sorted[:capacity]
	}
	return sorted
}

// MetaConfig places the two meta reminders.
type MetaConfig struct {
	// TimeOfDay is the offset from local midnight at which meta reminders
	// fire (default 12h).
	TimeOfDay time.Duration
	// RefreshDay is the 1-based covered day carrying meta:refresh (default 28).
	RefreshDay int
	// Disabled skips meta reminders entirely.
	Disabled bool
}

func (m MetaConfig) withDefaults() MetaConfig {
	if m.TimeOfDay <= 0 || m.TimeOfDay >= 24*time.Hour {
		m.TimeOfDay = 12 * time.Hour
	}
	if m.RefreshDay <= 0 {
		m.RefreshDay = 28
	}
	return m
}

// AppendMeta appends up to two fixed-ID meta reminders after the selected
// candidates: meta:refresh on the RefreshDay-th covered day and meta:final
// on the last covered day. Fixed IDs make a regeneration replace them.
func AppendMeta(selected []Candidate, cfg MetaConfig, now time.Time) []Candidate {
	if cfg.Disabled || len(selected) == 0 {
		return selected
	}
	cfg = cfg.withDefaults()

	last := selected[0]
	var lastTrigger time.Time
	for _, c := range selected {
		if c.DayIndex > last.DayIndex {
			last = c
		}
		if c.Trigger.After(lastTrigger) {
			lastTrigger = c.Trigger
		}
	}

	out := selected
	refreshIdx := cfg.RefreshDay - 1
	if last.DayIndex > refreshIdx {
		day := last.Day.AddDate(0, 0, refreshIdx-last.DayIndex)
		at := day.Add(cfg.TimeOfDay)
		if at.After(now) {
			out = append(out, Candidate{
				ID:       MetaRefreshID,
				Trigger:  at,
				DayIndex: refreshIdx,
				Day:      day,
				Kind:     KindMeta,
				Payload: Payload{
					Title: "Prayer alerts running low",
					Body:  fmt.Sprintf("Alerts are scheduled through %s. They will be renewed automatically.", last.Day.Format("Mon 2 Jan")),
					Kind:  KindMeta,
				},
			})
		}
	}

	finalAt := last.Day.Add(cfg.TimeOfDay)
	if lastTrigger.Add(time.Minute).After(finalAt) {
		finalAt = lastTrigger.Add(time.Minute)
	}
	if finalAt.After(now) {
		out = append(out, Candidate{
			ID:       MetaFinalID,
			Trigger:  finalAt,
			DayIndex: last.DayIndex,
			Day:      last.Day,
			Kind:     KindMeta,
			Payload: Payload{
				Title: "Last scheduled prayer alert",
				Body:  "No further prayer alerts are scheduled after today. Send /refresh to renew them.",
				Kind:  KindMeta,
			},
		})
	}
	return out
}
