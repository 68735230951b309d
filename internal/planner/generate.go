package planner

import (
	"fmt"
	"time"

	"prayerbell/internal/prayer"
)

// Input is everything a planning pass depends on.
type Input struct {
	// Days[i] is day index i; an empty set means no data for that day.
	Days    []prayer.EventTimeSet
	Prefs   prayer.Preferences
	Toggles prayer.Toggles
	Now     time.Time
}

// Generated is the generator output plus counters for logging.
type Generated struct {
	Candidates []Candidate
	// Past counts candidates discarded because their trigger was not after Now.
	Past int
	// Guarded counts candidates dropped by consistency guards.
	Guarded int
	// EmptyDays counts days without data.
	EmptyDays int
}

// Generate expands the day window into start and grouped expiration
// candidates. Output order is day, then starts in canonical category order,
// then groups in table order.
func Generate(in Input) Generated {
	var out Generated
	for idx, day := range in.Days {
		if day.Empty() {
			out.EmptyDays++
			continue
		}
		generateStarts(&out, in, idx, day)
		generateExpirations(&out, in, idx, day)
	}
	return out
}

func generateStarts(out *Generated, in Input, idx int, day prayer.EventTimeSet) {
	lo := day.Date().AddDate(0, 0, -1)
	hi := day.Date().AddDate(0, 0, 2)
	for _, e := range day.Entries() {
		if !prayer.IsVisible(e.Category, in.Toggles) {
			continue
		}
		pref := in.Prefs.Get(e.Category)
		if !pref.StartEnabled {
			continue
		}
		if e.At.Before(lo) || !e.At.Before(hi) {
			out.Guarded++
			continue
		}
		trigger := e.At.Add(-pref.StartLead())
		if !trigger.After(in.Now) {
			out.Past++
			continue
		}
		out.Candidates = append(out.Candidates, Candidate{
			ID:       startID(e.Category, day.Date()),
			Trigger:  trigger,
			DayIndex: idx,
			Day:      day.Date(),
			Kind:     KindStart,
			Payload:  startPayload(e.Category, e.At, pref.StartOffset),
		})
	}
}

func generateExpirations(out *Generated, in Input, idx int, day prayer.EventTimeSet) {
	for _, g := range prayer.GroupRules() {
		members := visibleMembers(g.Members, in.Toggles)
		if len(members) == 0 {
			continue
		}
		var lead time.Duration
		enabled := false
		for _, m := range members {
			if p := in.Prefs.Get(m); p.ExpireEnabled {
				lead = p.ExpireLead()
				enabled = true
				break
			}
		}
		if !enabled {
			continue
		}

		boundary, ok := day.At(g.Boundary)
		if !ok {
			out.Guarded++
			continue
		}
		if !windowConsistent(day, members, boundary) {
			out.Guarded++
			continue
		}
		trigger := boundary.Add(-lead)
		if !trigger.After(in.Now) {
			out.Past++
			continue
		}
		out.Candidates = append(out.Candidates, Candidate{
			ID:       expireID(g.Key, day.Date()),
			Trigger:  trigger,
			DayIndex: idx,
			Day:      day.Date(),
			Kind:     KindExpire,
			Payload:  expirePayload(members, boundary, lead),
		})
	}
}

// windowConsistent requires the boundary to come after every member start.
// A long lead may fire the reminder before a later member opens; that is
// still a valid reminder for the group.
func windowConsistent(day prayer.EventTimeSet, members []prayer.Category, boundary time.Time) bool {
	for _, m := range members {
		at, ok := day.At(m)
		if !ok {
			continue
		}
		if !boundary.After(at) {
			return false
		}
	}
	return true
}

func visibleMembers(members []prayer.Category, t prayer.Toggles) []prayer.Category {
	out := make([]prayer.Category, 0, len(members))
	for _, m := range members {
		if prayer.IsVisible(m, t) {
			out = append(out, m)
		}
	}
	return out
}

func startPayload(c prayer.Category, at time.Time, offset int) Payload {
	body := fmt.Sprintf("%s is at %s", c, at.Format("15:04"))
	if offset > 0 {
		body = fmt.Sprintf("%s in %d minutes (%s)", c, offset, at.Format("15:04"))
	}
	return Payload{Title: c.String(), Body: body, Kind: KindStart, Categories: []prayer.Category{c}}
}

// expirePayload names every member of the group, whichever member's
// toggle enabled the alert.
func expirePayload(members []prayer.Category, boundary time.Time, lead time.Duration) Payload {
	label := prayer.Label(members)
	return Payload{
		Title:      label,
		Body:       fmt.Sprintf("%s time ends in %d minutes (%s)", label, int(lead/time.Minute), boundary.Format("15:04")),
		Kind:       KindExpire,
		Categories: append([]prayer.Category(nil), members...),
	}
}
