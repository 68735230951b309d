// Package countdown resolves the current/next prayer and drives the live
// countdown shown to the user.
package countdown

import (
	"fmt"
	"time"

	"prayerbell/internal/prayer"
)

// Kind classifies a State.
type Kind int

const (
	// KindLoading: no data for today at all.
	KindLoading Kind = iota
	// KindEvent: a concrete upcoming event with a target instant.
	KindEvent
	// KindPending: today is exhausted and tomorrow's anchor is still being fetched.
	KindPending
	// KindNone: no further visible events today and the anchor is hidden.
	KindNone
	// KindNow: transient state right after an event's instant has been reached.
	KindNow
)

const (
	LabelNone    = "none"
	LabelLoading = "loading"
	LabelNow     = "now"

	DisplayNone = "—"
	DisplayNow  = "Now"
)

// State is the resolver output. It is never persisted.
type State struct {
	Kind     Kind
	Category prayer.Category // meaningful for KindEvent, KindPending and KindNow
	// Target is zero when there is no target instant.
	Target    time.Time
	Remaining time.Duration
	Display   string
	// NeedTomorrow asks the caller to fetch tomorrow's EventTimeSet.
	NeedTomorrow bool
}

// Label is the presentation label: the category name or a sentinel.
func (s State) Label() string {
	switch s.Kind {
	case KindEvent, KindPending:
		return s.Category.String()
	case KindNone:
		return LabelNone
	case KindNow:
		return LabelNow
	default:
		return LabelLoading
	}
}

func (s State) HasTarget() bool { return !s.Target.IsZero() }

// Same reports whether two states describe the same event (ignoring the
// remaining time).
func (s State) Same(o State) bool {
	return s.Kind == o.Kind && s.Category == o.Category && s.Target.Equal(o.Target)
}

// Resolve computes the current/next event. tomorrow may be an empty set when
// it has not been fetched yet. Resolve never fails: missing data always maps
// to a sentinel state.
func Resolve(today, tomorrow prayer.EventTimeSet, toggles prayer.Toggles, now time.Time) State {
	return resolve(today, tomorrow, func(c prayer.Category) bool { return prayer.IsVisible(c, toggles) }, now)
}

func resolve(today, tomorrow prayer.EventTimeSet, visible func(prayer.Category) bool, now time.Time) State {
	for _, e := range today.Chronological() {
		if !e.At.After(now) || !visible(e.Category) {
			continue
		}
		return eventState(e.Category, e.At, now)
	}

	// The anchor is never optional under the current toggles, so the None
	// branch is only reached through a custom visibility rule.
	anchorVisible := visible(prayer.Anchor)
	switch {
	case !today.Empty() && anchorVisible:
		if at, ok := tomorrow.At(prayer.Anchor); ok && at.After(now) {
			return eventState(prayer.Anchor, at, now)
		}
		return State{Kind: KindPending, Category: prayer.Anchor, Display: LabelLoading, NeedTomorrow: true}
	case !anchorVisible:
		return State{Kind: KindNone, Display: DisplayNone}
	default:
		return State{Kind: KindLoading, Display: ""}
	}
}

func eventState(c prayer.Category, at, now time.Time) State {
	rem := at.Sub(now)
	return State{Kind: KindEvent, Category: c, Target: at, Remaining: rem, Display: FormatRemaining(rem)}
}

// FormatRemaining renders d as HH:MM:SS, rounding up to the next second so
// the display never shows 00:00:00 before the instant is reached.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
