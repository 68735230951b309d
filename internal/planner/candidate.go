package planner

import (
	"time"

	"prayerbell/internal/prayer"
)

type Kind int

const (
	KindStart Kind = iota
	KindExpire
	KindMeta
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindExpire:
		return "expire"
	case KindMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Weight is the category weight used by Rank.
func (k Kind) Weight() int {
	switch k {
	case KindStart:
		return 5
	case KindExpire:
		return 3
	default:
		return 0
	}
}

const (
	MetaRefreshID = "meta:refresh"
	MetaFinalID   = "meta:final"
)

// Payload is what the user eventually receives.
type Payload struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Kind       Kind              `json:"kind"`
	Categories []prayer.Category `json:"categories,omitempty"`
}

// Candidate is a generated, not yet registered alert.
type Candidate struct {
	ID       string
	Trigger  time.Time
	Priority int
	DayIndex int
	Day      time.Time // local midnight of the source day
	Kind     Kind
	Payload  Payload
}

func startID(c prayer.Category, day time.Time) string {
	return "start:" + c.Key() + ":" + prayer.DayKey(day)
}

func expireID(groupKey string, day time.Time) string {
	return "expire:" + groupKey + ":" + prayer.DayKey(day)
}
