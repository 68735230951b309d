package planner

import (
	"time"
)

// Config holds the injected limits for a planning pass.
type Config struct {
	// Capacity is the number of regular candidates kept; meta reminders come
	// on top, so the platform ceiling must be >= Capacity+2.
	Capacity int
	Meta     MetaConfig
}

// Plan is the outcome of one synchronous planning pass.
type Plan struct {
	Candidates []Candidate
	// Through is the last covered trigger instant (zero for an empty plan).
	Through   time.Time
	Generated int
	Dropped   int
	Past      int
	Guarded   int
	EmptyDays int
}

// Build runs Generate → Rank → Select → AppendMeta.
func Build(in Input, cfg Config) Plan {
	gen := Generate(in)
	ranked := Rank(gen.Candidates, len(in.Days))
	selected := Select(ranked, cfg.Capacity)

	p := Plan{
		Generated: len(gen.Candidates),
		Dropped:   len(gen.Candidates) - len(selected),
		Past:      gen.Past,
		Guarded:   gen.Guarded,
		EmptyDays: gen.EmptyDays,
	}
	for _, c := range selected {
		if c.Trigger.After(p.Through) {
			p.Through = c.Trigger
		}
	}
	p.Candidates = AppendMeta(selected, cfg.Meta, in.Now)
	return p
}

// Regular returns the candidates that are not meta reminders.
func (p Plan) Regular() []Candidate {
	out := make([]Candidate, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		if c.Kind != KindMeta {
			out = append(out, c)
		}
	}
	return out
}
