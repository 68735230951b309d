package planner

// Rank assigns priority = (totalDays − dayIndex) * 10 + kind weight, which
// favors near-term and start-type alerts. The input slice is not modified.
func Rank(cands []Candidate, totalDays int) []Candidate {
	out := make([]Candidate, len(cands))
	for i, c := range cands {
		c.Priority = (totalDays-c.DayIndex)*10 + c.Kind.Weight()
		out[i] = c
	}
	return out
}
