package prayer

import "strings"

// GroupRule binds a shared end-of-window boundary to the categories whose
// window it closes. Members are listed in offset priority order.
type GroupRule struct {
	Key      string
	Boundary Category
	Members  []Category
}

var groupRules = []GroupRule{
	{Key: "fajr", Boundary: Sunrise, Members: []Category{Fajr}},
	{Key: "dhuhr-asr", Boundary: Sunset, Members: []Category{Dhuhr, Asr}},
	{Key: "maghrib-isha", Boundary: Midnight, Members: []Category{Maghrib, Isha}},
}

// GroupRules returns the static group table.
func GroupRules() []GroupRule {
	out := make([]GroupRule, len(groupRules))
	for i, g := range groupRules {
		out[i] = GroupRule{Key: g.Key, Boundary: g.Boundary, Members: append([]Category(nil), g.Members...)}
	}
	return out
}

// GroupOf returns the rule whose members include c.
func GroupOf(c Category) (GroupRule, bool) {
	for _, g := range GroupRules() {
		for _, m := range g.Members {
			if m == c {
				return g, true
			}
		}
	}
	return GroupRule{}, false
}

// Label joins member names: "Dhuhr & Asr".
func Label(members []Category) string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.String()
	}
	return strings.Join(names, " & ")
}
