package prayer

import (
	"testing"
	"time"
)

func TestIsVisible(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cat  Category
		tg   Toggles
		want bool
	}{
		{name: "fajr always", cat: Fajr, tg: Toggles{}, want: true},
		{name: "midnight always", cat: Midnight, tg: Toggles{}, want: true},
		{name: "asr hidden", cat: Asr, tg: Toggles{ShowIsha: true}, want: false},
		{name: "asr shown", cat: Asr, tg: Toggles{ShowAsr: true}, want: true},
		{name: "isha hidden", cat: Isha, tg: Toggles{ShowAsr: true}, want: false},
		{name: "isha shown", cat: Isha, tg: Toggles{ShowIsha: true}, want: true},
		{name: "invalid", cat: Category(42), tg: Toggles{ShowAsr: true, ShowIsha: true}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVisible(tt.cat, tt.tg); got != tt.want {
				t.Fatalf("IsVisible(%v) = %v, want %v", tt.cat, got, tt.want)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()
	for _, c := range Categories() {
		got, err := ParseCategory(c.Key())
		if err != nil {
			t.Fatalf("ParseCategory(%q): %v", c.Key(), err)
		}
		if got != c {
			t.Fatalf("ParseCategory(%q) = %v, want %v", c.Key(), got, c)
		}
	}
	if _, err := ParseCategory("tahajjud"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestPreferenceNormalizeClamps(t *testing.T) {
	t.Parallel()
	p := NotificationPreference{StartOffset: -5, ExpireOffset: 2}.Normalize()
	if p.StartOffset != 0 || p.ExpireOffset != 5 {
		t.Fatalf("unexpected low clamp: %+v", p)
	}
	p = NotificationPreference{StartOffset: 90, ExpireOffset: 120}.Normalize()
	if p.StartOffset != 60 || p.ExpireOffset != 60 {
		t.Fatalf("unexpected high clamp: %+v", p)
	}
}

func TestChronologicalKeepsCanonicalOrderOnTies(t *testing.T) {
	t.Parallel()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := day.Add(18 * time.Hour)
	set := NewEventTimeSet(day, map[Category]time.Time{
		Maghrib: at,
		Sunset:  at,
		Fajr:    day.Add(5 * time.Hour),
	})
	got := set.Chronological()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Category != Fajr || got[1].Category != Sunset || got[2].Category != Maghrib {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestGroupRulesAreCopies(t *testing.T) {
	t.Parallel()
	g := GroupRules()
	g[1].Members[0] = Midnight
	if GroupRules()[1].Members[0] != Dhuhr {
		t.Fatal("GroupRules leaked internal slice")
	}
	if got := Label([]Category{Dhuhr, Asr}); got != "Dhuhr & Asr" {
		t.Fatalf("Label = %q", got)
	}
}
