package prayer

// Toggles are the user's visibility switches for the optional categories.
type Toggles struct {
	ShowAsr  bool `json:"show_asr"`
	ShowIsha bool `json:"show_isha"`
}

// IsVisible reports whether c is currently shown to the user.
// Asr and Isha follow their toggles; every other category is always shown.
func IsVisible(c Category, t Toggles) bool {
	switch c {
	case Asr:
		return t.ShowAsr
	case Isha:
		return t.ShowIsha
	default:
		return c.Valid()
	}
}

// Optional reports whether c has a visibility toggle.
func Optional(c Category) bool { return c == Asr || c == Isha }

// Set returns a copy of t with the toggle for c changed.
// It reports false when c has no toggle.
func (t Toggles) Set(c Category, on bool) (Toggles, bool) {
	switch c {
	case Asr:
		t.ShowAsr = on
	case Isha:
		t.ShowIsha = on
	default:
		return t, false
	}
	return t, true
}
