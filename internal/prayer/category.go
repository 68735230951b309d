package prayer

import (
	"fmt"
	"strings"
)

// Category is one of the eight daily prayer-time categories.
// The numeric value is the canonical order.
type Category int

const (
	Fajr Category = iota
	Sunrise
	Dhuhr
	Asr
	Sunset
	Maghrib
	Isha
	Midnight
)

// Anchor is the day-anchor category: the first event of a day.
const Anchor = Fajr

var categoryNames = [...]string{"Fajr", "Sunrise", "Dhuhr", "Asr", "Sunset", "Maghrib", "Isha", "Midnight"}

// Categories returns all categories in canonical order.
func Categories() []Category {
	return []Category{Fajr, Sunrise, Dhuhr, Asr, Sunset, Maghrib, Isha, Midnight}
}

func (c Category) Valid() bool { return c >= Fajr && c <= Midnight }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Key is the lowercase identifier used in alert IDs and settings.
func (c Category) Key() string { return strings.ToLower(c.String()) }

// ParseCategory accepts names case-insensitively ("asr", "Maghrib").
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i, n := range categoryNames {
		if strings.EqualFold(n, s) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown prayer category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.Key()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
