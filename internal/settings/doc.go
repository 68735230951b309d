// Package settings persists user-facing state: per-category notification
// preferences, visibility toggles, the "scheduled through" marker, the
// bound delivery chat and the notifier's dedup windows.
//
// Drivers:
//   - "memory": process lifetime only
//   - "file":   JSON snapshot plus a dedup journal next to it
//   - "sqlite": modernc.org/sqlite database file
package settings
