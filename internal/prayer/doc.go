// Package prayer holds the canonical prayer-time data model shared by the
// countdown, the planner and the adapters: the ordered category
// enumeration, one day's EventTimeSet, visibility toggles, per-category
// notification preferences and the static group rules for end-of-window
// alerts.
package prayer
