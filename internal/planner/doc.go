// Package planner turns a window of EventTimeSets plus the user's
// preferences into a bounded, ranked list of alert candidates.
//
// The pipeline is Generate → Rank → Select → AppendMeta, run as one
// synchronous pass by Build. Every step is pure: identical inputs always
// produce identical candidates, identifiers and ordering.
package planner
