// Package refresh keeps the registered plan and the countdown data current.
//
// A cron-driven Watcher runs two jobs: a periodic coverage check that asks
// for regeneration when the "scheduled through" marker is too close, and a
// daily rollover that reloads the countdown's today/tomorrow sets shortly
// after local midnight.
package refresh
