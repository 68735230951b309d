// Package alerts registers planned alerts with a pending-alert store.
//
// The Store port is the platform's local-notification scheduler: it accepts
// one-shot alerts keyed by ID and enforces a hard ceiling on how many can be
// pending. TimerStore is the in-process implementation used by the service;
// it fires alerts through a callback (normally the notifier).
//
// Replacer drives a full replacement: cancel everything, then register the
// new plan front to back. A newer pass supersedes an older one mid-flight.
package alerts
