// Package notifier delivers fired alerts to the bound chat.
//
// Delivery is asynchronous: Notify enqueues and a small worker pool sends
// through the transport adapter with a token-bucket rate limit, jittered
// exponential retry and a dedup window that suppresses identical messages
// (for example an alert re-fired after a restart). Dedup windows can be
// persisted so they survive restarts.
//
// Delivery is best effort: a message that still fails after the last retry
// is dropped and reported on the event bus.
package notifier
