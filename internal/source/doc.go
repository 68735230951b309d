// Package source fetches daily prayer timings.
//
// Source is the port the rest of the service depends on. HTTPSource talks
// to an Aladhan-compatible timings API; Window loads a run of consecutive
// days concurrently, and Cache memoizes days per location and method.
// Any fetch error means "no data for that day".
package source
