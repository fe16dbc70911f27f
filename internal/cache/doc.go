// Package cache implements the keyed resource cache shared by every view.
//
// Each key maps to the last-known-good server response. Reads return that
// value immediately and revalidate in the background:
//
//	Read(key) ──> cached Entry (maybe stale)
//	    └──> no fetch in flight and none within DedupeInterval? ──> go fetch
//
// Generations order competing results. Every fetch and every Write takes the
// next value of one cache-wide counter; a fetch result is applied only if no
// newer fetch or write was issued for the key in the meantime. Writes
// therefore always beat fetches that started before them, and
// InvalidateAll discards everything still in flight.
//
// Errors classified by Options.NotFound resolve as an empty value (HasValue
// set, Value nil) so a missing cart renders as empty rather than failed.
// Other errors keep the previous value and set Status to StatusError.
//
// Subscribers run on the goroutine that made the change, after the cache
// lock is released, so they may call back into the cache.
package cache
