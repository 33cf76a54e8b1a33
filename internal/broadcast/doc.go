// Package broadcast implements the live vitals fan-out using the actor pattern.
//
// The Dispatcher owns the topic registry (topic -> subscriber sessions) in a
// single goroutine fed by a command channel (no mutexes), so registry mutations
// are linearizable with respect to fan-out snapshots. Per-connection write
// goroutines with bounded queues isolate slow clients: a subscriber that cannot
// keep up is evicted instead of stalling the publish loop.
package broadcast
