/*
Package storage persists the daemon's bounded build-record ring (spec.md §3
"Build record") across restarts. Fleet and reservation state is in-memory
only and rebuilt from worker config on startup; build records are the one
thing worth keeping, since `rch status` reads the most recent ones back
through the daemon's Status operation.

BoltStore keeps one bucket, keyed by a zero-padded monotonic sequence
number so BoltDB's natural key ordering is also chronological order. Once
the bucket holds more than the configured capacity, the oldest records are
deleted on the same write transaction that inserts the newest one, so the
ring never grows unbounded.
*/
package storage
