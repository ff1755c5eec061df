/*
Package events is an in-memory pub/sub broker used to fan out reservation
and build lifecycle notifications inside the daemon process: the sweeper's
forced releases and the reconciler's health transitions both publish
through the same broker. Nothing else in the repository subscribes to it:
`rch status` queries the daemon's Status operation, and the Prometheus
collector polls a fleet snapshot.

Publish is non-blocking and best-effort: a slow or stalled subscriber (a
client that stopped reading) has its buffer skipped rather than stalling
the daemon's own reservation/health-probe goroutines. The broker carries
nothing across a daemon restart — event history lives in the build-record
ring (pkg/storage), not here.
*/
package events
