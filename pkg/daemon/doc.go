/*
Package daemon implements the Daemon Scheduler (D): the sole owner of fleet
state. It holds the per-worker-locked fleet map, the circuit breaker and
health state machines, the reservation table and its sweeper, and the
bounded build-record ring (delegated to pkg/storage). Server serves
SelectWorker, ReleaseReservation, Probe, Status, Cancel, and Health over a
Unix domain socket using the pkg/protocol framing.

Selection ("make it happen") lives in selection.go; health probing and
reservation reclamation ("fix what's broken") is pkg/reconciler's job,
driven by the Checker abstraction in pkg/health and the Fleet/Reservations
exposed here.
*/
package daemon
