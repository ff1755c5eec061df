/*
Package reconciler drives the fleet's self-healing ticks: health probing and
reservation reclamation.

Worker selection (pkg/daemon's SelectWorker) only ever reads fleet state; it
never writes a worker's health or circuit on its own initiative. Writing that
state is this package's job, on a fixed interval - the same split pkg/daemon
describes between the selection path and the reconciler's tick.

Each worker gets its own health.Checker, an SSHChecker dialing the worker and
running a lightweight probe command, and its own cooldown clock, so a slow or
unreachable worker never delays probing the rest of the fleet. Results fold
into the daemon via Daemon.ApplyProbeResult, which owns the health and
circuit state machines; this package only decides when to call it.

A second, independently-configured tick calls Daemon.SweepExpired to force-
release reservations that outlived their deadline, freeing slots a crashed or
wedged client would otherwise hold forever.

Like the teacher's reconciler, this one is otherwise stateless between
ticks: every decision is made from the fleet snapshot and each worker's own
probe streak, never from cluster-wide history.
*/
package reconciler
