/*
Package health implements the probes the daemon runs against remote workers
to drive the Health half of a worker's two state machines (spec.md §4.3).

Three checker strategies share one Checker interface:

  - HTTPChecker — probes a worker's optional HTTP status endpoint.
  - TCPChecker — dials the worker's SSH port to confirm basic reachability
    without authenticating.
  - SSHChecker — opens an authenticated SSH session and runs a lightweight
    command (e.g. "echo ok"), the strongest signal that a worker can
    actually accept and run a build.

A Status tracks consecutive successes/failures per worker and applies
hysteresis (spec.md's Retries-before-unhealthy, Successes-before-recovery)
so a single transient probe failure doesn't flip a worker's Health. The
reconciler does not use Status: it hands each raw Result to
Daemon.ApplyProbeResult, which keeps its own per-worker probe streaks.
*/
package health
