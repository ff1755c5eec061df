/*
Package types defines the core data structures shared across RCH: the
command a hook is asked about, the classifier's decision on it, the fleet of
remote workers the daemon schedules onto, and the bookkeeping records kept
about reservations and past builds.

# Core Types

Command & Decision (classifier boundary):

  - Command: raw shell command plus working directory and tool tag
  - Decision: tagged union, PassThrough or Intercept
  - DecisionKind: the closed enumeration of recognized compile-like workloads

Fleet (daemon boundary):

  - Worker: static identity and capacity
  - WorkerState: the mutable runtime state a Worker carries (health, slots,
    circuit, speed score, cache set)
  - Health, Circuit: the two independent state machines from spec.md §4.3

Scheduling:

  - Reservation: a granted slot hold, returned to the hook driver
  - Outcome: the terminal state a reservation is released with
  - BuildRecord: an append-only record of one completed remote execution

All types are plain structs designed for JSON marshaling over the hook<->
daemon socket protocol (pkg/protocol) and for storage in the bounded build
record ring (pkg/storage). None of them do I/O themselves.
*/
package types
