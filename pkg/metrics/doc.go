/*
Package metrics defines and registers RCH's Prometheus metrics: fleet gauges
(workers by health/circuit, per-worker slots and speed score),
classification counters, reservation/scheduling counters and histograms,
transfer and remote-build histograms, and probe/circuit-breaker counters.

Collector samples fleet state on a 15-second tick via the FleetSnapshotter
interface the daemon implements, so this package never imports pkg/daemon.
HealthHandler/ReadyHandler/LivenessHandler expose the daemon's own process
health (distinct from worker health) for operational monitoring of the
daemon itself. Handler() exposes the registered metrics for scraping.
*/
package metrics
