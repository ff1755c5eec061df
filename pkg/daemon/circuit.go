package daemon

import (
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/types"
)

// recordCircuitOutcome applies one reservation outcome to a worker's circuit
// breaker (spec.md §4.3). success is true for Outcome{Success}; every other
// terminal outcome counts as a failure, including Abandoned.
func recordCircuitOutcome(c types.Circuit, success bool, now time.Time, cfg config.SelfHealing, workerID string) types.Circuit {
	switch c.State {
	case types.CircuitClosed:
		if success {
			c.ConsecutiveFailures = 0
			return c
		}
		c.ConsecutiveFailures++
		if c.ConsecutiveFailures >= cfg.FailureThreshold {
			c.State = types.CircuitOpen
			c.OpenedAt = now
			c.Cooldown = time.Duration(cfg.CircuitCooldownSec) * time.Second
			metrics.CircuitTransitionsTotal.WithLabelValues(workerID, string(types.CircuitOpen)).Inc()
		}
		return c

	case types.CircuitHalfOpen:
		if success {
			c.State = types.CircuitClosed
			c.ConsecutiveFailures = 0
			metrics.CircuitTransitionsTotal.WithLabelValues(workerID, string(types.CircuitClosed)).Inc()
			return c
		}
		c.State = types.CircuitOpen
		c.OpenedAt = now
		c.Cooldown = time.Duration(cfg.CircuitCooldownSec) * time.Second
		metrics.CircuitTransitionsTotal.WithLabelValues(workerID, string(types.CircuitOpen)).Inc()
		return c

	case types.CircuitOpen:
		// An outcome shouldn't reach an Open worker (selection excludes it),
		// but a racing in-flight reservation can still report after the
		// circuit opened underneath it. Leave the state untouched; the
		// reconciler's cooldown check is the only path out of Open.
		return c
	}
	return c
}

// maybeHalfOpen transitions an Open circuit to HalfOpen once its cooldown
// has elapsed. Called by the reconciler on its probe tick, never by the
// selection or release path.
func maybeHalfOpen(c types.Circuit, now time.Time, workerID string) types.Circuit {
	if c.Expired(now) {
		c.State = types.CircuitHalfOpen
		metrics.CircuitTransitionsTotal.WithLabelValues(workerID, string(types.CircuitHalfOpen)).Inc()
	}
	return c
}
