package daemon

import (
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/health"
	"github.com/cuemby/rch/pkg/types"
)

// probeStreak tracks consecutive probe outcomes per worker for the
// Unreachable<->Healthy transitions, which key off a streak count rather
// than the single-sample hysteresis pkg/health.Status already applies to
// the raw Check result. Owned by the Daemon (Daemon.streakFor), one per
// worker.
type probeStreak struct {
	consecutiveFailures int
	consecutiveSuccess  int
}

// applyProbeResult folds one health.Result into a worker's Health state and
// last-probe bookkeeping (spec.md §4.3's health state machine, separate
// from the circuit breaker). latencyMs is probe round-trip time.
func applyProbeResult(current types.Health, streak *probeStreak, result health.Result, latencyMs int64, cfg config.SelfHealing) types.Health {
	if current == types.HealthDraining || current == types.HealthDisabled {
		return current
	}

	if result.Healthy {
		streak.consecutiveFailures = 0
		streak.consecutiveSuccess++
	} else {
		streak.consecutiveSuccess = 0
		streak.consecutiveFailures++
	}

	switch current {
	case types.HealthHealthy:
		if streak.consecutiveFailures >= cfg.ProbeFailureStreak {
			return types.HealthUnreachable
		}
		if result.Healthy && latencyMs > cfg.DegradeMs {
			return types.HealthDegraded
		}
		return types.HealthHealthy

	case types.HealthDegraded:
		if streak.consecutiveFailures >= cfg.ProbeFailureStreak {
			return types.HealthUnreachable
		}
		if result.Healthy && latencyMs < cfg.RecoverMs {
			return types.HealthHealthy
		}
		return types.HealthDegraded

	case types.HealthUnreachable:
		if streak.consecutiveSuccess >= cfg.ProbeSuccessStreak {
			return types.HealthHealthy
		}
		return types.HealthUnreachable
	}
	return current
}

// cooldownElapsed reports whether enough time has passed since lastProbe to
// run another probe at the configured interval.
func cooldownElapsed(lastProbe time.Time, now time.Time, cfg config.SelfHealing) bool {
	return now.Sub(lastProbe) >= time.Duration(cfg.ProbeIntervalSec)*time.Second
}
