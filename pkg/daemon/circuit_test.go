package daemon

import (
	"testing"
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/types"
	"github.com/stretchr/testify/assert"
)

func selfHealingCfg() config.SelfHealing {
	return config.DefaultConfig().SelfHealing
}

func TestRecordCircuitOutcome_OpensAfterThreshold(t *testing.T) {
	cfg := selfHealingCfg()
	c := types.Circuit{State: types.CircuitClosed}
	now := time.Now()

	for i := 0; i < cfg.FailureThreshold-1; i++ {
		c = recordCircuitOutcome(c, false, now, cfg, "w1")
		assert.Equal(t, types.CircuitClosed, c.State)
	}
	c = recordCircuitOutcome(c, false, now, cfg, "w1")
	assert.Equal(t, types.CircuitOpen, c.State)
	assert.Equal(t, now, c.OpenedAt)
}

func TestRecordCircuitOutcome_SuccessResetsFailureCount(t *testing.T) {
	cfg := selfHealingCfg()
	c := types.Circuit{State: types.CircuitClosed, ConsecutiveFailures: cfg.FailureThreshold - 1}
	c = recordCircuitOutcome(c, true, time.Now(), cfg, "w1")
	assert.Equal(t, types.CircuitClosed, c.State)
	assert.Equal(t, 0, c.ConsecutiveFailures)
}

func TestRecordCircuitOutcome_HalfOpenSuccessCloses(t *testing.T) {
	cfg := selfHealingCfg()
	c := types.Circuit{State: types.CircuitHalfOpen, ConsecutiveFailures: cfg.FailureThreshold}
	c = recordCircuitOutcome(c, true, time.Now(), cfg, "w1")
	assert.Equal(t, types.CircuitClosed, c.State)
	assert.Equal(t, 0, c.ConsecutiveFailures)
}

func TestRecordCircuitOutcome_HalfOpenFailureReopens(t *testing.T) {
	cfg := selfHealingCfg()
	c := types.Circuit{State: types.CircuitHalfOpen}
	now := time.Now()
	c = recordCircuitOutcome(c, false, now, cfg, "w1")
	assert.Equal(t, types.CircuitOpen, c.State)
	assert.Equal(t, now, c.OpenedAt)
}

func TestRecordCircuitOutcome_OpenIgnoresRacingOutcome(t *testing.T) {
	cfg := selfHealingCfg()
	opened := time.Now().Add(-time.Minute)
	c := types.Circuit{State: types.CircuitOpen, OpenedAt: opened, Cooldown: 30 * time.Second}
	c = recordCircuitOutcome(c, true, time.Now(), cfg, "w1")
	assert.Equal(t, types.CircuitOpen, c.State)
	assert.Equal(t, opened, c.OpenedAt)
}

func TestMaybeHalfOpen_TransitionsAfterCooldown(t *testing.T) {
	c := types.Circuit{State: types.CircuitOpen, OpenedAt: time.Now().Add(-time.Minute), Cooldown: 30 * time.Second}
	c = maybeHalfOpen(c, time.Now(), "w1")
	assert.Equal(t, types.CircuitHalfOpen, c.State)
}

func TestMaybeHalfOpen_NoOpBeforeCooldownElapses(t *testing.T) {
	c := types.Circuit{State: types.CircuitOpen, OpenedAt: time.Now(), Cooldown: 30 * time.Second}
	c = maybeHalfOpen(c, time.Now(), "w1")
	assert.Equal(t, types.CircuitOpen, c.State)
}

func TestMaybeHalfOpen_NoOpWhenNotOpen(t *testing.T) {
	c := types.Circuit{State: types.CircuitClosed}
	assert.Equal(t, c, maybeHalfOpen(c, time.Now(), "w1"))
}
