package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_HysteresisFlipsUnhealthyAfterRetries(t *testing.T) {
	cfg := Config{Retries: 3, SuccessesToRecover: 2}
	status := NewStatus()

	fail := Result{Healthy: false, CheckedAt: time.Now()}
	status.Update(fail, cfg)
	assert.True(t, status.Healthy, "one failure should not flip healthy worker")
	status.Update(fail, cfg)
	assert.True(t, status.Healthy, "two failures should not flip healthy worker")
	status.Update(fail, cfg)
	assert.False(t, status.Healthy, "three consecutive failures should flip unhealthy")
}

func TestStatus_HysteresisRecoversAfterSuccesses(t *testing.T) {
	cfg := Config{Retries: 1, SuccessesToRecover: 2}
	status := NewStatus()

	fail := Result{Healthy: false, CheckedAt: time.Now()}
	ok := Result{Healthy: true, CheckedAt: time.Now()}

	status.Update(fail, cfg)
	assert.False(t, status.Healthy)

	status.Update(ok, cfg)
	assert.False(t, status.Healthy, "one success should not yet recover")
	status.Update(ok, cfg)
	assert.True(t, status.Healthy, "two consecutive successes should recover")
}

func TestStatus_ConsecutiveCountersReset(t *testing.T) {
	cfg := Config{Retries: 3, SuccessesToRecover: 2}
	status := NewStatus()

	fail := Result{Healthy: false, CheckedAt: time.Now()}
	ok := Result{Healthy: true, CheckedAt: time.Now()}

	status.Update(fail, cfg)
	status.Update(fail, cfg)
	status.Update(ok, cfg)

	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Equal(t, 1, status.ConsecutiveSuccesses)
}

func TestStatus_InStartPeriod(t *testing.T) {
	cfg := Config{StartPeriod: 50 * time.Millisecond}
	status := NewStatus()

	assert.True(t, status.InStartPeriod(cfg))
	time.Sleep(60 * time.Millisecond)
	assert.False(t, status.InStartPeriod(cfg))
}

func TestStatus_NoStartPeriodMeansNeverInGrace(t *testing.T) {
	status := NewStatus()
	assert.False(t, status.InStartPeriod(Config{}))
}
