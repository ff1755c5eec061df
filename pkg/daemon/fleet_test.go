package daemon

import (
	"sync"
	"testing"

	"github.com/cuemby/rch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFleet() *Fleet {
	return NewFleet([]types.Worker{
		{ID: "w1", Host: "10.0.0.1", SlotsTotal: 8, Enabled: true, Capabilities: map[types.Runtime]bool{types.RuntimeRust: true}},
		{ID: "w2", Host: "10.0.0.2", SlotsTotal: 4, Enabled: true, Capabilities: map[types.Runtime]bool{types.RuntimeCCxx: true}},
	})
}

func TestNewFleet_StartsUnreachableWithClosedCircuit(t *testing.T) {
	f := newTestFleet()
	v, ok := f.Get("w1")
	require.True(t, ok)
	assert.Equal(t, types.HealthUnreachable, v.State.Health)
	assert.Equal(t, types.CircuitClosed, v.State.Circuit.State)
}

func TestFleet_GetUnknownWorker(t *testing.T) {
	f := newTestFleet()
	_, ok := f.Get("nonexistent")
	assert.False(t, ok)
}

func TestFleet_WithWorkerUnknownReturnsError(t *testing.T) {
	f := newTestFleet()
	err := f.WithWorker("nonexistent", func(types.Worker, *types.WorkerState) {})
	assert.Error(t, err)
}

func TestFleet_SnapshotReturnsAllWorkers(t *testing.T) {
	f := newTestFleet()
	views := f.Snapshot()
	assert.Len(t, views, 2)
}

func TestFleet_SnapshotWorkersImplementsFleetSnapshotter(t *testing.T) {
	f := newTestFleet()
	snaps := f.SnapshotWorkers()
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.Contains(t, []string{"w1", "w2"}, s.ID)
	}
}

// TestFleet_UsedSlotsConservedUnderConcurrency exercises the linearizability
// invariant: after many concurrent reserve/release pairs on one worker,
// used_slots returns to exactly zero.
func TestFleet_UsedSlotsConservedUnderConcurrency(t *testing.T) {
	f := newTestFleet()
	var wg sync.WaitGroup
	const n = 200

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.WithWorker("w1", func(_ types.Worker, state *types.WorkerState) {
				state.UsedSlots++
			})
			_ = f.WithWorker("w1", func(_ types.Worker, state *types.WorkerState) {
				state.UsedSlots--
			})
		}()
	}
	wg.Wait()

	v, _ := f.Get("w1")
	assert.Equal(t, 0, v.State.UsedSlots)
}

func TestFleet_AddWorkersAddsOnlyNewEntries(t *testing.T) {
	f := newTestFleet()

	_ = f.WithWorker("w1", func(_ types.Worker, state *types.WorkerState) {
		state.UsedSlots = 3
		state.Health = types.HealthHealthy
	})

	added := f.AddWorkers([]types.Worker{
		{ID: "w1", Host: "10.0.0.1", SlotsTotal: 8, Enabled: true}, // already present
		{ID: "w3", Host: "10.0.0.3", SlotsTotal: 2, Enabled: true},
	})

	assert.Equal(t, 1, added)
	assert.Len(t, f.Snapshot(), 3)

	existing, ok := f.Get("w1")
	require.True(t, ok)
	assert.Equal(t, 3, existing.State.UsedSlots, "existing worker state must survive AddWorkers untouched")
	assert.Equal(t, types.HealthHealthy, existing.State.Health)

	fresh, ok := f.Get("w3")
	require.True(t, ok)
	assert.Equal(t, types.HealthUnreachable, fresh.State.Health)
}
