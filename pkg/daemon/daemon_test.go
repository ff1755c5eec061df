package daemon

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/events"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory storage.Store for daemon tests.
type fakeStore struct {
	mu      sync.Mutex
	records []*types.BuildRecord
}

func (f *fakeStore) AppendBuildRecord(r *types.BuildRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeStore) ListBuildRecords(limit int) ([]*types.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.records) {
		return append([]*types.BuildRecord(nil), f.records...), nil
	}
	return append([]*types.BuildRecord(nil), f.records[len(f.records)-limit:]...), nil
}

func (f *fakeStore) GetBuildRecord(id string) (*types.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (f *fakeStore) Close() error { return nil }

func newTestDaemon(t *testing.T) (*Daemon, *Fleet) {
	t.Helper()
	fleet := newTestFleet()
	// tests exercise selection/release directly; give both workers healthy state
	for _, id := range []string{"w1", "w2"} {
		_ = fleet.WithWorker(id, func(_ types.Worker, state *types.WorkerState) {
			state.Health = types.HealthHealthy
		})
	}
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	cfg := config.DefaultConfig()
	d := New(cfg, fleet, &fakeStore{}, broker)
	return d, fleet
}

func TestDaemon_SelectWorker_GrantsReservation(t *testing.T) {
	d, _ := newTestDaemon(t)
	payload, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 1, ProjectFingerprint: "fp1"})
	require.Nil(t, perr)
	assert.Equal(t, "w1", payload.WorkerID)
	assert.NotEmpty(t, payload.ReservationID)
}

func TestDaemon_SelectWorker_NoneAvailableWhenAllOpen(t *testing.T) {
	d, fleet := newTestDaemon(t)
	for _, id := range fleet.IDs() {
		_ = fleet.WithWorker(id, func(_ types.Worker, state *types.WorkerState) {
			state.Circuit.State = types.CircuitOpen
		})
	}
	_, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeGeneric, SlotsRequested: 1})
	require.NotNil(t, perr)
	assert.Equal(t, protocol.ErrNoneAvailable.Code, perr.Code)
}

func TestDaemon_SelectWorker_NeverReturnsOpenOrDisabledWorker(t *testing.T) {
	d, fleet := newTestDaemon(t)
	_ = fleet.WithWorker("w1", func(_ types.Worker, state *types.WorkerState) {
		state.Circuit.State = types.CircuitOpen
	})
	_ = fleet.WithWorker("w2", func(_ types.Worker, state *types.WorkerState) {
		state.Health = types.HealthDisabled
	})

	_, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeGeneric, SlotsRequested: 1})
	require.NotNil(t, perr)
}

func TestDaemon_ReleaseReservation_FreesSlotsAndRecordsBuild(t *testing.T) {
	d, fleet := newTestDaemon(t)
	payload, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 2, ProjectFingerprint: "fp1"})
	require.Nil(t, perr)

	v, _ := fleet.Get(payload.WorkerID)
	assert.Equal(t, 2, v.State.UsedSlots)

	rerr := d.ReleaseReservation(protocol.ReleaseReservationRequest{
		ReservationID: payload.ReservationID,
		Outcome:       types.OutcomeSuccess,
		ExitCode:      0,
		DurationMs:    1000,
	})
	require.Nil(t, rerr)

	v, _ = fleet.Get(payload.WorkerID)
	assert.Equal(t, 0, v.State.UsedSlots)
	assert.True(t, v.State.CacheSet["fp1"])
}

func TestDaemon_ReleaseReservation_IsIdempotent(t *testing.T) {
	d, _ := newTestDaemon(t)
	payload, _ := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 1, ProjectFingerprint: "fp1"})

	req := protocol.ReleaseReservationRequest{ReservationID: payload.ReservationID, Outcome: types.OutcomeSuccess}
	assert.Nil(t, d.ReleaseReservation(req))
	assert.Nil(t, d.ReleaseReservation(req)) // duplicate release: still no error, no double effect
}

func TestDaemon_ReleaseReservation_FailureOpensCircuitAfterThreshold(t *testing.T) {
	d, fleet := newTestDaemon(t)
	cfg := config.DefaultConfig().SelfHealing

	for i := 0; i < cfg.FailureThreshold; i++ {
		payload, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 1, ProjectFingerprint: "fp1"})
		require.Nil(t, perr, "iteration %d", i)
		rerr := d.ReleaseReservation(protocol.ReleaseReservationRequest{
			ReservationID: payload.ReservationID,
			Outcome:       types.OutcomeFailure,
		})
		require.Nil(t, rerr)
	}

	v, _ := fleet.Get("w1")
	assert.Equal(t, types.CircuitOpen, v.State.Circuit.State)
}

func TestDaemon_Cancel_UnknownReservationErrors(t *testing.T) {
	d, _ := newTestDaemon(t)
	perr := d.Cancel(protocol.CancelRequest{ReservationID: "nonexistent"})
	require.NotNil(t, perr)
	assert.Equal(t, protocol.ErrUnknownReservation.Code, perr.Code)
}

func TestDaemon_Cancel_MarksReservation(t *testing.T) {
	d, _ := newTestDaemon(t)
	payload, _ := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 1, ProjectFingerprint: "fp1"})
	assert.Nil(t, d.Cancel(protocol.CancelRequest{ReservationID: payload.ReservationID}))
}

func TestDaemon_SweepExpired_AbandonsAndFreesSlots(t *testing.T) {
	d, fleet := newTestDaemon(t)
	d.cfg.SelfHealing.ReservationTTLSec = 0 // expires immediately

	payload, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 2, ProjectFingerprint: "fp1"})
	require.Nil(t, perr)

	time.Sleep(time.Millisecond)
	d.SweepExpired(time.Now())

	v, _ := fleet.Get(payload.WorkerID)
	assert.Equal(t, 0, v.State.UsedSlots)

	// a subsequent client-side release of the same reservation is a no-op
	rerr := d.ReleaseReservation(protocol.ReleaseReservationRequest{ReservationID: payload.ReservationID, Outcome: types.OutcomeCancelled})
	assert.Nil(t, rerr)
}

func TestDaemon_Status_ReportsWorkersAndReservations(t *testing.T) {
	d, _ := newTestDaemon(t)
	_, perr := d.SelectWorker(SelectRequest{RequiredRuntime: types.RuntimeRust, SlotsRequested: 1, ProjectFingerprint: "fp1"})
	require.Nil(t, perr)

	status := d.Status()
	assert.Len(t, status.Workers, 2)
	assert.Len(t, status.Reservations, 1)
}

func TestDaemon_Health_ReportsWorkerCount(t *testing.T) {
	d, _ := newTestDaemon(t)
	payload := d.Health()
	assert.True(t, payload.Up)
	assert.Equal(t, 2, payload.WorkerCount)
}
