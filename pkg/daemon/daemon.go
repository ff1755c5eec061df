package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/events"
	"github.com/cuemby/rch/pkg/health"
	"github.com/cuemby/rch/pkg/log"
	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/storage"
	"github.com/cuemby/rch/pkg/types"
	"github.com/rs/zerolog"
)

// Daemon is the Scheduler D: the single process that owns fleet state for
// the lifetime of the socket it serves (spec.md §4.3).
type Daemon struct {
	fleet        *Fleet
	reservations *reservationTable
	store        storage.Store
	broker       *events.Broker
	cfg          config.Config
	logger       zerolog.Logger

	streaksMu sync.Mutex
	streaks   map[string]*probeStreak

	probeNow func(workerID string) error // wired by cmd/rch to pkg/reconciler.ProbeNow
}

// New builds a Daemon over an already-constructed fleet and store. The
// broker and fleet are expected to already be Start()ed by the caller so
// Daemon itself owns no goroutines beyond what Server adds.
func New(cfg config.Config, fleet *Fleet, store storage.Store, broker *events.Broker) *Daemon {
	return &Daemon{
		fleet:        fleet,
		reservations: newReservationTable(),
		store:        store,
		broker:       broker,
		cfg:          cfg,
		logger:       log.WithComponent("daemon"),
		streaks:      make(map[string]*probeStreak),
	}
}

// streakFor returns the persistent probe streak counters for a worker,
// creating them on first use.
func (d *Daemon) streakFor(workerID string) *probeStreak {
	d.streaksMu.Lock()
	defer d.streaksMu.Unlock()
	s, ok := d.streaks[workerID]
	if !ok {
		s = &probeStreak{}
		d.streaks[workerID] = s
	}
	return s
}

// SetProbeHook registers the callback Probe uses to force an immediate
// health check, normally pkg/reconciler.Reconciler.ProbeNow.
func (d *Daemon) SetProbeHook(fn func(workerID string) error) {
	d.probeNow = fn
}

// Fleet exposes the fleet map to the reconciler.
func (d *Daemon) Fleet() *Fleet { return d.fleet }

// SelectWorker implements the selection algorithm (spec.md §4.3): filter,
// score, reserve.
func (d *Daemon) SelectWorker(req SelectRequest) (protocol.ReservationPayload, *protocol.Error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SelectWorkerDuration)

	views := d.fleet.Snapshot()
	candidates := rankCandidates(views, req, d.cfg.Selection)
	if len(candidates) == 0 {
		metrics.ReservationsDeniedTotal.WithLabelValues("none_available").Inc()
		d.broker.Publish(&events.Event{
			Type:      events.EventReservationDenied,
			Timestamp: time.Now(),
			Message:   "no worker satisfies the request",
		})
		return protocol.ReservationPayload{}, protocol.ErrNoneAvailable
	}

	chosen := pick(candidates, d.cfg.Selection.Strategy, newSelectionRand())

	ttl := time.Duration(d.cfg.SelfHealing.ReservationTTLSec) * time.Second
	var reservation types.Reservation
	var connInfo protocol.ConnectionInfo
	err := d.fleet.WithWorker(chosen.view.Worker.ID, func(worker types.Worker, state *types.WorkerState) {
		if state.FreeSlots(worker.SlotsTotal) < req.SlotsRequested {
			return
		}
		state.UsedSlots += req.SlotsRequested
		reservation = d.reservations.create(worker.ID, req.ProjectFingerprint, req.SlotsRequested, ttl)
		connInfo = protocol.ConnectionInfo{Host: worker.Host, Port: worker.Port, User: worker.User, CredentialRef: worker.CredentialRef}
	})
	if err != nil || reservation.ID == "" {
		metrics.ReservationsDeniedTotal.WithLabelValues("race_lost").Inc()
		return protocol.ReservationPayload{}, protocol.ErrAtCapacity
	}

	metrics.ReservationsGrantedTotal.Inc()
	d.broker.Publish(&events.Event{
		Type:      events.EventReservationGranted,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("reservation %s granted on worker %s", reservation.ID, reservation.WorkerID),
		Metadata:  map[string]string{"worker_id": reservation.WorkerID, "reservation_id": reservation.ID},
	})

	return protocol.ReservationPayload{
		ReservationID: reservation.ID,
		WorkerID:      reservation.WorkerID,
		SlotsGranted:  reservation.SlotsGranted,
		Connection:    connInfo,
		DeadlineUnix:  reservation.Deadline.Unix(),
	}, nil
}

// ReleaseReservation applies a terminal outcome: frees the worker's slots,
// updates the circuit breaker, persists a build record, and emits events.
// Idempotent: a duplicate release for the same id is a no-op.
func (d *Daemon) ReleaseReservation(req protocol.ReleaseReservationRequest) *protocol.Error {
	outcome := d.reservations.release(req.ReservationID)
	if !outcome.Found {
		return nil // idempotent: unknown or already-released ids are ignored
	}

	r := outcome.Reservation
	success := req.Outcome == types.OutcomeSuccess

	_ = d.fleet.WithWorker(r.WorkerID, func(worker types.Worker, state *types.WorkerState) {
		state.UsedSlots -= r.SlotsGranted
		if state.UsedSlots < 0 {
			state.UsedSlots = 0
		}
		if req.Outcome != types.OutcomeCancelled && req.Outcome != types.OutcomeFailOpen {
			state.Circuit = recordCircuitOutcome(state.Circuit, success, time.Now(), d.cfg.SelfHealing, worker.ID)
		}
		if success {
			if state.CacheSet == nil {
				state.CacheSet = make(map[string]bool)
			}
			state.CacheSet[r.ProjectFingerprint] = true
		}
	})

	metrics.ReservationsReleasedTotal.WithLabelValues(string(req.Outcome)).Inc()
	if d.store != nil {
		record := buildRecordFor(r, req.Outcome, req.ExitCode, req.Reason, req.DurationMs, req.BytesTransferred)
		if err := d.store.AppendBuildRecord(record); err != nil {
			d.logger.Warn().Err(err).Str("reservation_id", r.ID).Msg("failed to persist build record")
		}
		metrics.RemoteBuildsTotal.WithLabelValues(string(req.Outcome)).Inc()
	}

	d.broker.Publish(&events.Event{
		Type:      events.EventReservationReleased,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("reservation %s released: %s", r.ID, req.Outcome),
		Metadata:  map[string]string{"worker_id": r.WorkerID, "reservation_id": r.ID, "outcome": string(req.Outcome)},
	})
	d.broker.Publish(&events.Event{
		Type:      events.EventBuildCompleted,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("build for reservation %s completed with exit code %d", r.ID, req.ExitCode),
		Metadata:  map[string]string{"worker_id": r.WorkerID, "reservation_id": r.ID},
	})
	return nil
}

// Probe forces an immediate health check of one worker and returns its
// updated state.
func (d *Daemon) Probe(workerID string) (protocol.ProbePayload, *protocol.Error) {
	view, ok := d.fleet.Get(workerID)
	if !ok {
		return protocol.ProbePayload{}, protocol.ErrUnknownWorker
	}
	if d.probeNow != nil {
		if err := d.probeNow(workerID); err != nil {
			d.logger.Warn().Err(err).Str("worker_id", workerID).Msg("forced probe failed")
		}
		view, _ = d.fleet.Get(workerID)
	}
	return protocol.ProbePayload{
		WorkerID:           view.Worker.ID,
		Health:             view.State.Health,
		Circuit:            view.State.Circuit.State,
		LastProbeLatencyMs: view.State.LastProbeLatencyMs,
	}, nil
}

// Status returns a full fleet/reservation/build snapshot.
func (d *Daemon) Status() protocol.StatusPayload {
	views := d.fleet.Snapshot()
	workers := make([]protocol.WorkerSnapshot, 0, len(views))
	for _, v := range views {
		workers = append(workers, protocol.WorkerSnapshot{
			ID:                  v.Worker.ID,
			Health:              v.State.Health,
			Circuit:             v.State.Circuit.State,
			SlotsTotal:          v.Worker.SlotsTotal,
			UsedSlots:           v.State.UsedSlots,
			SpeedScore:          v.State.SpeedScore,
			ConsecutiveFailures: v.State.Circuit.ConsecutiveFailures,
			Tags:                v.Worker.Tags,
		})
	}

	reservations := d.reservations.snapshot()
	resvSnaps := make([]protocol.ReservationSnapshot, 0, len(reservations))
	for _, r := range reservations {
		resvSnaps = append(resvSnaps, protocol.ReservationSnapshot{
			ID:                 r.ID,
			WorkerID:           r.WorkerID,
			ProjectFingerprint: r.ProjectFingerprint,
			SlotsGranted:       r.SlotsGranted,
			Deadline:           r.Deadline,
		})
	}

	var recent []types.BuildRecord
	if d.store != nil {
		if records, err := d.store.ListBuildRecords(50); err == nil {
			for _, r := range records {
				recent = append(recent, *r)
			}
		}
	}

	return protocol.StatusPayload{Workers: workers, Reservations: resvSnaps, RecentBuilds: recent}
}

// Cancel marks one reservation, or every reservation, for cancellation.
func (d *Daemon) Cancel(req protocol.CancelRequest) *protocol.Error {
	if req.All {
		d.reservations.cancelAll()
		return nil
	}
	if req.ReservationID == "" {
		return protocol.ErrUnknownReservation
	}
	if !d.reservations.cancel(req.ReservationID) {
		return protocol.ErrUnknownReservation
	}
	return nil
}

// Health reports the daemon's own liveness for the hook driver's
// reachability check.
func (d *Daemon) Health() protocol.HealthPayload {
	return protocol.HealthPayload{Up: true, WorkerCount: len(d.fleet.IDs())}
}

// ApplyProbeResult folds one probe outcome into a worker's health and
// circuit state. Called by pkg/reconciler once per worker per tick.
func (d *Daemon) ApplyProbeResult(workerID string, result health.Result, latencyMs int64) {
	streak := d.streakFor(workerID)
	_ = d.fleet.WithWorker(workerID, func(worker types.Worker, state *types.WorkerState) {
		previous := state.Health
		state.Health = applyProbeResult(state.Health, streak, result, latencyMs, d.cfg.SelfHealing)
		state.LastProbeLatencyMs = latencyMs
		state.LastHeartbeatAt = time.Now()
		state.Circuit = maybeHalfOpen(state.Circuit, time.Now(), worker.ID)

		if previous != state.Health {
			d.broker.Publish(&events.Event{
				Type:      events.EventWorkerHealthChanged,
				Timestamp: time.Now(),
				Message:   fmt.Sprintf("worker %s health %s -> %s", worker.ID, previous, state.Health),
				Metadata:  map[string]string{"worker_id": worker.ID, "from": string(previous), "to": string(state.Health)},
			})
		}
	})
}

// SweepExpired force-releases every reservation past its deadline as
// Abandoned (spec.md §4.3's sweeper), counted as a circuit failure. Called
// by pkg/reconciler on its tick.
func (d *Daemon) SweepExpired(now time.Time) {
	expired := d.reservations.reclaimExpired(now)
	for _, r := range expired {
		_ = d.fleet.WithWorker(r.WorkerID, func(worker types.Worker, state *types.WorkerState) {
			state.UsedSlots -= r.SlotsGranted
			if state.UsedSlots < 0 {
				state.UsedSlots = 0
			}
			state.Circuit = recordCircuitOutcome(state.Circuit, false, now, d.cfg.SelfHealing, worker.ID)
		})

		metrics.ReservationsAbandonedTotal.Inc()
		if d.store != nil {
			record := buildRecordFor(r, types.OutcomeAbandoned, -1, "", now.Sub(r.CreatedAt).Milliseconds(), 0)
			if err := d.store.AppendBuildRecord(record); err != nil {
				d.logger.Warn().Err(err).Str("reservation_id", r.ID).Msg("failed to persist abandoned build record")
			}
		}

		d.logger.Warn().
			Str("reservation_id", r.ID).
			Str("worker_id", r.WorkerID).
			Msg("reservation deadline exceeded, force-released as abandoned")

		d.broker.Publish(&events.Event{
			Type:      events.EventReservationAbandoned,
			Timestamp: now,
			Message:   fmt.Sprintf("reservation %s abandoned on worker %s", r.ID, r.WorkerID),
			Metadata:  map[string]string{"worker_id": r.WorkerID, "reservation_id": r.ID},
		})
	}
}
