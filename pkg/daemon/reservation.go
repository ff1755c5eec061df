package daemon

import (
	"sync"
	"time"

	"github.com/cuemby/rch/pkg/types"
	"github.com/google/uuid"
)

// liveReservation is a reservation plus the cancellation flag Cancel sets;
// the holder is still responsible for calling Release (spec.md §4.3 Cancel).
type liveReservation struct {
	types.Reservation
	cancelled bool
}

// reservationTable owns every in-flight reservation. recentlyReleased keeps
// a bounded trailing window of released ids so a duplicate Release (sweeper
// and orchestrator both completing) is a no-op rather than a double-count.
type reservationTable struct {
	mu               sync.Mutex
	live             map[string]*liveReservation
	recentlyReleased map[string]time.Time
}

func newReservationTable() *reservationTable {
	return &reservationTable{
		live:             make(map[string]*liveReservation),
		recentlyReleased: make(map[string]time.Time),
	}
}

const recentlyReleasedTTL = 10 * time.Minute

// create registers a new reservation with a deadline ttl from now.
func (t *reservationTable) create(workerID, fingerprint string, slots int, ttl time.Duration) types.Reservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	r := types.Reservation{
		ID:                 uuid.New().String(),
		WorkerID:           workerID,
		ProjectFingerprint: fingerprint,
		SlotsGranted:       slots,
		CreatedAt:          now,
		Deadline:           now.Add(ttl),
	}
	t.live[r.ID] = &liveReservation{Reservation: r}
	return r
}

// releaseOutcome is returned by release to tell the caller whether the slots
// need to be given back to the fleet (they don't, on a duplicate release).
type releaseOutcome struct {
	Found        bool
	Reservation  types.Reservation
	AlreadyKnown bool // true if this id was already released once before
}

// release removes a live reservation, or reports that it was already
// released (or never existed) so ReleaseReservation stays idempotent.
func (t *reservationTable) release(id string) releaseOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneReleasedLocked()

	if r, ok := t.live[id]; ok {
		delete(t.live, id)
		t.recentlyReleased[id] = time.Now()
		return releaseOutcome{Found: true, Reservation: r.Reservation}
	}
	if _, seen := t.recentlyReleased[id]; seen {
		return releaseOutcome{Found: false, AlreadyKnown: true}
	}
	return releaseOutcome{Found: false}
}

func (t *reservationTable) pruneReleasedLocked() {
	if len(t.recentlyReleased) < 1000 {
		return
	}
	cutoff := time.Now().Add(-recentlyReleasedTTL)
	for id, at := range t.recentlyReleased {
		if at.Before(cutoff) {
			delete(t.recentlyReleased, id)
		}
	}
}

// cancel marks a live reservation for cancellation. Returns false if the id
// is not currently live.
func (t *reservationTable) cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.live[id]
	if !ok {
		return false
	}
	r.cancelled = true
	return true
}

// cancelAll marks every live reservation for cancellation.
func (t *reservationTable) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.live {
		r.cancelled = true
	}
}

// snapshot returns every live reservation.
func (t *reservationTable) snapshot() []types.Reservation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Reservation, 0, len(t.live))
	for _, r := range t.live {
		out = append(out, r.Reservation)
	}
	return out
}

// reclaimExpired removes and returns every reservation whose deadline has
// elapsed, for the reconciler's sweeper to force-release as Abandoned.
func (t *reservationTable) reclaimExpired(now time.Time) []types.Reservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []types.Reservation
	for id, r := range t.live {
		if now.After(r.Deadline) {
			expired = append(expired, r.Reservation)
			delete(t.live, id)
			t.recentlyReleased[id] = now
		}
	}
	return expired
}
