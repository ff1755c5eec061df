package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationTable_CreateAndRelease(t *testing.T) {
	tbl := newReservationTable()
	r := tbl.create("w1", "fp1", 2, time.Minute)
	require.NotEmpty(t, r.ID)

	out := tbl.release(r.ID)
	assert.True(t, out.Found)
	assert.Equal(t, r.ID, out.Reservation.ID)
}

func TestReservationTable_ReleaseIsIdempotent(t *testing.T) {
	tbl := newReservationTable()
	r := tbl.create("w1", "fp1", 2, time.Minute)

	first := tbl.release(r.ID)
	assert.True(t, first.Found)

	second := tbl.release(r.ID)
	assert.False(t, second.Found)
	assert.True(t, second.AlreadyKnown)
}

func TestReservationTable_ReleaseUnknownID(t *testing.T) {
	tbl := newReservationTable()
	out := tbl.release("nonexistent")
	assert.False(t, out.Found)
	assert.False(t, out.AlreadyKnown)
}

func TestReservationTable_CancelMarksLiveReservation(t *testing.T) {
	tbl := newReservationTable()
	r := tbl.create("w1", "fp1", 2, time.Minute)
	assert.True(t, tbl.cancel(r.ID))
	assert.False(t, tbl.cancel("nonexistent"))
}

func TestReservationTable_CancelAll(t *testing.T) {
	tbl := newReservationTable()
	tbl.create("w1", "fp1", 1, time.Minute)
	tbl.create("w2", "fp2", 1, time.Minute)
	tbl.cancelAll()
	for _, r := range tbl.live {
		assert.True(t, r.cancelled)
	}
}

func TestReservationTable_Snapshot(t *testing.T) {
	tbl := newReservationTable()
	tbl.create("w1", "fp1", 1, time.Minute)
	tbl.create("w2", "fp2", 1, time.Minute)
	assert.Len(t, tbl.snapshot(), 2)
}

func TestReservationTable_ReclaimExpired(t *testing.T) {
	tbl := newReservationTable()
	r1 := tbl.create("w1", "fp1", 1, -time.Second) // already expired
	r2 := tbl.create("w2", "fp2", 1, time.Hour)     // not expired

	expired := tbl.reclaimExpired(time.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, r1.ID, expired[0].ID)

	remaining := tbl.snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, r2.ID, remaining[0].ID)

	// reclaimed id is idempotent-released, a later duplicate release is a no-op
	out := tbl.release(r1.ID)
	assert.False(t, out.Found)
	assert.True(t, out.AlreadyKnown)
}

func TestReservationTable_ReclaimExpiredIsEmptyWhenNothingExpired(t *testing.T) {
	tbl := newReservationTable()
	tbl.create("w1", "fp1", 1, time.Hour)
	assert.Empty(t, tbl.reclaimExpired(time.Now()))
}
