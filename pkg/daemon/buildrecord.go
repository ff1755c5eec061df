package daemon

import (
	"time"

	"github.com/cuemby/rch/pkg/types"
	"github.com/google/uuid"
)

// buildRecordFor turns a completed/abandoned reservation into the bounded
// ring entry pkg/storage persists (spec.md §3).
func buildRecordFor(r types.Reservation, outcome types.Outcome, exitCode int, command string, durationMs, bytesTransferred int64) *types.BuildRecord {
	return &types.BuildRecord{
		ID:                 uuid.New().String(),
		WorkerID:           r.WorkerID,
		ProjectFingerprint: r.ProjectFingerprint,
		Command:            command,
		StartedAt:          r.CreatedAt,
		CompletedAt:        time.Now(),
		ExitCode:           exitCode,
		Outcome:            outcome,
		DurationMs:         durationMs,
		BytesTransferred:   bytesTransferred,
	}
}
