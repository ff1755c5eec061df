package protocol

import (
	"encoding/json"
	"time"

	"github.com/cuemby/rch/pkg/types"
)

// APIVersion is stamped on every response envelope.
const APIVersion = "1.0"

// RequestType enumerates the operations the daemon exposes over the socket.
type RequestType string

const (
	RequestSelectWorker       RequestType = "SelectWorker"
	RequestReleaseReservation RequestType = "ReleaseReservation"
	RequestProbe              RequestType = "Probe"
	RequestStatus             RequestType = "Status"
	RequestCancel             RequestType = "Cancel"
	RequestHealth             RequestType = "Health"
)

// Envelope is the outer frame every request carries: a type tag, a
// correlation id, and a type-specific payload decoded by callers once they
// know Type.
type Envelope struct {
	ID      int64           `json:"id"`
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type and id.
func NewEnvelope(id int64, t RequestType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Type: t, Payload: raw}, nil
}

// Response is the success-or-error envelope every daemon reply uses
// (spec.md §6.2).
type Response struct {
	APIVersion string      `json:"api_version"`
	Timestamp  int64       `json:"timestamp"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      *Error      `json:"error,omitempty"`
}

// NewResponse builds a successful Response carrying data.
func NewResponse(data interface{}) Response {
	return Response{
		APIVersion: APIVersion,
		Timestamp:  time.Now().Unix(),
		Success:    true,
		Data:       data,
	}
}

// NewErrorResponse builds a failed Response carrying a typed Error.
func NewErrorResponse(err *Error) Response {
	return Response{
		APIVersion: APIVersion,
		Timestamp:  time.Now().Unix(),
		Success:    false,
		Error:      err,
	}
}

// SelectWorkerRequest asks the daemon to reserve slots on a suitable worker.
type SelectWorkerRequest struct {
	ProjectFingerprint string            `json:"project_fingerprint"`
	RequiredRuntime    types.Runtime     `json:"required_runtime"`
	SlotsRequested     int               `json:"slots_requested"`
	DecisionKind       types.DecisionKind `json:"decision_kind"`
}

// ConnectionInfo is the subset of a Worker's coordinates the hook/orchestrator
// needs to open the remote channel; it never carries raw secret material,
// only a reference resolved locally by pkg/security.
type ConnectionInfo struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	User          string `json:"user"`
	CredentialRef string `json:"credential_ref"`
}

// ReservationPayload is the data returned on a successful SelectWorker call.
type ReservationPayload struct {
	ReservationID string         `json:"reservation_id"`
	WorkerID      string         `json:"worker_id"`
	SlotsGranted  int            `json:"slots_granted"`
	Connection    ConnectionInfo `json:"connection"`
	DeadlineUnix  int64          `json:"deadline_unix"`
}

// ReleaseReservationRequest reports the terminal outcome of a reservation.
type ReleaseReservationRequest struct {
	ReservationID string      `json:"reservation_id"`
	Outcome       types.Outcome `json:"outcome"`
	ExitCode      int         `json:"exit_code,omitempty"`
	DurationMs    int64       `json:"duration_ms,omitempty"`
	BytesTransferred int64    `json:"bytes_transferred,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

// ProbeRequest forces a health probe of one worker.
type ProbeRequest struct {
	WorkerID string `json:"worker_id"`
}

// ProbePayload is the worker state snapshot returned by Probe.
type ProbePayload struct {
	WorkerID           string           `json:"worker_id"`
	Health             types.Health     `json:"health"`
	Circuit            types.CircuitState `json:"circuit"`
	LastProbeLatencyMs int64            `json:"last_probe_latency_ms"`
}

// StatusPayload is the full fleet snapshot returned by Status.
type StatusPayload struct {
	Workers      []WorkerSnapshot     `json:"workers"`
	Reservations []ReservationSnapshot `json:"reservations"`
	RecentBuilds []types.BuildRecord  `json:"recent_builds"`
}

// WorkerSnapshot is a read-only view of one worker's current state.
type WorkerSnapshot struct {
	ID                 string             `json:"id"`
	Health             types.Health       `json:"health"`
	Circuit            types.CircuitState `json:"circuit"`
	SlotsTotal         int                `json:"slots_total"`
	UsedSlots          int                `json:"used_slots"`
	SpeedScore         float64            `json:"speed_score"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	Tags               map[string]string  `json:"tags,omitempty"`
}

// ReservationSnapshot is a read-only view of one live reservation.
type ReservationSnapshot struct {
	ID                 string    `json:"id"`
	WorkerID           string    `json:"worker_id"`
	ProjectFingerprint string    `json:"project_fingerprint"`
	SlotsGranted       int       `json:"slots_granted"`
	Deadline           time.Time `json:"deadline"`
}

// CancelRequest marks one reservation (or every reservation, when All is
// true) for cancellation; the holder is still responsible for calling
// ReleaseReservation.
type CancelRequest struct {
	ReservationID string `json:"reservation_id,omitempty"`
	All           bool   `json:"all,omitempty"`
}

// HealthRequest is the daemon liveness probe (client.Health); no payload.
// The hook driver does not send it before SelectWorker.
type HealthRequest struct{}

// HealthPayload reports the daemon's own liveness.
type HealthPayload struct {
	Up          bool `json:"up"`
	WorkerCount int  `json:"worker_count"`
}
