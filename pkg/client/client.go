package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/rch/pkg/protocol"
)

// Client is a single connection to the daemon's Unix-socket protocol,
// serializing requests against it. Safe for concurrent use.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	next atomic.Int64
}

// Dial opens a connection to the daemon's socket, bounded by timeout. A
// non-nil error here is always the hook driver's cue to fail open —
// spec.md's default connect budget is 250ms.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// wireResponse mirrors protocol.Response but keeps Data undecoded so the
// caller can unmarshal it into the type the request actually returns.
type wireResponse struct {
	APIVersion string          `json:"api_version"`
	Timestamp  int64           `json:"timestamp"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      *protocol.Error `json:"error,omitempty"`
}

// call sends one request envelope and decodes the response's data payload
// into out (which may be nil for requests with no meaningful payload).
func (c *Client) call(ctx context.Context, reqType protocol.RequestType, payload interface{}, out interface{}) error {
	env, err := protocol.NewEnvelope(c.next.Add(1), reqType, payload)
	if err != nil {
		return fmt.Errorf("client: encode request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := protocol.WriteFrame(c.conn, env); err != nil {
		return fmt.Errorf("client: write request: %w", err)
	}

	var resp wireResponse
	if err := protocol.ReadFrame(c.conn, &resp); err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if !resp.Success {
		if resp.Error != nil {
			return resp.Error
		}
		return protocol.ErrInternal
	}

	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("client: decode response data: %w", err)
	}
	return nil
}

// SelectWorker asks the daemon to reserve slots on a suitable worker.
func (c *Client) SelectWorker(ctx context.Context, req protocol.SelectWorkerRequest) (protocol.ReservationPayload, error) {
	var out protocol.ReservationPayload
	err := c.call(ctx, protocol.RequestSelectWorker, req, &out)
	return out, err
}

// ReleaseReservation reports a reservation's terminal outcome.
func (c *Client) ReleaseReservation(ctx context.Context, req protocol.ReleaseReservationRequest) error {
	return c.call(ctx, protocol.RequestReleaseReservation, req, nil)
}

// Probe forces a health probe of one worker.
func (c *Client) Probe(ctx context.Context, workerID string) (protocol.ProbePayload, error) {
	var out protocol.ProbePayload
	err := c.call(ctx, protocol.RequestProbe, protocol.ProbeRequest{WorkerID: workerID}, &out)
	return out, err
}

// Status returns a snapshot of fleet state, reservations, and recent builds.
func (c *Client) Status(ctx context.Context) (protocol.StatusPayload, error) {
	var out protocol.StatusPayload
	err := c.call(ctx, protocol.RequestStatus, protocol.HealthRequest{}, &out)
	return out, err
}

// Cancel marks one reservation (or all, when req.All) for cancellation.
func (c *Client) Cancel(ctx context.Context, req protocol.CancelRequest) error {
	return c.call(ctx, protocol.RequestCancel, req, nil)
}

// Health reports the daemon's own liveness.
func (c *Client) Health(ctx context.Context) (protocol.HealthPayload, error) {
	var out protocol.HealthPayload
	err := c.call(ctx, protocol.RequestHealth, protocol.HealthRequest{}, &out)
	return out, err
}
