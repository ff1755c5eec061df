package protocol_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	req := protocol.SelectWorkerRequest{
		ProjectFingerprint: "abc123",
		RequiredRuntime:    types.RuntimeRust,
		SlotsRequested:     1,
		DecisionKind:       types.KindCargoBuild,
	}
	env, err := protocol.NewEnvelope(7, protocol.RequestSelectWorker, req)
	require.NoError(t, err)

	require.NoError(t, protocol.WriteFrame(&buf, env))

	var decoded protocol.Envelope
	require.NoError(t, protocol.ReadFrame(&buf, &decoded))

	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, env.Type, decoded.Type)

	var decodedReq protocol.SelectWorkerRequest
	require.NoError(t, json.Unmarshal(decoded.Payload, &decodedReq))
	assert.Equal(t, req, decodedReq)
}

func TestReadFrame_EmptyReaderErrors(t *testing.T) {
	var out protocol.Envelope
	err := protocol.ReadFrame(&bytes.Buffer{}, &out)
	assert.Error(t, err)
}

func TestWriteFrame_RejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	huge := make([]byte, protocol.MaxFrameBytes+1)
	err := protocol.WriteFrame(&buf, string(huge))
	assert.Error(t, err)
}

func TestReadFrame_RejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], protocol.MaxFrameBytes+1)
	buf.Write(header[:])

	var out protocol.Envelope
	err := protocol.ReadFrame(&buf, &out)
	assert.Error(t, err)
}

func TestReadFrame_TruncatedBodyErrors(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	buf.Write(header[:])
	buf.WriteString("short")

	var out protocol.Envelope
	err := protocol.ReadFrame(&buf, &out)
	assert.Error(t, err)
}

func TestReadRawFrame_ReturnsUndecodedBytes(t *testing.T) {
	var buf bytes.Buffer
	env, err := protocol.NewEnvelope(1, protocol.RequestHealth, nil)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(&buf, env))

	raw, err := protocol.ReadRawFrame(&buf)
	require.NoError(t, err)

	var decoded protocol.Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, protocol.RequestHealth, decoded.Type)
}

func TestNewResponse_And_NewErrorResponse(t *testing.T) {
	ok := protocol.NewResponse(protocol.HealthPayload{Up: true, WorkerCount: 3})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	failed := protocol.NewErrorResponse(protocol.ErrNoneAvailable)
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "RCH-E200", failed.Error.Code)
}

func TestError_ImplementsErrorInterfaceWithCodeAndCategory(t *testing.T) {
	err := protocol.ErrAtCapacity
	assert.Contains(t, err.Error(), "RCH-E203")
	assert.Contains(t, err.Error(), string(protocol.CategoryWorker))
}

func TestError_WithContextMergesWithoutMutatingOriginal(t *testing.T) {
	base := protocol.ErrUnknownWorker
	withCtx := base.WithContext(map[string]any{"worker_id": "w1"})

	assert.Nil(t, base.Context)
	assert.Equal(t, "w1", withCtx.Context["worker_id"])
}
