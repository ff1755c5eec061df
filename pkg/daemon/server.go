package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/cuemby/rch/pkg/log"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/types"
	"github.com/rs/zerolog"
)

// Server listens on a Unix domain socket and serves the daemon's request
// types over the pkg/protocol length-prefixed JSON framing. One goroutine
// per connection; a connection may carry many sequential requests (the
// hook driver sends exactly one and closes, a long-lived status client
// keeps the connection open).
type Server struct {
	socketPath string
	daemon     *Daemon
	logger     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server bound to socketPath, not yet listening.
func NewServer(socketPath string, d *Daemon) *Server {
	return &Server{
		socketPath: socketPath,
		daemon:     d,
		logger:     log.WithComponent("daemon.server"),
	}
}

// Start removes any stale socket file, binds the listener, and begins
// accepting connections in a background goroutine. Returns once bound.
func (s *Server) Start() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("daemon: removing stale socket: %w", err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("daemon: listening on %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(lis)

	s.logger.Info().Str("socket", s.socketPath).Msg("daemon listening")
	return nil
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	lis := s.listener
	s.mu.Unlock()
	if lis != nil {
		_ = lis.Close()
	}
	s.wg.Wait()
	_ = os.RemoveAll(s.socketPath)
}

func (s *Server) acceptLoop(lis net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		raw, err := protocol.ReadRawFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug().Err(err).Msg("connection read ended")
			}
			return
		}

		resp := s.dispatch(raw)
		if err := protocol.WriteFrame(conn, resp); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write response frame")
			return
		}
	}
}

// dispatch decodes one request envelope and runs it against the daemon,
// recovering from any panic at this boundary into a typed internal error
// per spec.md §2.3's error-handling design — the daemon never abandons a
// client without a response.
func (s *Server) dispatch(raw []byte) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("recovered panic handling request")
			resp = protocol.NewErrorResponse(protocol.ErrInternal)
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return protocol.NewErrorResponse(protocol.ErrProtocolDecode)
	}

	switch env.Type {
	case protocol.RequestSelectWorker:
		var req protocol.SelectWorkerRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return protocol.NewErrorResponse(protocol.ErrProtocolDecode)
		}
		payload, perr := s.daemon.SelectWorker(SelectRequest{
			RequiredRuntime:    req.RequiredRuntime,
			SlotsRequested:     req.SlotsRequested,
			ProjectFingerprint: req.ProjectFingerprint,
		})
		if perr != nil {
			return protocol.NewErrorResponse(perr)
		}
		return protocol.NewResponse(payload)

	case protocol.RequestReleaseReservation:
		var req protocol.ReleaseReservationRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return protocol.NewErrorResponse(protocol.ErrProtocolDecode)
		}
		if req.Outcome == "" {
			req.Outcome = types.OutcomeFailure
		}
		if perr := s.daemon.ReleaseReservation(req); perr != nil {
			return protocol.NewErrorResponse(perr)
		}
		return protocol.NewResponse(nil)

	case protocol.RequestProbe:
		var req protocol.ProbeRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return protocol.NewErrorResponse(protocol.ErrProtocolDecode)
		}
		payload, perr := s.daemon.Probe(req.WorkerID)
		if perr != nil {
			return protocol.NewErrorResponse(perr)
		}
		return protocol.NewResponse(payload)

	case protocol.RequestStatus:
		return protocol.NewResponse(s.daemon.Status())

	case protocol.RequestCancel:
		var req protocol.CancelRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return protocol.NewErrorResponse(protocol.ErrProtocolDecode)
		}
		if perr := s.daemon.Cancel(req); perr != nil {
			return protocol.NewErrorResponse(perr)
		}
		return protocol.NewResponse(nil)

	case protocol.RequestHealth:
		return protocol.NewResponse(s.daemon.Health())

	default:
		return protocol.NewErrorResponse(protocol.ErrUnknownRequestType)
	}
}
