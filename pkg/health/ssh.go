package health

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHChecker performs health checks by dialing a worker over SSH and
// running a lightweight command. A healthy exit (status 0) is the strongest
// available signal that the worker can actually accept a build.
type SSHChecker struct {
	// Address is the worker's SSH address ("host:22").
	Address string

	// ClientConfig carries the auth method resolved by pkg/security for
	// this worker's credential reference.
	ClientConfig *ssh.ClientConfig

	// Command is the probe command to run (default: "true").
	Command string

	// Timeout bounds the dial + session round trip.
	Timeout time.Duration
}

// NewSSHChecker creates an SSH health checker for a worker.
func NewSSHChecker(address string, clientConfig *ssh.ClientConfig) *SSHChecker {
	return &SSHChecker{
		Address:      address,
		ClientConfig: clientConfig,
		Command:      "true",
		Timeout:      5 * time.Second,
	}
}

// Check performs the SSH health check.
func (s *SSHChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := net.Dialer{Timeout: s.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("tcp dial failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	cfg := *s.ClientConfig
	cfg.Timeout = s.Timeout
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.Address, &cfg)
	if err != nil {
		_ = conn.Close()
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("ssh handshake failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("session open failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(s.Command) }()

	select {
	case <-ctx.Done():
		return Result{
			Healthy:   false,
			Message:   "probe cancelled: " + ctx.Err().Error(),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	case err := <-done:
		if err != nil {
			msg := fmt.Sprintf("probe command failed: %v", err)
			if stderr.Len() > 0 {
				msg = fmt.Sprintf("%s, stderr: %s", msg, stderr.String())
			}
			return Result{
				Healthy:   false,
				Message:   msg,
				CheckedAt: start,
				Duration:  time.Since(start),
			}
		}
		return Result{
			Healthy:   true,
			Message:   "ssh probe ok",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
}

// Type returns the health check type.
func (s *SSHChecker) Type() CheckType {
	return CheckTypeSSH
}

// WithCommand overrides the probe command.
func (s *SSHChecker) WithCommand(cmd string) *SSHChecker {
	s.Command = cmd
	return s
}

// WithTimeout overrides the dial+session timeout.
func (s *SSHChecker) WithTimeout(timeout time.Duration) *SSHChecker {
	s.Timeout = timeout
	return s
}
