package orchestrator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/security"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// dialWorker opens an SSH connection to a reservation's worker, the same
// dial-then-handshake shape pkg/health's SSHChecker uses for probing, now
// kept open for the sync/exec/fetch phases instead of closed after one
// command.
func dialWorker(ctx context.Context, conn protocol.ConnectionInfo, knownHostsPath string, dialTimeout time.Duration) (*ssh.Client, error) {
	clientCfg, err := security.BuildClientConfig(security.IdentityConfig{
		User:           conn.User,
		CredentialRef:  conn.CredentialRef,
		KnownHostsPath: knownHostsPath,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve credential: %w", err)
	}
	clientCfg.Timeout = dialTimeout

	address := conn.Host
	port := conn.Port
	if port == 0 {
		port = 22
	}
	address = fmt.Sprintf("%s:%d", conn.Host, port)

	dialer := net.Dialer{Timeout: dialTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: tcp dial %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, address, clientCfg)
	if err != nil {
		_ = tcpConn.Close()
		return nil, fmt.Errorf("orchestrator: ssh handshake: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// newSFTPClient opens an SFTP session over an already-dialed SSH client.
func newSFTPClient(client *ssh.Client) (*sftp.Client, error) {
	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open sftp session: %w", err)
	}
	return sc, nil
}
