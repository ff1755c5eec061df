package security

import (
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// IdentityConfig describes where to find the SSH identity material
// referenced by a Worker's CredentialRef.
type IdentityConfig struct {
	// User is the SSH login user; if empty the Worker's own User field is
	// used by callers.
	User string

	// CredentialRef selects the auth method: "agent", a private key path,
	// or "agent:<path>" to try the agent first and fall back to the key.
	CredentialRef string

	// Passphrase decrypts an encrypted private key file, if needed.
	Passphrase string

	// KnownHostsPath points at the known_hosts file used for host key
	// verification. Required; RCH never disables strict host checking.
	KnownHostsPath string
}

// BuildClientConfig resolves an IdentityConfig into an *ssh.ClientConfig
// ready to dial a worker.
func BuildClientConfig(cfg IdentityConfig) (*ssh.ClientConfig, error) {
	auth, err := resolveAuthMethod(cfg.CredentialRef, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("resolve credential %q: %w", cfg.CredentialRef, err)
	}

	hostKeyCallback, err := HostKeyCallback(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %q: %w", cfg.KnownHostsPath, err)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func resolveAuthMethod(ref, passphrase string) (ssh.AuthMethod, error) {
	switch {
	case ref == "agent":
		return agentAuthMethod()
	case strings.HasPrefix(ref, "agent:"):
		keyPath := strings.TrimPrefix(ref, "agent:")
		if method, err := agentAuthMethod(); err == nil {
			return method, nil
		}
		return keyFileAuthMethod(keyPath, passphrase)
	case ref != "":
		return keyFileAuthMethod(ref, passphrase)
	default:
		return nil, fmt.Errorf("empty credential reference")
	}
}

func agentAuthMethod() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("dial ssh-agent: %w", err)
	}
	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers), nil
}

func keyFileAuthMethod(path, passphrase string) (ssh.AuthMethod, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}
