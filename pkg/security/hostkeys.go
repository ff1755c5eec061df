package security

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyCallback builds a strict host key callback from a known_hosts
// file. A worker whose host key isn't present fails the dial rather than
// being trusted on first use — RCH never manages host key trust for the
// operator.
func HostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return nil, fmt.Errorf("known_hosts path is required")
	}
	if _, err := os.Stat(knownHostsPath); err != nil {
		return nil, fmt.Errorf("stat known_hosts: %w", err)
	}
	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}
