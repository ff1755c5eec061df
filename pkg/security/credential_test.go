package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/assert"
)

func TestResolveAuthMethod_EmptyRefErrors(t *testing.T) {
	_, err := resolveAuthMethod("", "")
	assert.Error(t, err)
}

func TestResolveAuthMethod_AgentWithoutSockErrors(t *testing.T) {
	old := os.Getenv("SSH_AUTH_SOCK")
	os.Unsetenv("SSH_AUTH_SOCK")
	defer os.Setenv("SSH_AUTH_SOCK", old)

	_, err := resolveAuthMethod("agent", "")
	assert.Error(t, err)
}

func TestResolveAuthMethod_KeyFileMissingErrors(t *testing.T) {
	_, err := resolveAuthMethod(filepath.Join(t.TempDir(), "does-not-exist"), "")
	assert.Error(t, err)
}

func TestResolveAuthMethod_AgentPrefixFallsBackToKeyFile(t *testing.T) {
	old := os.Getenv("SSH_AUTH_SOCK")
	os.Unsetenv("SSH_AUTH_SOCK")
	defer os.Setenv("SSH_AUTH_SOCK", old)

	// No agent and no valid key at the fallback path: the error should come
	// from the key file stage, proving the fallback was attempted rather
	// than the function short-circuiting on the agent failure.
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")

	_, err := resolveAuthMethod("agent:"+keyPath, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key")
}

func TestHostKeyCallback_MissingFileErrors(t *testing.T) {
	_, err := HostKeyCallback(filepath.Join(t.TempDir(), "no_such_known_hosts"))
	assert.Error(t, err)
}

func TestHostKeyCallback_EmptyPathErrors(t *testing.T) {
	_, err := HostKeyCallback("")
	assert.Error(t, err)
}

func TestHostKeyCallback_EmptyFileParsesWithNoEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(path, []byte{}, 0600))

	cb, err := HostKeyCallback(path)
	require.NoError(t, err)
	assert.NotNil(t, cb)
}
