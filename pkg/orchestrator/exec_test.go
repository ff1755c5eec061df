package orchestrator

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"
)

func TestShellQuote_EscapesEmbeddedQuote(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `''`, shellQuote(""))
}

func TestEnvPrefix_OnlyForwardsSetAllowedVars(t *testing.T) {
	t.Setenv("RCH_TEST_FOO", "bar")
	os.Unsetenv("RCH_TEST_MISSING")

	prefix := envPrefix([]string{"RCH_TEST_FOO", "RCH_TEST_MISSING"})

	assert.Contains(t, prefix, "export RCH_TEST_FOO='bar';")
	assert.NotContains(t, prefix, "RCH_TEST_MISSING")
}

func TestEnvPrefix_EmptyAllowlistIsEmptyString(t *testing.T) {
	assert.Equal(t, "", envPrefix(nil))
}

func TestExitCodeOf_NilIsZero(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(nil))
}

func TestExitCodeOf_ExitErrorReturnsStatus(t *testing.T) {
	err := &ssh.ExitError{Waitmsg: ssh.Waitmsg{}}
	assert.Equal(t, err.ExitStatus(), exitCodeOf(err))
}

func TestExitCodeOf_OtherErrorIsNegativeOne(t *testing.T) {
	assert.Equal(t, -1, exitCodeOf(errors.New("boom")))
}

// TestPosixSignalNumbers_MatchesShellConvention pins the table exitCodeOf
// uses to map a signal-killed remote process to 128+N: SIGKILL is signal 9,
// so a process killed by it reports exit 137, the exact boundary scenario
// spec.md §8 names.
func TestPosixSignalNumbers_MatchesShellConvention(t *testing.T) {
	assert.Equal(t, 9, posixSignalNumbers[string(ssh.SIGKILL)])
	assert.Equal(t, 128+9, 128+posixSignalNumbers[string(ssh.SIGKILL)])
	assert.Equal(t, 15, posixSignalNumbers[string(ssh.SIGTERM)])
	assert.Equal(t, 11, posixSignalNumbers[string(ssh.SIGSEGV)])
}
