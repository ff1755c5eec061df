package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// runRemote runs cmd inside remoteRoot on an already-dialed SSH client,
// streaming stdout/stderr as they arrive. Only the env vars named in
// allowlist are forwarded, read from the orchestrator's own process
// environment rather than the caller's, since nothing upstream of this call
// should be able to smuggle arbitrary env vars onto a worker.
func runRemote(ctx context.Context, client *ssh.Client, remoteRoot, cmd string, allowlist []string, stdout, stderr io.Writer) (int, error) {
	session, err := client.NewSession()
	if err != nil {
		return -1, &PreExecutionFailure{Reason: fmt.Sprintf("open ssh session: %v", err)}
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	full := fmt.Sprintf("cd %s && %s%s", shellQuote(remoteRoot), envPrefix(allowlist), cmd)

	done := make(chan error, 1)
	go func() { done <- session.Start(full) }()

	select {
	case err := <-done:
		if err != nil {
			return -1, &PreExecutionFailure{Reason: fmt.Sprintf("start remote command: %v", err)}
		}
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return -1, &PreExecutionFailure{Reason: fmt.Sprintf("context done before remote command confirmed started: %v", ctx.Err())}
	}

	// Start has returned successfully, so the remote process is running:
	// any failure from here on is a PostExecutionFailure, never a plain
	// fail-open error.
	waitErr := make(chan error, 1)
	go func() { waitErr <- session.Wait() }()

	select {
	case err := <-waitErr:
		return exitCodeOf(err), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		sigErr := <-waitErr
		code := exitCodeOf(sigErr)
		return code, &PostExecutionFailure{
			PartialExitCode: code,
			Reason:          fmt.Sprintf("remote command exceeded its deadline after starting: %v", ctx.Err()),
		}
	}
}

// posixSignalNumbers maps the RFC 4254 §6.10 signal names ssh.Waitmsg.Signal
// reports to their POSIX signal numbers (Linux/x86, also the numbering every
// other mainstream POSIX platform shares for this subset), so a remote
// process killed by a signal maps to the same 128+N shells use for it.
var posixSignalNumbers = map[string]int{
	string(ssh.SIGHUP):  1,
	string(ssh.SIGINT):  2,
	string(ssh.SIGQUIT): 3,
	string(ssh.SIGILL):  4,
	string(ssh.SIGABRT): 6,
	string(ssh.SIGFPE):  8,
	string(ssh.SIGKILL): 9,
	string(ssh.SIGUSR1): 10,
	string(ssh.SIGSEGV): 11,
	string(ssh.SIGUSR2): 12,
	string(ssh.SIGPIPE): 13,
	string(ssh.SIGALRM): 14,
	string(ssh.SIGTERM): 15,
}

// exitCodeOf maps session.Wait's error into a process exit code, the same
// convention os/exec.ExitError uses: nil means 0. A remote process that
// died from a signal reports no exit status at all in Waitmsg — only a
// signal name — so that case maps to 128+N the way a local shell would
// report it, rather than falling through to ExitStatus's zero value.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if sig := exitErr.Signal(); sig != "" {
			if n, ok := posixSignalNumbers[sig]; ok {
				return 128 + n
			}
			return 128
		}
		return exitErr.ExitStatus()
	}
	return -1
}

// envPrefix builds a `export K=V; export K2=V2; ` prefix from the allowed
// env vars actually set in this process, skipping names that aren't set.
func envPrefix(allowlist []string) string {
	var b strings.Builder
	for _, name := range allowlist {
		val, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		b.WriteString("export ")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(shellQuote(val))
		b.WriteString("; ")
	}
	return b.String()
}

// shellQuote wraps s in single quotes, escaping any embedded single quote,
// so it can be interpolated into a remote shell command safely.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
