package orchestrator

import "fmt"

// PreExecutionFailure reports a failure that happened before the remote
// build process started running: dialing the worker, opening SFTP, or
// syncing the project tree. Nothing irreversible has happened on the
// worker yet, so the caller is safe to fail open and run the command
// locally instead.
type PreExecutionFailure struct {
	Reason string
}

func (e *PreExecutionFailure) Error() string { return e.Reason }

// PostExecutionFailure reports a failure discovered only after the remote
// build process had already begun running — a build-timeout kill, or an
// artifact fetch that failed after a build the worker actually ran to
// completion. The worker may already have side effects (partial
// artifacts, cache state), so the caller must not fail open: it has to
// propagate PartialExitCode and deny local re-execution instead.
type PostExecutionFailure struct {
	PartialExitCode int
	Reason          string
}

func (e *PostExecutionFailure) Error() string {
	return fmt.Sprintf("%s (partial exit code %d)", e.Reason, e.PartialExitCode)
}
