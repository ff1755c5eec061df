/*
Package orchestrator implements the Transfer/Execute Orchestrator: it takes a
granted reservation and a classified command, and turns that into a remote
build.

The pipeline mirrors the "connect, sync, run, report" shape the teacher's
worker package uses to drive a container through its lifecycle, adapted from
containerd primitives to a plain SSH/SFTP round trip:

  1. Dial the worker over SSH (pkg/security resolves the credential, the
     worker's own known_hosts entry pins the host key).
  2. Sync the project tree to the worker over SFTP, skipping files whose
     content hash matches what is already there (pkg/orchestrator/sync.go).
  3. Run the command remotely inside the synced tree, streaming stdout/stderr
     back as they arrive (pkg/orchestrator/exec.go).
  4. Fetch back any output matching the decision's artifact patterns
     (pkg/orchestrator/fetch.go).

Bandwidth is capped with golang.org/x/time/rate, and file uploads in the
sync phase run concurrently under a golang.org/x/sync/semaphore-bounded
pool; artifact fetches run one file at a time. Orchestrate itself is what
pkg/hook calls after a reservation is granted. A non-nil error means RCH
should fail open and let the command run locally, unless it is (or wraps) a
*PostExecutionFailure, in which case the remote command already started and
local re-execution must be denied.
*/
package orchestrator
