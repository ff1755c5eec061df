/*
Package hook implements the Hook Driver (H): the short-lived process the
agent's command-execution tool invokes once per candidate shell command.

H reads exactly one JSON request from stdin, consults the classifier, and —
unless the command passes straight through — talks to the daemon over
pkg/client to reserve a worker, hands the reservation to pkg/orchestrator,
and reports the outcome back to the agent on stdout. Every pre-execution
failure (parse error, daemon unreachable, no worker available, transfer
prelude failure) is swallowed into an "allow, run it locally" response —
RCH never blocks an agent's command on its own account. Only a failure that
happens after the remote process has actually started is reported back as a
denial, since by then the remote side may have side effects the agent must
not duplicate.

Run decides everything; main (cmd/rch hook) only wires stdin/stdout/stderr
and the process exit code.
*/
package hook
