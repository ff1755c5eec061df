/*
Package security resolves a worker's CredentialRef into the material the
transfer/execute orchestrator and health prober need to open an
authenticated SSH channel: a private key (or agent socket) and a
known_hosts-backed host key callback.

RCH has no certificate authority of its own and issues nothing — it trusts
whatever SSH identity and known_hosts file the operator has already set up
for the worker fleet (spec.md §1 Non-goals: "RCH does not manage or rotate
credentials"). CredentialRef is an opaque string resolved one of three ways,
selected by its form:

  - "agent" — use the running ssh-agent (SSH_AUTH_SOCK).
  - a path to a private key file, optionally passphrase-protected.
  - "agent:<path>" — prefer the agent, falling back to the key file.

StrictHostKeyChecking is always on: a worker whose host key isn't in the
configured known_hosts file fails closed rather than silently trusting an
unknown host.
*/
package security
