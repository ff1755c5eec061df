/*
Package protocol defines the hook<->daemon wire protocol (spec.md §6.2): the
request/response message types, the closed RCH-Exxx error code space, and the
length-prefixed JSON framing used to carry them over the daemon's Unix domain
socket.

Framing is deliberately simple: each message is a big-endian uint32 byte
length followed by that many bytes of JSON. Both sides read exactly one
frame, decode it, and reply with exactly one frame — there is no streaming
and no multiplexing below the request/response pair. The hook driver is a
single in-flight request per process; the daemon serves many connections
concurrently but treats each one independently.
*/
package protocol
