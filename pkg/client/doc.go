/*
Package client provides a Go client for the daemon's Unix-socket protocol.

Where the teacher's client wrapped a gRPC+mTLS connection with high-level
resource methods (CreateService, ListNodes, ...), this client wraps a single
length-prefixed JSON connection (pkg/protocol) with the handful of RPCs the
hook driver and CLI subcommands actually need: SelectWorker,
ReleaseReservation, Probe, Status, Cancel, Health.

A Client holds one already-dialed connection and serializes requests against
it with a mutex — there is no connection pool to manage, since a single hook
invocation makes at most a couple of calls before exiting.

# Usage

	c, err := client.Dial(cfg.SocketPath, 250*time.Millisecond)
	if err != nil {
		// daemon unreachable: caller fails open
	}
	defer c.Close()

	reservation, err := c.SelectWorker(ctx, protocol.SelectWorkerRequest{...})
*/
package client
