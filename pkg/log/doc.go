/*
Package log provides RCH's structured logging, built on zerolog.

A single global Logger is configured once via Init and then handed out to
callers either directly or through component-scoped child loggers
(WithComponent, WithWorkerID, WithReservationID, WithProjectFingerprint,
WithBuildID). Console output is human-readable for local development; JSON
output is for production, where log aggregation tooling expects one object
per line.

The daemon, hook driver, and orchestrator each create one component logger
at startup and thread it through; nothing reaches back into the global
Logger mid-request except the package-level helpers (Info, Warn, Error, ...)
used for startup/shutdown messages outside any request scope.
*/
package log
