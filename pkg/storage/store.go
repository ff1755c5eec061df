package storage

import "github.com/cuemby/rch/pkg/types"

// Store defines the interface for build-record persistence. A daemon is
// built with one Store and appends one record per reservation it releases.
type Store interface {
	// AppendBuildRecord inserts one record, evicting the oldest record(s)
	// if the ring is over capacity afterward.
	AppendBuildRecord(record *types.BuildRecord) error

	// ListBuildRecords returns records oldest-first, up to limit (0 means
	// no limit).
	ListBuildRecords(limit int) ([]*types.BuildRecord, error)

	// GetBuildRecord looks up one record by ID.
	GetBuildRecord(id string) (*types.BuildRecord, error)

	// Close releases the underlying database handle.
	Close() error
}
