package storecommon

import (
	"github.com/mirrorworlds/worldmesh/world"
)

// WorldStorage is the backend interface of the persistence store. Backends
// are driven from the single storage goroutine, so implementations need not
// be safe for concurrent use.
type WorldStorage interface {
	// LoadAll reads every persisted world record with its settings, trust
	// list and spawn point. A bad row degrades to safe defaults, it never
	// fails the whole load.
	LoadAll() ([]*world.Record, error)
	// Save inserts the record when record.ID == -1, assigning the generated
	// id back onto the record, and updates it otherwise. The whole
	// multi-table write is atomic.
	Save(record *world.Record) error
	// Delete removes the world row; dependent rows go with it. Deleting an
	// unpersisted record is a no-op.
	Delete(record *world.Record) error
	// IsEOF checks if the error is a connection loss which warrants one
	// reconnect attempt
	IsEOF(err error) bool
	Close()
}
