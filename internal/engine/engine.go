// ABOUTME: Storage engine interfaces shared by the sqlite, redis and memory backends
// ABOUTME: Declares Engine, Handle, Lister, Record and the sentinel errors

package engine

import (
	"context"
	"errors"

	"github.com/2389/pnm-localstore/internal/partition"
)

// ErrNotFound is returned when a key does not exist in a partition.
var ErrNotFound = errors.New("not found")

// ErrUnknownPartition is returned when a write targets a partition outside the registry.
var ErrUnknownPartition = errors.New("unknown partition")

// ErrEnumerationUnsupported is returned by engines that cannot list databases.
var ErrEnumerationUnsupported = errors.New("database enumeration unsupported")

// ErrClosed is returned when a handle is used after Close.
var ErrClosed = errors.New("handle closed")

// Record is a single key/value pair destined for a partition.
type Record struct {
	Partition partition.Name
	Key       string
	Value     []byte
}

// Engine opens and deletes named databases.
type Engine interface {
	// Open creates the database at partition.SchemaVersion if needed and
	// returns a handle to it. Opening an up-to-date database changes nothing.
	Open(ctx context.Context, name string) (Handle, error)

	// Delete removes the database. Deleting a missing database is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases engine-wide resources.
	Close() error
}

// Lister is implemented by engines that can enumerate their databases.
type Lister interface {
	// List returns the names of all databases starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Handle is an open database.
type Handle interface {
	Name() string

	// Write stores all records in a single all-or-nothing transaction.
	Write(ctx context.Context, records ...Record) error

	// Get returns the value under key, or ErrNotFound.
	Get(ctx context.Context, p partition.Name, key string) ([]byte, error)

	// GetAll returns every value in the partition in no particular order.
	// Unknown and empty partitions yield an empty slice.
	GetAll(ctx context.Context, p partition.Name) ([][]byte, error)

	Close() error
}

// CheckRecords rejects records addressed to partitions outside the registry.
func CheckRecords(records []Record) error {
	for _, r := range records {
		if !partition.Known(r.Partition) {
			return ErrUnknownPartition
		}
	}
	return nil
}

// ListNames lists databases when e supports it and returns
// ErrEnumerationUnsupported otherwise.
func ListNames(ctx context.Context, e Engine, prefix string) ([]string, error) {
	l, ok := e.(Lister)
	if !ok {
		return nil, ErrEnumerationUnsupported
	}
	return l.List(ctx, prefix)
}
