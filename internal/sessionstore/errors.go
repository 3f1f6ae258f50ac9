// ABOUTME: Error values returned by the session store manager
// ABOUTME: Sentinels for lifecycle misuse plus the typed StorageWriteError

package sessionstore

import (
	"errors"
	"fmt"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/partition"
)

// ErrNotInitialized is returned by operations invoked before Init or after Teardown.
var ErrNotInitialized = errors.New("session store not initialized")

// ErrNotFound is returned when a key or partition does not exist.
var ErrNotFound = engine.ErrNotFound

// ErrInvalidIdentity is returned by Init for unusable session or user IDs.
var ErrInvalidIdentity = errors.New("invalid session identity")

// ErrEnumerationUnsupported marks scans on engines that cannot list databases.
var ErrEnumerationUnsupported = engine.ErrEnumerationUnsupported

// StorageWriteError reports a rejected Put. The partition may be unknown or
// the engine may have refused the transaction.
type StorageWriteError struct {
	Partition partition.Name
	Key       string
	Err       error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("writing %s/%s: %v", e.Partition, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}
