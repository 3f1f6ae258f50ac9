// Package sessionstore manages the local key/value database of one meeting
// session for one user, and garbage-collects databases left behind by
// sessions that never tore down.
//
// # Lifecycle
//
// A Manager is created once per process and handed to every consumer:
//
//	m := sessionstore.New(eng, sessionstore.WithLogger(logger))
//	if err := m.Init(ctx, "room123", "userA"); err != nil {
//	    return err
//	}
//	defer m.Teardown(ctx)
//
// Init names the database "pnm-<session>-<user>", opens it in the background
// and starts a staleness scan. Calling Init again while a database is open is
// a no-op; switching sessions requires Teardown first. Close releases the
// handle but keeps the data for a later Init. Operations issued while
// the open is in flight wait for it. If the open fails, the error surfaces from
// the first operation that needs the handle.
//
// States:
//
//	Uninitialized --Init--> Opening --ok--> Open --Teardown/Close--> Closed --Init--> Opening
//	                           \--err--> Failed --Teardown--> Closed
//
// # Operations
//
//   - Put writes a JSON-encoded value and the metadata "lastAccessed"
//     timestamp in one transaction; failures are *StorageWriteError.
//   - Get returns ErrNotFound for a missing key or partition. A stored JSON
//     null is a value, not a miss.
//   - GetAll returns every value of a partition in no particular order.
//
// None of the operations retry. Concurrent Puts to the same key race and the
// last commit wins.
//
// # Staleness Scan
//
// Every Init scans for other "pnm-" databases, reads their lastAccessed
// timestamp and deletes those older than the retention window (6h by default)
// or with a missing or malformed timestamp. The current database is never
// touched. Failures on one candidate are logged and counted in the
// ScanReport handed to the ScanObserver; they never reach the Init caller.
// Engines without enumeration support make the scan a no-op.
package sessionstore
