// Package engine defines the persistence contract session databases are
// stored through.
//
// An Engine owns a namespace of databases identified by name. Each database
// holds the partitions listed in package partition. Engines that can list
// their databases implement Lister; the staleness scanner depends on it and
// degrades to a no-op without it.
//
// Implementations:
//
//   - engine/sqlite: one SQLite file per database (default)
//   - engine/redis: one hash per partition on a shared Redis server
//   - engine/memory: in-process maps, for tests and throwaway runs
package engine
