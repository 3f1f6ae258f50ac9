// Package partition enumerates the named partitions every session database
// carries. The set is part of the on-disk schema: renaming a partition
// without a migration orphans the data stored under the old name.
package partition
