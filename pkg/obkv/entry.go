package obkv

import "sync/atomic"

// PartInfo describes a table's partitioning scheme: level, and one
// descriptor per level (spec.md §3).
type PartInfo struct {
	Level PartitionLevel
	First PartDescriptor
	Sub   PartDescriptor
}

// TableEntry is an immutable metadata snapshot for one table. Readers
// obtain a reference and observe a consistent view for the duration of
// one operation; a refresh replaces the snapshot atomically rather than
// mutating it in place (spec.md §3).
type TableEntry struct {
	TableID   int64
	TableName string

	PartInfo PartInfo

	// Locations holds the replica set per partition id.
	Locations map[int64]PartitionLocation

	// RefreshedAtMillis is when this snapshot was built, ms since epoch.
	RefreshedAtMillis int64

	// RowKeyElement maps column name to ordinal for Normal-mode
	// partitioned tables, nil until add_row_key_element has been
	// called or the table is unpartitioned / HBase mode.
	RowKeyElement map[string]int32
}

// IsPartitioned reports whether this table has a non-trivial partition
// scheme.
func (e *TableEntry) IsPartitioned() bool {
	return e != nil && e.PartInfo.Level != PartitionLevelZero
}

// PartitionFor looks up the PartitionLocation for partID, if known.
func (e *TableEntry) PartitionFor(partID int64) (PartitionLocation, bool) {
	p, ok := e.Locations[partID]
	return p, ok
}

// entryHolder is an atomic, replaceable pointer to a TableEntry, used by
// the metadata cache (spec.md §4.7) to swap snapshots without locking
// readers.
type entryHolder struct {
	p atomic.Pointer[TableEntry]
}

func (h *entryHolder) load() *TableEntry       { return h.p.Load() }
func (h *entryHolder) store(e *TableEntry)     { h.p.Store(e) }

// RunningMode is the client's row-key column convention.
type RunningMode int8

const (
	// RunningModeNormal uses application-defined row-key columns,
	// registered via Client.AddRowKeyElement.
	RunningModeNormal RunningMode = iota
	// RunningModeHBase fixes the row-key columns to K, Q, T.
	RunningModeHBase
)

func (m RunningMode) String() string {
	if m == RunningModeHBase {
		return "HBase"
	}
	return "Normal"
}

// hbaseRowKeyElement is the fixed row-key ordinal map used in HBase
// mode (spec.md §3).
var hbaseRowKeyElement = map[string]int32{"K": 0, "Q": 1, "T": 2}
