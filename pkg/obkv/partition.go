package obkv

import "github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"

// PartDescriptor computes partition ids for one level of a table's
// partitioning scheme (spec.md §4.5).
type PartDescriptor interface {
	// FuncType reports which partitioning function this descriptor
	// implements.
	FuncType() PartFuncType

	// GetPartID returns the partition id a single row key maps to.
	GetPartID(key RowKey) (int64, error)

	// GetPartIDs returns the ordered set of partition ids covering the
	// inclusive/exclusive range [start, end].
	GetPartIDs(start RowKey, startInclusive bool, end RowKey, endInclusive bool) ([]int64, error)
}

// PartitionID computes the partition id a row key maps to under entry's
// partitioning scheme (spec.md §4.5).
func PartitionID(entry *TableEntry, key RowKey) (int64, error) {
	if entry == nil || !entry.IsPartitioned() {
		return 0, nil
	}
	switch entry.PartInfo.Level {
	case PartitionLevelZero:
		return 0, nil
	case PartitionLevelOne:
		if entry.PartInfo.First == nil {
			return 0, obkverr.NewPartitionError("missing first-part descriptor")
		}
		return entry.PartInfo.First.GetPartID(key)
	case PartitionLevelTwo:
		if entry.PartInfo.First == nil || entry.PartInfo.Sub == nil {
			return 0, obkverr.NewPartitionError("missing first or sub part descriptor for two-level table")
		}
		id1, err := entry.PartInfo.First.GetPartID(key)
		if err != nil {
			return 0, obkverr.NewPartitionError("first-part resolution failed: " + err.Error())
		}
		id2, err := entry.PartInfo.Sub.GetPartID(key)
		if err != nil {
			return 0, obkverr.NewPartitionError("sub-part resolution failed: " + err.Error())
		}
		return EncodePartID(id1, id2), nil
	default:
		return 0, obkverr.NewPartitionError("unknown partition level")
	}
}

// PartitionIDs computes the ordered set of partition ids covering the
// row-key range [start, end] under entry's partitioning scheme (spec.md
// §4.5). Level-two tables are not supported for range resolution.
func PartitionIDs(entry *TableEntry, start RowKey, startInclusive bool, end RowKey, endInclusive bool) ([]int64, error) {
	if entry == nil || !entry.IsPartitioned() || entry.PartInfo.Level == PartitionLevelZero {
		return []int64{0}, nil
	}
	switch entry.PartInfo.Level {
	case PartitionLevelOne:
		if entry.PartInfo.First == nil {
			return nil, obkverr.NewPartitionError("missing first-part descriptor")
		}
		return entry.PartInfo.First.GetPartIDs(start, startInclusive, end, endInclusive)
	case PartitionLevelTwo:
		return nil, obkverr.ErrUnsupportedPartitionLevelTwo
	default:
		return nil, obkverr.NewPartitionError("unknown partition level")
	}
}
