package obkv

import (
	"hash/fnv"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
)

// keyPartDescriptor implements KeyImplicit, KeyV2, and KeyV3
// partitioning: a schema-directed hash over normalized key bytes
// (spec.md §4.5). Unlike hash partitioning, the bytes hashed are
// normalized per-column (e.g. case folding for collated string
// columns) before hashing; normalize is supplied by the schema loader
// that built this descriptor from a TableEntry refresh.
type keyPartDescriptor struct {
	funcType   PartFuncType
	partCount  int64
	keyColumns []int32
	normalize  func(ordinal int32, v Value) []byte
}

// NewKeyPartDescriptor builds a KEY-family descriptor. normalize may be
// nil, in which case values are hashed via their raw representation.
func NewKeyPartDescriptor(funcType PartFuncType, partCount int64, keyColumns []int32, normalize func(int32, Value) []byte) PartDescriptor {
	return &keyPartDescriptor{funcType: funcType, partCount: partCount, keyColumns: keyColumns, normalize: normalize}
}

func (d *keyPartDescriptor) FuncType() PartFuncType { return d.funcType }

func (d *keyPartDescriptor) GetPartID(key RowKey) (int64, error) {
	h := fnv.New64a()
	for _, ord := range d.keyColumns {
		if int(ord) >= len(key) {
			return 0, obkverr.NewPartitionError("row key missing key-partition column")
		}
		v := key[ord]
		if v.IsNull() {
			return 0, obkverr.NewPartitionError("null row-key element is invalid for key partitioning")
		}
		if d.normalize != nil {
			h.Write(d.normalize(ord, v))
		} else {
			writeValueBytes(h, v)
		}
	}
	sum := h.Sum64()
	return int64(sum&^(1<<63)) % d.partCount, nil
}

func (d *keyPartDescriptor) GetPartIDs(start RowKey, startIncl bool, end RowKey, endIncl bool) ([]int64, error) {
	if rowKeyEqual(start, end) {
		id, err := d.GetPartID(start)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
	ids := make([]int64, d.partCount)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids, nil
}
