package obkv

import (
	"hash/fnv"
	"math"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
)

// hashPartDescriptor implements HASH and HashV2 partitioning: an integer
// hash of the concatenated key columns, modulo the partition count
// (spec.md §4.5).
type hashPartDescriptor struct {
	funcType   PartFuncType
	partCount  int64
	keyColumns []int32 // ordinals into the row key this descriptor hashes
}

// NewHashPartDescriptor builds a descriptor for partCount hash
// partitions over the given row-key ordinals.
func NewHashPartDescriptor(funcType PartFuncType, partCount int64, keyColumns []int32) PartDescriptor {
	return &hashPartDescriptor{funcType: funcType, partCount: partCount, keyColumns: keyColumns}
}

func (d *hashPartDescriptor) FuncType() PartFuncType { return d.funcType }

func (d *hashPartDescriptor) GetPartID(key RowKey) (int64, error) {
	h := fnv.New64a()
	for _, ord := range d.keyColumns {
		if int(ord) >= len(key) {
			return 0, obkverr.NewPartitionError("row key missing hash-partition column")
		}
		v := key[ord]
		if v.IsNull() {
			return 0, obkverr.NewPartitionError("null row-key element is invalid for hash partitioning")
		}
		writeValueBytes(h, v)
	}
	sum := h.Sum64()
	// Mask off the sign bit so the modulo is never negative.
	return int64(sum&^(1<<63)) % d.partCount, nil
}

func (d *hashPartDescriptor) GetPartIDs(start RowKey, startIncl bool, end RowKey, endIncl bool) ([]int64, error) {
	if rowKeyEqual(start, end) {
		id, err := d.GetPartID(start)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
	// Hash partitioning has no ordering relationship to the key, so any
	// non-degenerate range must enumerate every partition.
	ids := make([]int64, d.partCount)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids, nil
}

func rowKeyEqual(a, b RowKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Raw() != b[i].Raw() {
			return false
		}
	}
	return true
}

func writeValueBytes(h interface{ Write([]byte) (int, error) }, v Value) {
	switch t := v.Raw().(type) {
	case string:
		h.Write([]byte(t))
	case []byte:
		h.Write(t)
	case int64:
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(t >> (8 * i))
		}
		h.Write(buf[:])
	case float64:
		bits := math.Float64bits(t)
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf[:])
	case bool:
		if t {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
}
