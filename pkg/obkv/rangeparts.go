package obkv

import (
	"sort"

	"github.com/twmb/go-rbtree"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
)

// rangeBound is one partition's upper-bound tuple, ordered by Compare.
// Bounds are inserted into an rbtree and kept in a parallel sorted
// slice. Both the point lookup (a ceiling search over upper bounds) and
// the contiguous range-slice lookup binary-search the sorted slice; the
// tree is built but not queried by either lookup.
type rangeBound struct {
	rbtree.Node
	upper  RowKey
	partID int64
}

// Less implements rbtree.Item, ordering bounds lexicographically over
// their upper-bound tuples.
func (b *rangeBound) Less(than rbtree.Item) bool {
	return compareRowKey(b.upper, than.(*rangeBound).upper) < 0
}

func compareRowKey(a, b RowKey) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareValue(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareValue(a, b Value) int {
	switch av := a.Raw().(type) {
	case int64:
		bv := b.Raw().(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv := b.Raw().(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.Raw().(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// rangePartDescriptor implements RANGE and RangeColumns partitioning: an
// ordered array of upper-bound tuples (spec.md §4.5). Point lookup is a
// ceiling search over upper bounds; range lookup returns the contiguous
// slice of partitions covering [start, end], honoring inclusivity.
type rangePartDescriptor struct {
	funcType PartFuncType
	tree     *rbtree.Tree
	sorted   []*rangeBound // ascending by upper bound, parallels tree contents
}

// NewRangePartDescriptor builds a descriptor from bounds, which must
// list each partition's upper-bound row-key tuple and partition id. The
// final bound conventionally carries the "maxvalue" sentinel partition.
func NewRangePartDescriptor(funcType PartFuncType, bounds []struct {
	Upper  RowKey
	PartID int64
}) PartDescriptor {
	d := &rangePartDescriptor{funcType: funcType, tree: new(rbtree.Tree)}
	for _, b := range bounds {
		n := &rangeBound{upper: b.Upper, partID: b.PartID}
		d.tree.Insert(n)
		d.sorted = append(d.sorted, n)
	}
	sort.Slice(d.sorted, func(i, j int) bool {
		return compareRowKey(d.sorted[i].upper, d.sorted[j].upper) < 0
	})
	return d
}

func (d *rangePartDescriptor) FuncType() PartFuncType { return d.funcType }

// ceiling returns the index of the first bound in d.sorted whose upper
// bound is >= key (the partition key routes to), or len(d.sorted) if
// key exceeds every bound (callers should not see this for well-formed
// entries, since the last bound is the maxvalue sentinel).
func (d *rangePartDescriptor) ceiling(key RowKey) int {
	return sort.Search(len(d.sorted), func(i int) bool {
		return compareRowKey(d.sorted[i].upper, key) >= 0
	})
}

func (d *rangePartDescriptor) GetPartID(key RowKey) (int64, error) {
	for _, v := range key {
		if v.IsNull() {
			return 0, obkverr.NewPartitionError("null row-key element is invalid for range partitioning")
		}
	}
	i := d.ceiling(key)
	if i >= len(d.sorted) {
		return 0, obkverr.NewPartitionError("row key exceeds the highest range partition bound")
	}
	return d.sorted[i].partID, nil
}

func (d *rangePartDescriptor) GetPartIDs(start RowKey, startIncl bool, end RowKey, endIncl bool) ([]int64, error) {
	lo := d.ceiling(start)
	if !startIncl && lo < len(d.sorted) && compareRowKey(d.sorted[lo].upper, start) == 0 {
		lo++
	}
	hi := d.ceiling(end)
	if hi >= len(d.sorted) {
		hi = len(d.sorted) - 1
	}
	if lo > hi {
		lo = hi
	}
	ids := make([]int64, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		ids = append(ids, d.sorted[i].partID)
	}
	_ = endIncl // the ceiling bound is already inclusive of end's own partition
	return ids, nil
}
