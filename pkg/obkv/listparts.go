package obkv

import "strconv"

// listPartDescriptor implements LIST and ListColumns partitioning: an
// explicit mapping from a value tuple to a partition id, with a default
// partition for unmatched values (spec.md §4.5).
type listPartDescriptor struct {
	funcType    PartFuncType
	values      map[string]int64 // canonical tuple key -> partition id
	defaultPart int64
	hasDefault  bool
}

// NewListPartDescriptor builds a descriptor from an explicit value ->
// partition id mapping. GetPartID returns defaultPart for any row key
// whose tuple is not present in values, whatever hasDefault says;
// hasDefault is consulted only by GetPartIDs.
func NewListPartDescriptor(funcType PartFuncType, values map[string]int64, defaultPart int64, hasDefault bool) PartDescriptor {
	return &listPartDescriptor{funcType: funcType, values: values, defaultPart: defaultPart, hasDefault: hasDefault}
}

func (d *listPartDescriptor) FuncType() PartFuncType { return d.funcType }

func (d *listPartDescriptor) GetPartID(key RowKey) (int64, error) {
	// A null-containing row key is not an error for LIST partitioning:
	// it matches the default partition (spec.md §4.5 edge case).
	tupleKey := listTupleKey(key)
	if id, ok := d.values[tupleKey]; ok {
		return id, nil
	}
	return d.defaultPart, nil
}

func (d *listPartDescriptor) GetPartIDs(start RowKey, startIncl bool, end RowKey, endIncl bool) ([]int64, error) {
	if rowKeyEqual(start, end) {
		id, err := d.GetPartID(start)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
	// LIST partitioning has no total order, so any non-degenerate range
	// must enumerate every known partition plus the default.
	seen := make(map[int64]struct{}, len(d.values)+1)
	ids := make([]int64, 0, len(d.values)+1)
	for _, id := range d.values {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if d.hasDefault {
		if _, ok := seen[d.defaultPart]; !ok {
			ids = append(ids, d.defaultPart)
		}
	}
	return ids, nil
}

func listTupleKey(key RowKey) string {
	var b []byte
	for _, v := range key {
		if v.IsNull() {
			b = append(b, 0)
			continue
		}
		switch t := v.Raw().(type) {
		case string:
			b = append(b, []byte(t)...)
		case []byte:
			b = append(b, t...)
		default:
			b = append(b, []byte(stringifyAny(t))...)
		}
		b = append(b, '\x1f')
	}
	return string(b)
}

func stringifyAny(v any) string {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
