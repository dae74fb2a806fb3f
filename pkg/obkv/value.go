package obkv

// Value is a single column or row-key element. The wire encoding of a
// Value is the codec's concern (out of scope, spec.md §1); this client
// only needs to carry values through routing and into opaque request
// payloads.
type Value struct {
	v any
}

// NewValue wraps v (nil, bool, int64, float64, string, or []byte) as a
// Value.
func NewValue(v any) Value { return Value{v: v} }

// Raw returns the wrapped Go value.
func (v Value) Raw() any { return v.v }

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.v == nil }

// RowKey is an ordered tuple of Value, one per row-key column, in the
// table's declared row-key column order.
type RowKey []Value

// Columns maps column name to Value for get/insert/update results and
// arguments.
type Columns map[string]Value
