package obkv

import "testing"

func TestValueIsNull(t *testing.T) {
	if !NewValue(nil).IsNull() {
		t.Error("NewValue(nil).IsNull() = false, want true")
	}
	for _, v := range []any{int64(0), "", false, []byte{}} {
		if NewValue(v).IsNull() {
			t.Errorf("NewValue(%#v).IsNull() = true, want false", v)
		}
	}
}

func TestValueRawRoundTrips(t *testing.T) {
	for _, v := range []any{int64(42), "hello", 3.14, []byte{1, 2, 3}, true, nil} {
		got := NewValue(v).Raw()
		switch want := v.(type) {
		case []byte:
			gb, ok := got.([]byte)
			if !ok || len(gb) != len(want) {
				t.Errorf("Raw() = %#v, want %#v", got, want)
				continue
			}
			for i := range want {
				if gb[i] != want[i] {
					t.Errorf("Raw()[%d] = %v, want %v", i, gb[i], want[i])
				}
			}
		default:
			if got != v {
				t.Errorf("Raw() = %#v, want %#v", got, v)
			}
		}
	}
}

func TestRowKeyAndColumns(t *testing.T) {
	rk := RowKey{NewValue(int64(1)), NewValue("a")}
	if len(rk) != 2 {
		t.Fatalf("len(RowKey) = %d, want 2", len(rk))
	}

	cols := Columns{"v": NewValue("x")}
	v, ok := cols["v"]
	if !ok || v.Raw() != "x" {
		t.Errorf("Columns[v] = %#v, ok=%v, want \"x\", true", v.Raw(), ok)
	}
	if _, ok := cols["missing"]; ok {
		t.Error("Columns[missing] reported ok=true for an absent key")
	}
}
