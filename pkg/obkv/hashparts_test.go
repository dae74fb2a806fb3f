package obkv

import "testing"

func TestHashPartDescriptorGetPartIDInRange(t *testing.T) {
	d := NewHashPartDescriptor(PartFuncHash, 16, []int32{0})
	for _, v := range []any{int64(1), int64(2), "abc", int64(-500)} {
		id, err := d.GetPartID(RowKey{NewValue(v)})
		if err != nil {
			t.Fatalf("GetPartID(%v) error: %v", v, err)
		}
		if id < 0 || id >= 16 {
			t.Errorf("GetPartID(%v) = %d, want in [0, 16)", v, id)
		}
	}
}

func TestHashPartDescriptorDeterministic(t *testing.T) {
	d := NewHashPartDescriptor(PartFuncHashV2, 8, []int32{0, 1})
	key := RowKey{NewValue(int64(42)), NewValue("row")}
	id1, err := d.GetPartID(key)
	if err != nil {
		t.Fatalf("GetPartID error: %v", err)
	}
	id2, err := d.GetPartID(key)
	if err != nil {
		t.Fatalf("GetPartID error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("GetPartID not deterministic: %d != %d", id1, id2)
	}
}

func TestHashPartDescriptorRejectsNull(t *testing.T) {
	d := NewHashPartDescriptor(PartFuncHash, 4, []int32{0})
	if _, err := d.GetPartID(RowKey{NewValue(nil)}); err == nil {
		t.Fatal("GetPartID with null row key element succeeded, want error")
	}
}

func TestHashPartDescriptorGetPartIDsDegenerate(t *testing.T) {
	d := NewHashPartDescriptor(PartFuncHash, 4, []int32{0})
	key := RowKey{NewValue(int64(7))}
	ids, err := d.GetPartIDs(key, true, key, true)
	if err != nil {
		t.Fatalf("GetPartIDs error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("GetPartIDs(start==end) returned %d ids, want 1", len(ids))
	}
}

func TestHashPartDescriptorGetPartIDsFullRangeEnumeratesAll(t *testing.T) {
	d := NewHashPartDescriptor(PartFuncHash, 5, []int32{0})
	start := RowKey{NewValue(int64(1))}
	end := RowKey{NewValue(int64(2))}
	ids, err := d.GetPartIDs(start, true, end, true)
	if err != nil {
		t.Fatalf("GetPartIDs error: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("GetPartIDs(non-degenerate range) returned %d ids, want 5 (every partition)", len(ids))
	}
}
