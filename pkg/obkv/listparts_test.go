package obkv

import "testing"

func TestListPartDescriptorGetPartID(t *testing.T) {
	values := map[string]int64{
		listTupleKey(RowKey{NewValue("east")}):  0,
		listTupleKey(RowKey{NewValue("west")}):  1,
		listTupleKey(RowKey{NewValue("north")}): 1,
	}
	d := NewListPartDescriptor(PartFuncList, values, 9, true)

	for _, tc := range []struct {
		region string
		want   int64
	}{
		{"east", 0},
		{"west", 1},
		{"north", 1},
		{"unknown", 9}, // falls through to default partition
	} {
		id, err := d.GetPartID(RowKey{NewValue(tc.region)})
		if err != nil {
			t.Fatalf("GetPartID(%q) error: %v", tc.region, err)
		}
		if id != tc.want {
			t.Errorf("GetPartID(%q) = %d, want %d", tc.region, id, tc.want)
		}
	}
}

func TestListPartDescriptorNullMatchesDefault(t *testing.T) {
	d := NewListPartDescriptor(PartFuncListColumns, map[string]int64{}, 3, true)
	id, err := d.GetPartID(RowKey{NewValue(nil)})
	if err != nil {
		t.Fatalf("GetPartID(null) error: %v", err)
	}
	if id != 3 {
		t.Errorf("GetPartID(null) = %d, want default partition 3", id)
	}
}
