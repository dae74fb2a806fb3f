package obkv

import "testing"

func TestPartFuncFromInt32(t *testing.T) {
	for _, tc := range []struct {
		in   int32
		want PartFuncType
	}{
		{0, PartFuncHash},
		{1, PartFuncKey},
		{2, PartFuncKeyImplicit},
		{3, PartFuncRange},
		{4, PartFuncRangeColumns},
		{5, PartFuncList},
		{6, PartFuncKeyV2},
		{7, PartFuncListColumns},
		{8, PartFuncHashV2},
		{9, PartFuncKeyV3},
		{99, PartFuncUnknown},
		{-1, PartFuncUnknown},
	} {
		if got := PartFuncFromInt32(tc.in); got != tc.want {
			t.Errorf("PartFuncFromInt32(%d) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPartFuncClassifiers(t *testing.T) {
	for _, tc := range []struct {
		t                              PartFuncType
		hash, key, rng, list bool
	}{
		{PartFuncHash, true, false, false, false},
		{PartFuncHashV2, true, false, false, false},
		{PartFuncKeyImplicit, false, true, false, false},
		{PartFuncKeyV2, false, true, false, false},
		{PartFuncKeyV3, false, true, false, false},
		{PartFuncRange, false, false, true, false},
		{PartFuncRangeColumns, false, false, true, false},
		{PartFuncList, false, false, false, true},
		{PartFuncListColumns, false, false, false, true},
	} {
		if got := tc.t.IsHashPart(); got != tc.hash {
			t.Errorf("%v.IsHashPart() = %v, want %v", tc.t, got, tc.hash)
		}
		if got := tc.t.IsKeyPart(); got != tc.key {
			t.Errorf("%v.IsKeyPart() = %v, want %v", tc.t, got, tc.key)
		}
		if got := tc.t.IsRangePart(); got != tc.rng {
			t.Errorf("%v.IsRangePart() = %v, want %v", tc.t, got, tc.rng)
		}
		if got := tc.t.IsListPart(); got != tc.list {
			t.Errorf("%v.IsListPart() = %v, want %v", tc.t, got, tc.list)
		}
	}
}

func TestEncodeDecodePartID(t *testing.T) {
	for _, tc := range []struct{ first, sub int64 }{
		{0, 0},
		{1, 2},
		{1000, 7},
		{1<<20 - 1, 1<<20 - 1},
	} {
		id := EncodePartID(tc.first, tc.sub)
		if id&PartIDMask == 0 {
			t.Fatalf("EncodePartID(%d, %d) = %d did not set PartIDMask", tc.first, tc.sub, id)
		}
		gotFirst, gotSub := DecodePartID(id)
		if gotFirst != tc.first || gotSub != tc.sub {
			t.Errorf("DecodePartID(EncodePartID(%d, %d)) = (%d, %d), want (%d, %d)",
				tc.first, tc.sub, gotFirst, gotSub, tc.first, tc.sub)
		}
	}
}
