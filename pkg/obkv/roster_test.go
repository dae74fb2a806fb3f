package obkv

import "testing"

func TestServerRosterResetZeroesMaxPriority(t *testing.T) {
	r := &ServerRoster{}
	r.Reset([]ServerAddress{{Host: "a", SvrPort: 1, Priority: 5}, {Host: "b", SvrPort: 2, Priority: -3}})
	if got := r.MaxPriority(); got != 0 {
		t.Fatalf("MaxPriority after Reset = %d, want 0", got)
	}
	if got := len(r.GetMembers()); got != 2 {
		t.Fatalf("len(GetMembers()) = %d, want 2", got)
	}
}

func TestServerRosterDowngradeUpgrade(t *testing.T) {
	r := &ServerRoster{}
	r.Reset([]ServerAddress{{Host: "a", SvrPort: 1}, {Host: "b", SvrPort: 2}})

	r.DowngradeMaxPriority(-1)
	if got := r.MaxPriority(); got != 0 {
		t.Fatalf("MaxPriority after single downgrade = %d, want 0 (other member still at 0)", got)
	}

	r.UpgradeMaxPriority(0)
	if got := r.MaxPriority(); got != 0 {
		t.Fatalf("MaxPriority after upgrade to 0 = %d, want 0", got)
	}
}

func TestServerRosterMaxPriorityClamped(t *testing.T) {
	r := &ServerRoster{}
	r.Reset(nil)
	r.maxPriority.Store(MaxPriority + 100)
	if got := r.MaxPriority(); got != MaxPriority {
		t.Errorf("MaxPriority() = %d, want clamp to %d", got, MaxPriority)
	}
	r.maxPriority.Store(-MaxPriority - 100)
	if got := r.MaxPriority(); got != -MaxPriority {
		t.Errorf("MaxPriority() = %d, want clamp to %d", got, -MaxPriority)
	}
}

func TestServerRosterPeekRandomServerEmpty(t *testing.T) {
	r := &ServerRoster{}
	if _, ok := r.PeekRandomServer(); ok {
		t.Fatal("PeekRandomServer on empty roster returned ok=true")
	}
}
