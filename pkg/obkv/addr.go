package obkv

import "fmt"

// MaxPriority bounds the signed priority a ServerAddress can report
// through Clamp (spec.md §3, §4.1).
const MaxPriority = 50

// ServerAddress identifies a backend observer. Equality and hashing are
// over (Host, SvrPort) only: SQLPort and Priority are mutable metadata,
// not part of identity.
type ServerAddress struct {
	Host    string
	SvrPort int32
	SQLPort int32

	// Priority is mutated externally by the locator in response to
	// failed or successful probes (spec.md §4.4, §11).
	Priority int64
}

// Key returns the identity tuple used for map keys and equality.
func (a ServerAddress) Key() addrKey {
	return addrKey{a.Host, a.SvrPort}
}

type addrKey struct {
	host    string
	svrPort int32
}

func (a ServerAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.SvrPort)
}

// Clamp returns a's priority bounded to [-MaxPriority, +MaxPriority].
func (a ServerAddress) Clamp() int64 {
	p := a.Priority
	switch {
	case p < -MaxPriority:
		return -MaxPriority
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}

// ReplicaRole is the role of a replica within a partition.
type ReplicaRole int8

const (
	RoleUnknown ReplicaRole = iota
	RoleLeader
	RoleFollower
)

// ReplicaStatus is the operational status of a replica.
type ReplicaStatus int8

const (
	StatusUnknown ReplicaStatus = iota
	StatusActive
	StatusInactive
)

// ReplicaLocation pins one replica of a partition to a backend address.
type ReplicaLocation struct {
	Addr     ServerAddress
	Role     ReplicaRole
	Status   ReplicaStatus
	StopTime int64
}

// IsActive reports whether this replica can serve traffic: operational
// status and a zero stop time (spec.md §3).
func (r ReplicaLocation) IsActive() bool {
	return r.Status == StatusActive && r.StopTime == 0
}

// PartitionLocation is the set of replicas serving one partition id.
type PartitionLocation struct {
	PartID   int64
	Replicas []ReplicaLocation
}

// Leader returns the current leader replica for this partition, if any.
func (p PartitionLocation) Leader() (ReplicaLocation, bool) {
	for _, r := range p.Replicas {
		if r.Role == RoleLeader && r.IsActive() {
			return r, true
		}
	}
	return ReplicaLocation{}, false
}
