package obkv

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// TableEntryKey identifies one table's metadata within a cluster.
type TableEntryKey struct {
	Cluster  string
	Tenant   string
	Database string
	Table    string
}

// NewRootServerKey returns the reserved key for the root-server's own
// catalog entry, which enumerates active observers (spec.md glossary
// "Root server").
func NewRootServerKey(cluster string) TableEntryKey {
	return TableEntryKey{Cluster: cluster, Table: "__all_server"}
}

func (k TableEntryKey) String() string {
	return fmt.Sprintf("%s.%s.%s.%s", k.Cluster, k.Tenant, k.Database, k.Table)
}

// DirectoryClient is the bootstrap directory service collaborator
// ("OCP manager", spec.md §1, §4.4) — out of scope. It yields the list
// of root-server addresses given a bootstrap URL.
type DirectoryClient interface {
	// LoadOCPModel loads the observer address list from url.
	// isInit is true only on the client's initial bootstrap (used to
	// discriminate cache-file read-through from a forced refresh,
	// spec.md §4.4).
	LoadOCPModel(ctx context.Context, url string, isInit bool) ([]ServerAddress, error)
}

// CatalogClient queries a single backend's internal catalog table for
// one table's metadata (spec.md §4.4, §4.5 "C5 Table-Entry Locator"
// collaborator). Parsing the catalog response into TableEntry fields is
// the wire codec's concern; CatalogClient is the seam this client's
// locator drives.
type CatalogClient interface {
	// FetchTableEntry loads the full TableEntry (schema, partition
	// info, replica locations) for key from backend.
	FetchTableEntry(ctx context.Context, backend ServerAddress, key TableEntryKey) (*TableEntry, error)

	// FetchTableLocation loads only the partition-location portion of
	// an existing entry — a cheaper refresh (spec.md §4.4
	// "load_table_location_with_priority").
	FetchTableLocation(ctx context.Context, backend ServerAddress, key TableEntryKey) (map[int64]PartitionLocation, error)
}

var errAllCandidatesFailed = errors.New("obkv: all candidate backends failed")

// locator drives C4/C5: loading the directory, and probing backends in
// priority order to resolve a TableEntry (spec.md §4.4).
type locator struct {
	directory DirectoryClient
	catalog   CatalogClient
	logger    Logger
}

// loadTableEntryWithPriority probes roster's members in order of
// descending priority. On a probe timeout it downgrades that member's
// priority; on success it upgrades it (spec.md §4.4, §11). priorityTo
// is the wall-clock window within which a failed backend's priority
// decay is retained before this call gives up entirely.
func (l *locator) loadTableEntryWithPriority(
	ctx context.Context,
	roster *ServerRoster,
	key TableEntryKey,
	connectTo, readTo, priorityTo time.Duration,
) (*TableEntry, ServerAddress, error) {
	deadline := time.Now().Add(priorityTo)
	candidates := roster.GetMembers()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	var lastErr error
	for _, addr := range candidates {
		if time.Now().After(deadline) {
			break
		}
		entry, err := l.probe(ctx, addr, key, connectTo, readTo)
		if err != nil {
			lastErr = err
			l.logger.Log(LogLevelWarn, "table entry probe failed, downgrading priority", "addr", addr, "err", err)
			roster.DecayMember(addr.Key(), decayedPriority(addr.Priority))
			continue
		}
		roster.DecayMember(addr.Key(), 0)
		return entry, addr, nil
	}
	if lastErr == nil {
		lastErr = errAllCandidatesFailed
	}
	return nil, ServerAddress{}, lastErr
}

// decayedPriority is the next priority a backend falls to after a
// failed probe: one step down, floored at -MaxPriority (spec.md §11).
func decayedPriority(current int64) int64 {
	next := current - 1
	if next < -MaxPriority {
		next = -MaxPriority
	}
	return next
}

// loadTableEntryRandomly is used for the root-server entry during
// bootstrap and full refresh: no priority history exists yet, so
// candidates are tried in random order (spec.md §4.4).
func (l *locator) loadTableEntryRandomly(
	ctx context.Context,
	addrs []ServerAddress,
	key TableEntryKey,
	connectTo, readTo time.Duration,
) (*TableEntry, error) {
	order := rand.Perm(len(addrs))
	var lastErr error
	for _, i := range order {
		entry, err := l.probe(ctx, addrs[i], key, connectTo, readTo)
		if err != nil {
			lastErr = err
			continue
		}
		return entry, nil
	}
	if lastErr == nil {
		lastErr = errAllCandidatesFailed
	}
	return nil, lastErr
}

// loadTableLocationWithPriority refreshes only the partition-location
// portion of entry (spec.md §4.4), leaving schema and partitioning
// scheme untouched.
func (l *locator) loadTableLocationWithPriority(
	ctx context.Context,
	roster *ServerRoster,
	key TableEntryKey,
	entry *TableEntry,
	connectTo, readTo time.Duration,
) (*TableEntry, error) {
	candidates := roster.GetMembers()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	var lastErr error
	for _, addr := range candidates {
		locCtx, cancel := context.WithTimeout(ctx, connectTo+readTo)
		locs, err := l.catalog.FetchTableLocation(locCtx, addr, key)
		cancel()
		if err != nil {
			lastErr = err
			roster.DecayMember(addr.Key(), decayedPriority(addr.Priority))
			continue
		}
		roster.DecayMember(addr.Key(), 0)
		next := *entry
		next.Locations = locs
		next.RefreshedAtMillis = nowMillis()
		return &next, nil
	}
	if lastErr == nil {
		lastErr = errAllCandidatesFailed
	}
	return nil, lastErr
}

func (l *locator) probe(ctx context.Context, addr ServerAddress, key TableEntryKey, connectTo, readTo time.Duration) (*TableEntry, error) {
	probeCtx, cancel := context.WithTimeout(ctx, connectTo+readTo)
	defer cancel()
	return l.catalog.FetchTableEntry(probeCtx, addr, key)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
