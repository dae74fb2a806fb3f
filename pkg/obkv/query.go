package obkv

import (
	"context"
	"fmt"
	"time"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
	"github.com/dust1/obkv-table-client-go/pkg/obrpc"
)

// partitionTarget pairs a partition id with the backend currently
// serving it, the unit get_tables resolves a range into (spec.md §4.8).
type partitionTarget struct {
	partID int64
	handle *backendHandle
}

// getTables resolves [start, end] to one backend handle per covered
// partition (spec.md §4.8 "get_tables"). On roster drift — a leader
// address with no registered backend handle — it forces one metadata
// resync and retries the lookup for that partition exactly once before
// surfacing ErrNotFound.
func (e *executor) getTables(ctx context.Context, table string, start RowKey, startInclusive bool, end RowKey, endInclusive bool, refresh bool) ([]partitionTarget, error) {
	entry, err := e.meta.getOrRefreshTableEntry(ctx, table, refresh, true)
	if err != nil {
		return nil, fmt.Errorf("obkv: resolving table %q: %w", table, err)
	}

	partIDs, err := PartitionIDs(entry, start, startInclusive, end, endInclusive)
	if err != nil {
		return nil, err
	}

	targets := make([]partitionTarget, 0, len(partIDs))
	resynced := false
	for _, partID := range partIDs {
		handle, err := e.resolvePartitionHandle(entry, table, partID)
		if err != nil {
			if resynced {
				return nil, obkverr.ErrNotFound
			}
			if syncErr := e.meta.syncRefreshMetadata(ctx); syncErr != nil {
				return nil, fmt.Errorf("obkv: resyncing metadata: %w", syncErr)
			}
			entry, err = e.meta.getOrRefreshTableEntry(ctx, table, true, true)
			if err != nil {
				return nil, fmt.Errorf("obkv: re-resolving table %q: %w", table, err)
			}
			resynced = true
			handle, err = e.resolvePartitionHandle(entry, table, partID)
			if err != nil {
				return nil, obkverr.ErrNotFound
			}
		}
		targets = append(targets, partitionTarget{partID: partID, handle: handle})
	}
	return targets, nil
}

func (e *executor) resolvePartitionHandle(entry *TableEntry, table string, partID int64) (*backendHandle, error) {
	loc, ok := entry.PartitionFor(partID)
	if !ok {
		return nil, obkverr.NewPartitionError(fmt.Sprintf("no location for partition %d of table %q", partID, table))
	}
	leader, ok := loc.Leader()
	if !ok {
		return nil, obkverr.NewPartitionError(fmt.Sprintf("no active leader for partition %d of table %q", partID, table))
	}
	handle, ok := e.backends.get(leader.Addr)
	if !ok {
		return nil, fmt.Errorf("obkv: backend %s for table %q not registered", leader.Addr, table)
	}
	return handle, nil
}

// ScanOrder selects forward or reverse iteration for a TableQuery.
type ScanOrder int8

const (
	ScanForward ScanOrder = iota
	ScanBackward
)

// KeyRange is one inclusive/exclusive row-key range a TableQuery scans.
type KeyRange struct {
	Start          RowKey
	StartInclusive bool
	End            RowKey
	EndInclusive   bool
}

// TableQuery aggregates a range scan's parameters (spec.md §4.8).
type TableQuery struct {
	Table   string
	Ranges  []KeyRange
	Select  []string
	Limit   int64
	Offset  int64
	Order   ScanOrder
	Index   string
	Filter  string
	HFilter string
	Batch   int64
	Timeout time.Duration
	Entity  obrpc.EntityType
}

// execute resolves every range in q to a unique part_id → backend
// handle map and seeds a QueryStreamResult over it (spec.md §4.8
// "execute() resolves all ranges to a unique map ... then constructs a
// QueryStreamResult seeded with the expectant set").
func (q *TableQuery) execute(ctx context.Context, e *executor) (*QueryStreamResult, error) {
	seen := make(map[int64]struct{})
	var targets []partitionTarget
	for _, rg := range q.Ranges {
		got, err := e.getTables(ctx, q.Table, rg.Start, rg.StartInclusive, rg.End, rg.EndInclusive, false)
		if err != nil {
			return nil, err
		}
		for _, t := range got {
			if _, dup := seen[t.partID]; dup {
				continue
			}
			seen[t.partID] = struct{}{}
			targets = append(targets, t)
		}
	}
	return &QueryStreamResult{
		e:       e,
		query:   q,
		targets: targets,
	}, nil
}

// QueryStreamResult pulls a TableQuery's result rows one partition at a
// time (spec.md §4.8). Each call to Next issues at most one stream RPC,
// honoring the backend's "stream next" continuation frames within a
// partition before advancing to the next.
type QueryStreamResult struct {
	e     *executor
	query *TableQuery

	targets   []partitionTarget
	targetIdx int

	sessionID int64
	inStream  bool
}

// Next returns the next page of rows, or (nil, false, nil) once every
// partition's stream is exhausted.
func (s *QueryStreamResult) Next(ctx context.Context) (*obrpc.QueryResult, bool, error) {
	for {
		if !s.inStream {
			if s.targetIdx >= len(s.targets) {
				return nil, false, nil
			}
			s.sessionID = 0
		}

		target := s.targets[s.targetIdx]
		permRelease, permErr := s.acquirePermit(ctx)
		if permErr != nil {
			return nil, false, permErr
		}

		req := &obrpc.StreamRequest{Table: s.query.Table, PartID: target.partID, SessionID: s.sessionID}
		resp := &obrpc.QueryResult{}
		execErr := target.handle.executePayload(ctx, req, resp)
		permRelease()
		if execErr != nil {
			return nil, false, execErr
		}

		if resp.HasMore {
			s.inStream = true
			s.sessionID = resp.Header().SequenceID
		} else {
			s.inStream = false
			s.targetIdx++
		}
		return resp, true, nil
	}
}

func (s *QueryStreamResult) acquirePermit(ctx context.Context) (func(), error) {
	if s.e.permits == nil {
		return func() {}, nil
	}
	release, err := s.e.permits.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.e.cfg.registry.ObserveDistribution("query_permits", float64(s.e.permits.inUse()))
	return release, nil
}
