package obkv

import (
	"context"
	"fmt"
	"time"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
	"github.com/dust1/obkv-table-client-go/pkg/obrpc"
)

// executor is C8's single-operation path: resolve a partition's current
// leader, send the request, and retry according to the error
// classification a failed attempt carries (spec.md §4.6).
type executor struct {
	meta     *metadataCache
	backends *backendRegistry
	cfg      *cfg
	logger   Logger
	permits  *queryPermits
}

// execute runs req against table, retrying up to cfg.rpcRetryLimit times
// on a retryable error (spec.md §4.6 steps 3-7):
//
//  1. route the request to its partition's current leader
//  2. send it; on success, reset table's continuous-failure counter
//  3. on failure, classify the error:
//     - obkverr.NeedRefreshTable triggers a non-blocking metadata
//       refresh so the next attempt re-routes around a stale leader
//     - obkverr.NeedRetry permits another attempt within the budget
//     - anything else fails immediately
//  4. a table whose continuous-failure counter reaches
//     runtimeContinuousFailureCeiling forces a blocking
//     getOrRefreshTableEntry on the next attempt regardless of the
//     per-error classification
func (e *executor) execute(ctx context.Context, table string, key RowKey, build func(partID int64) obrpc.Request, resp obrpc.Response) error {
	start := time.Now()
	counter := e.meta.failureCounter(table)
	limit := e.cfg.rpcRetryLimit
	if limit < 0 {
		limit = 0
	}

	var lastErr error
	for attempt := 0; attempt <= limit; attempt++ {
		forceBlocking := counter.Load() >= uint64(e.cfg.runtimeContinuousFailureCeiling)
		entry, err := e.meta.getOrRefreshTableEntry(ctx, table, forceBlocking, attempt == 0 || forceBlocking)
		if err != nil {
			lastErr = err
			if attempt < limit {
				e.backoff(ctx, attempt)
				continue
			}
			break
		}

		partID, rerr := PartitionID(entry, key)
		if rerr != nil {
			return rerr
		}
		loc, ok := entry.PartitionFor(partID)
		if !ok {
			lastErr = obkverr.NewPartitionError(fmt.Sprintf("no location for partition %d of table %q", partID, table))
			e.meta.invalidateTable(table)
			continue
		}
		leader, ok := loc.Leader()
		if !ok {
			lastErr = obkverr.NewPartitionError(fmt.Sprintf("no active leader for partition %d of table %q", partID, table))
			continue
		}
		handle, ok := e.backends.get(leader.Addr)
		if !ok {
			lastErr = fmt.Errorf("obkv: backend %s for table %q not registered", leader.Addr, table)
			continue
		}

		req := build(partID)
		req.SetPartitionID(partID)
		attemptErr := handle.executePayload(ctx, req, resp)
		if attemptErr == nil {
			counter.Store(0)
			e.cfg.registry.ObserveDuration(opKindFor(req), time.Since(start))
			return nil
		}

		lastErr = attemptErr
		counter.Add(1)
		e.cfg.registry.IncRetry(opKindFor(req))

		if obkverr.NeedRefreshTable(attemptErr) {
			e.meta.invalidateTable(table)
		}
		if attempt < limit {
			if !obkverr.NeedRetry(attemptErr) {
				break
			}
			e.backoff(ctx, attempt)
		}
	}

	e.cfg.registry.ObserveDuration("error", time.Since(start))
	return lastErr
}

func (e *executor) backoff(ctx context.Context, attempt int) {
	d := e.cfg.rpcRetryInterval * time.Duration(attempt+1)
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func opKindFor(req obrpc.Request) string {
	switch r := req.(type) {
	case *obrpc.OperationRequest:
		return opTypeName(r.Type)
	case *obrpc.BatchOperation:
		return "batch"
	case *obrpc.StreamRequest:
		return "query"
	default:
		return "unknown"
	}
}

func opTypeName(t obrpc.OpType) string {
	switch t {
	case obrpc.OpInsert:
		return "insert"
	case obrpc.OpUpdate:
		return "update"
	case obrpc.OpInsertOrUpdate:
		return "insert_or_update"
	case obrpc.OpReplace:
		return "replace"
	case obrpc.OpDelete:
		return "delete"
	case obrpc.OpGet:
		return "get"
	case obrpc.OpAppend:
		return "append"
	case obrpc.OpIncrement:
		return "increment"
	default:
		return "unknown"
	}
}
