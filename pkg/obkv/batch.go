package obkv

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
	"github.com/dust1/obkv-table-client-go/pkg/obrpc"
)

// bucket is one partition's share of a batch: the ops routed to it, and
// their original index in the input so results can be flattened back
// into input order (spec.md §4.9 step 6 "preserving per-bucket order").
type bucket struct {
	partID  int64
	indices []int
	ops     []*obrpc.OperationRequest
}

// executeBatch implements C8's batch path (spec.md §4.9).
func (e *executor) executeBatch(ctx context.Context, table string, atomic bool, ops []*obrpc.OperationRequest, keys []RowKey) ([]obrpc.OpResult, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if len(ops) != len(keys) {
		return nil, fmt.Errorf("obkv: batch has %d ops but %d row keys", len(ops), len(keys))
	}

	return e.retryBatch(ctx, table, func() ([]obrpc.OpResult, error) {
		entry, err := e.meta.getOrRefreshTableEntry(ctx, table, false, true)
		if err != nil {
			return nil, fmt.Errorf("obkv: resolving table %q: %w", table, err)
		}

		buckets, err := e.bucketize(entry, ops, keys)
		if err != nil {
			return nil, err
		}

		if atomic && len(buckets) > 1 {
			return nil, obkverr.NewObException(obkverr.CodeInvalidPartition, "atomic batch spans more than one partition")
		}

		if len(buckets) == 1 {
			results, err := e.dispatchBucket(ctx, table, entry, buckets[0])
			if err != nil {
				return nil, err
			}
			return reorder(results, buckets[0].indices, len(ops)), nil
		}
		return e.dispatchBuckets(ctx, table, entry, buckets)
	})
}

// retryBatch wraps fn with the outer batch retry (spec.md §4.9: "outer
// retry wraps the whole batch, not per-bucket; on retry the batch is
// rebuilt from scratch").
func (e *executor) retryBatch(ctx context.Context, table string, fn func() ([]obrpc.OpResult, error)) ([]obrpc.OpResult, error) {
	counter := e.meta.failureCounter(table)
	limit := e.cfg.rpcRetryLimit
	if limit < 0 {
		limit = 0
	}

	var lastErr error
	for attempt := 0; attempt <= limit; attempt++ {
		results, err := fn()
		if err == nil {
			counter.Store(0)
			return results, nil
		}
		lastErr = err
		counter.Add(1)
		e.cfg.registry.IncRetry("batch")

		if obkverr.NeedRefreshTable(err) {
			e.meta.invalidateTable(table)
		}
		if obkverr.InvalidatesAtomicBatch(err) {
			return nil, err
		}
		if attempt < limit && obkverr.NeedRetry(err) {
			e.backoff(ctx, attempt)
			continue
		}
		break
	}
	return nil, lastErr
}

// bucketize groups ops by the partition each op's row key resolves to
// under entry's scheme (spec.md §4.9 steps 1-2).
func (e *executor) bucketize(entry *TableEntry, ops []*obrpc.OperationRequest, keys []RowKey) ([]*bucket, error) {
	byPart := make(map[int64]*bucket)
	var order []int64
	for i, key := range keys {
		partID, err := PartitionID(entry, key)
		if err != nil {
			return nil, err
		}
		b, ok := byPart[partID]
		if !ok {
			b = &bucket{partID: partID}
			byPart[partID] = b
			order = append(order, partID)
		}
		b.indices = append(b.indices, i)
		b.ops = append(b.ops, ops[i])
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	buckets := make([]*bucket, len(order))
	for i, partID := range order {
		buckets[i] = byPart[partID]
	}
	return buckets, nil
}

// dispatchBucket sends one bucket's ops as a single BatchOperation
// (spec.md §4.9 step 4 "fast path").
func (e *executor) dispatchBucket(ctx context.Context, table string, entry *TableEntry, b *bucket) ([]obrpc.OpResult, error) {
	loc, ok := entry.PartitionFor(b.partID)
	if !ok {
		return nil, obkverr.NewPartitionError(fmt.Sprintf("no location for partition %d of table %q", b.partID, table))
	}
	leader, ok := loc.Leader()
	if !ok {
		return nil, obkverr.NewPartitionError(fmt.Sprintf("no active leader for partition %d of table %q", b.partID, table))
	}
	handle, ok := e.backends.get(leader.Addr)
	if !ok {
		return nil, fmt.Errorf("obkv: backend %s for table %q not registered", leader.Addr, table)
	}

	req := &obrpc.BatchOperation{Table: table, PartID: b.partID, Ops: b.ops}
	results, err := handle.executeBatch(ctx, table, req)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// dispatchBuckets submits one job per bucket to table's batch-op worker
// pool, waits for all, then flattens results back into input order
// (spec.md §4.9 step 6 "slow path").
func (e *executor) dispatchBuckets(ctx context.Context, table string, entry *TableEntry, buckets []*bucket) ([]obrpc.OpResult, error) {
	pool := e.meta.batchPool(table)

	total := 0
	for _, b := range buckets {
		total += len(b.ops)
	}
	flat := make([]obrpc.OpResult, total)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, b := range buckets {
		b := b
		wg.Add(1)
		pool.submit(func() {
			defer wg.Done()
			results, err := e.dispatchBucket(ctx, table, entry, b)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for i, idx := range b.indices {
				flat[idx] = results[i]
			}
		})
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return flat, nil
}

// reorder places results (returned in bucket-local order) back at their
// original input indices.
func reorder(results []obrpc.OpResult, indices []int, n int) []obrpc.OpResult {
	out := make([]obrpc.OpResult, n)
	for i, idx := range indices {
		if i < len(results) {
			out[idx] = results[i]
		}
	}
	return out
}
