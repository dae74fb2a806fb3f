package obkv

import "context"

// queryPermits is the counting semaphore bounding concurrent active
// query stream RPCs (spec.md §5 "query_concurrency_limit (optional)
// caps concurrent active queries via a counting semaphore; a permit is
// held for the duration of a single stream RPC"). A zero-valued limit
// means unbounded: acquire never blocks.
type queryPermits struct {
	tokens chan struct{}
}

func newQueryPermits(limit int) *queryPermits {
	if limit <= 0 {
		return &queryPermits{}
	}
	return &queryPermits{tokens: make(chan struct{}, limit)}
}

// acquire blocks until a permit is available or ctx is done, returning a
// release func the caller must invoke exactly once. If the semaphore is
// unbounded, acquire returns immediately with a no-op release.
func (p *queryPermits) acquire(ctx context.Context) (func(), error) {
	if p.tokens == nil {
		return func() {}, nil
	}
	select {
	case p.tokens <- struct{}{}:
		return func() { <-p.tokens }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inUse returns the current number of held permits, sampled for the
// "query_permits in use" distribution metric (spec.md §7).
func (p *queryPermits) inUse() int {
	if p.tokens == nil {
		return 0
	}
	return len(p.tokens)
}
