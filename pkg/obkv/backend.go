package obkv

import (
	"context"
	"sync"
	"time"

	"github.com/dust1/obkv-table-client-go/pkg/obrpc"
)

// backendHandle wraps one backend's connection pool and exposes the two
// operations the execution engine needs (spec.md §4.3 C3).
type backendHandle struct {
	addr ServerAddress
	pool *connPool

	connectTimeout time.Duration
	readTimeout    time.Duration
}

// executePayload sends one request and awaits its response.
func (h *backendHandle) executePayload(ctx context.Context, req obrpc.Request, resp obrpc.Response) error {
	conn, err := h.pool.acquire(ctx, h.connectTimeout, h.readTimeout)
	if err != nil {
		return err
	}
	if err := conn.ExecutePayload(ctx, req, resp); err != nil {
		h.pool.discard(conn)
		return err
	}
	h.pool.release(conn)
	return nil
}

// executeBatch sends a batch tagged with a partition id and returns the
// per-op results.
func (h *backendHandle) executeBatch(ctx context.Context, tableName string, batch *obrpc.BatchOperation) ([]obrpc.OpResult, error) {
	batch.Table = tableName
	resp := &obrpc.BatchResult{}
	if err := h.executePayload(ctx, batch, resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// backendRegistry is the map backend-address -> backendHandle (spec.md
// §4.3). Mutations happen only on explicit first-use add and on the
// roster-reconciled retain during a metadata refresh (spec.md §4.7).
type backendRegistry struct {
	pools *poolRegistry
	cfg   *cfg

	mu       sync.RWMutex
	handles  map[addrKey]*backendHandle
}

func newBackendRegistry(pools *poolRegistry, c *cfg) *backendRegistry {
	return &backendRegistry{pools: pools, cfg: c, handles: make(map[addrKey]*backendHandle)}
}

func (r *backendRegistry) getOrAdd(addr ServerAddress, session authSession) *backendHandle {
	key := addr.Key()
	r.mu.RLock()
	h, ok := r.handles[key]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[key]; ok {
		return h
	}
	h = &backendHandle{
		addr:           addr,
		pool:           r.pools.getOrCreate(addr, session),
		connectTimeout: r.cfg.rpcConnectTimeout,
		readTimeout:    r.cfg.rpcReadTimeout,
	}
	r.handles[key] = h
	return h
}

func (r *backendRegistry) get(addr ServerAddress) (*backendHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[addr.Key()]
	return h, ok
}

// retain keeps only handles whose address is in active, matching the
// underlying pool registry's retention (spec.md §4.7 step e).
func (r *backendRegistry) retain(active map[addrKey]struct{}) {
	r.mu.Lock()
	for k := range r.handles {
		if _, ok := active[k]; !ok {
			delete(r.handles, k)
		}
	}
	r.mu.Unlock()
	r.pools.retain(active)
}

// keys returns the current set of backend addresses tracked.
func (r *backendRegistry) keys() map[addrKey]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[addrKey]struct{}, len(r.handles))
	for k := range r.handles {
		out[k] = struct{}{}
	}
	return out
}

func (r *backendRegistry) drain() {
	r.mu.Lock()
	r.handles = make(map[addrKey]*backendHandle)
	r.mu.Unlock()
	r.pools.closeAll()
}
