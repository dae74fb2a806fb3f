package obkv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
)

// metadataCache is C7: table-name -> TableEntry, with a per-table mutex
// guarding refreshes, and the singleton roster+observer refresh
// (spec.md §4.7).
type metadataCache struct {
	cfg *cfg

	roster    *ServerRoster
	backends  *backendRegistry
	locator   *locator
	directory DirectoryClient
	session   authSession
	rootKey   TableEntryKey

	entriesMu sync.RWMutex
	entries   map[string]*entryHolder

	tableMuMu sync.RWMutex
	tableMus  map[string]*sync.Mutex

	rowKeyMu sync.RWMutex
	rowKeys  map[string]map[string]int32

	failuresMu sync.RWMutex
	failures   map[string]*atomic.Uint64

	batchPoolsMu sync.RWMutex
	batchPools   map[string]*workerPool

	refreshMetadataMu    sync.Mutex
	lastRefreshMetadata  atomic.Int64 // ms since epoch

	refreshContinuousFailures atomic.Int64
}

func newMetadataCache(c *cfg, roster *ServerRoster, backends *backendRegistry, loc *locator, dir DirectoryClient, session authSession, rootKey TableEntryKey) *metadataCache {
	return &metadataCache{
		cfg:        c,
		roster:     roster,
		backends:   backends,
		locator:    loc,
		directory:  dir,
		session:    session,
		rootKey:    rootKey,
		entries:    make(map[string]*entryHolder),
		tableMus:   make(map[string]*sync.Mutex),
		rowKeys:    make(map[string]map[string]int32),
		failures:   make(map[string]*atomic.Uint64),
		batchPools: make(map[string]*workerPool),
	}
}

func (m *metadataCache) tableMutex(table string) *sync.Mutex {
	m.tableMuMu.RLock()
	mu, ok := m.tableMus[table]
	m.tableMuMu.RUnlock()
	if ok {
		return mu
	}
	m.tableMuMu.Lock()
	defer m.tableMuMu.Unlock()
	if mu, ok := m.tableMus[table]; ok {
		return mu
	}
	mu = &sync.Mutex{}
	m.tableMus[table] = mu
	return mu
}

func (m *metadataCache) cached(table string) (*TableEntry, bool) {
	m.entriesMu.RLock()
	h, ok := m.entries[table]
	m.entriesMu.RUnlock()
	if !ok {
		return nil, false
	}
	e := h.load()
	return e, e != nil
}

// store swaps table's entry snapshot atomically, creating its holder on
// first use (spec.md §3 "immutable metadata snapshot").
func (m *metadataCache) store(table string, e *TableEntry) {
	m.entriesMu.RLock()
	h, ok := m.entries[table]
	m.entriesMu.RUnlock()
	if !ok {
		m.entriesMu.Lock()
		if h, ok = m.entries[table]; !ok {
			h = &entryHolder{}
			m.entries[table] = h
		}
		m.entriesMu.Unlock()
	}
	h.store(e)
}

// refreshInterval computes the dynamic per-entry refresh interval
// (spec.md §4.7): base * 2^(-maxPriority), capped at ceiling. A cluster
// with down-prioritized servers (negative maxPriority) refreshes less
// often; a positive maxPriority shortens the interval, floored at one
// millisecond.
func (m *metadataCache) refreshInterval() time.Duration {
	p := m.roster.MaxPriority()
	base := m.cfg.tableEntryRefreshIntervalBase
	var interval time.Duration
	switch {
	case p >= 0:
		shift := uint(p)
		if shift > 62 {
			shift = 62
		}
		interval = base >> shift
		if interval <= 0 {
			interval = time.Millisecond
		}
	default:
		shift := uint(-p)
		if shift > 62 {
			shift = 62
		}
		interval = base << shift
	}
	if ceiling := m.cfg.tableEntryRefreshIntervalCeiling; interval > ceiling {
		interval = ceiling
	}
	return interval
}

func (m *metadataCache) stale(e *TableEntry) bool {
	age := time.Duration(nowMillis()-e.RefreshedAtMillis) * time.Millisecond
	return age >= m.refreshInterval()
}

// getOrRefreshTableEntry is the heart of C7 (spec.md §4.7).
func (m *metadataCache) getOrRefreshTableEntry(ctx context.Context, table string, refresh, blocking bool) (*TableEntry, error) {
	if e, ok := m.cached(table); ok && (!refresh || !m.stale(e)) {
		return e, nil
	}

	mu := m.tableMutex(table)
	if blocking {
		mu.Lock()
		defer mu.Unlock()
	} else {
		if !mu.TryLock() {
			return nil, obkverr.ErrLocked
		}
		defer mu.Unlock()
	}

	if e, ok := m.cached(table); ok && (!refresh || !m.stale(e)) {
		return e, nil
	}

	tries := m.cfg.tableEntryRefreshTryTimes
	if n := len(m.roster.GetMembers()); n > 0 && n < tries {
		tries = n
	}
	if tries < 1 {
		tries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(m.cfg.tableEntryRefreshTryInterval * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		entry, err := m.fetchEntry(ctx, table)
		if err == nil {
			m.store(table, entry)
			m.refreshContinuousFailures.Store(0)
			return entry, nil
		}
		lastErr = err

		if m.refreshContinuousFailures.Add(1) >= int64(m.cfg.tableEntryRefreshContinuousFailureCeiling) {
			m.syncRefreshMetadata(ctx)
			m.refreshContinuousFailures.Store(0)
		}
	}

	m.syncRefreshMetadata(ctx)
	entry, err := m.fetchEntry(ctx, table)
	if err != nil {
		if lastErr != nil {
			return nil, fmt.Errorf("obkv: refreshing table entry for %q: %w (last: %v)", table, err, lastErr)
		}
		return nil, fmt.Errorf("obkv: refreshing table entry for %q: %w", table, err)
	}
	m.store(table, entry)
	return entry, nil
}

func (m *metadataCache) fetchEntry(ctx context.Context, table string) (*TableEntry, error) {
	key := TableEntryKey{
		Cluster:  m.cfg.clusterName,
		Tenant:   m.session.tenant,
		Database: m.session.database,
		Table:    table,
	}
	entry, _, err := m.locator.loadTableEntryWithPriority(
		ctx, m.roster, key,
		m.cfg.tableEntryAcquireConnectTimeout,
		m.cfg.tableEntryAcquireReadTimeout,
		m.cfg.serverAddressPriorityTimeout,
	)
	if err != nil {
		return nil, err
	}

	if rk, ok := m.getRowKeyElement(table); ok {
		entry.RowKeyElement = rk
	}
	return entry, nil
}

// syncRefreshMetadata reloads the observer roster from the directory
// client and reconciles the backend handle registry (spec.md §4.7).
func (m *metadataCache) syncRefreshMetadata(ctx context.Context) error {
	interval := m.cfg.metadataRefreshInterval
	if time.Duration(nowMillis()-m.lastRefreshMetadata.Load())*time.Millisecond < interval {
		return nil
	}

	m.refreshMetadataMu.Lock()
	defer m.refreshMetadataMu.Unlock()

	if time.Duration(nowMillis()-m.lastRefreshMetadata.Load())*time.Millisecond < interval {
		return nil
	}

	addrs, err := m.directory.LoadOCPModel(ctx, m.cfg.paramURL, m.lastRefreshMetadata.Load() == 0)
	if err != nil {
		return fmt.Errorf("obkv: loading directory: %w", err)
	}

	rootEntry, err := m.locator.loadTableEntryRandomly(ctx, addrs, m.rootKey,
		m.cfg.rslistAcquireTimeout, m.cfg.tableEntryAcquireReadTimeout)
	if err != nil {
		return fmt.Errorf("obkv: loading root server entry: %w", err)
	}

	active := make(map[addrKey]struct{})
	var activeAddrs []ServerAddress
	for _, loc := range rootEntry.Locations {
		for _, r := range loc.Replicas {
			if r.IsActive() {
				if _, seen := active[r.Addr.Key()]; !seen {
					active[r.Addr.Key()] = struct{}{}
					activeAddrs = append(activeAddrs, r.Addr)
					m.backends.getOrAdd(r.Addr, m.session)
				}
			}
		}
	}

	m.backends.retain(active)
	m.roster.Reset(activeAddrs)
	m.lastRefreshMetadata.Store(nowMillis())
	return nil
}

// invalidateTable removes every cached artifact for table (spec.md
// §4.7 "invalidate_table").
func (m *metadataCache) invalidateTable(table string) {
	mu := m.tableMutex(table)
	mu.Lock()
	m.entriesMu.Lock()
	delete(m.entries, table)
	m.entriesMu.Unlock()
	mu.Unlock()

	m.rowKeyMu.Lock()
	delete(m.rowKeys, table)
	m.rowKeyMu.Unlock()

	m.failuresMu.Lock()
	delete(m.failures, table)
	m.failuresMu.Unlock()

	m.tableMuMu.Lock()
	delete(m.tableMus, table)
	m.tableMuMu.Unlock()

	m.batchPoolsMu.Lock()
	if p, ok := m.batchPools[table]; ok {
		delete(m.batchPools, table)
		p.close()
	}
	m.batchPoolsMu.Unlock()
}

// addRowKeyElement registers cols as table's row-key ordinal map.
// Idempotent: the first call wins (spec.md §8 property 5).
func (m *metadataCache) addRowKeyElement(table string, cols []string) {
	m.rowKeyMu.Lock()
	defer m.rowKeyMu.Unlock()
	if _, ok := m.rowKeys[table]; ok {
		return
	}
	mapped := make(map[string]int32, len(cols))
	for i, c := range cols {
		mapped[c] = int32(i)
	}
	m.rowKeys[table] = mapped
}

func (m *metadataCache) getRowKeyElement(table string) (map[string]int32, bool) {
	m.rowKeyMu.RLock()
	defer m.rowKeyMu.RUnlock()
	rk, ok := m.rowKeys[table]
	return rk, ok
}

// failureCounter returns (creating if necessary) table's continuous
// failure counter.
func (m *metadataCache) failureCounter(table string) *atomic.Uint64 {
	m.failuresMu.RLock()
	c, ok := m.failures[table]
	m.failuresMu.RUnlock()
	if ok {
		return c
	}
	m.failuresMu.Lock()
	defer m.failuresMu.Unlock()
	if c, ok := m.failures[table]; ok {
		return c
	}
	c = &atomic.Uint64{}
	m.failures[table] = c
	return c
}

// batchPool returns (creating if necessary) table's batch-operation
// worker pool, sized table_batch_op_thread_num (spec.md §4.9).
func (m *metadataCache) batchPool(table string) *workerPool {
	m.batchPoolsMu.RLock()
	p, ok := m.batchPools[table]
	m.batchPoolsMu.RUnlock()
	if ok {
		return p
	}
	m.batchPoolsMu.Lock()
	defer m.batchPoolsMu.Unlock()
	if p, ok := m.batchPools[table]; ok {
		return p
	}
	p = newWorkerPool(m.cfg.tableBatchOpThreadNum)
	m.batchPools[table] = p
	return p
}

// tableNames snapshots every table name currently tracked, used by the
// scheduled refresher (spec.md §4.10).
func (m *metadataCache) tableNames() []string {
	m.entriesMu.RLock()
	defer m.entriesMu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}
