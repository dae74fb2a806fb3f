package obkv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dust1/obkv-table-client-go/pkg/obkv/obkverr"
	"github.com/dust1/obkv-table-client-go/pkg/obrpc"
)

type clientStatus int32

const (
	statusUninitialized clientStatus = iota
	statusInitialized
	statusClosed
)

// Client is the public façade (spec.md §6 C11): every row operation,
// batch, query, and administrative call a caller makes goes through it.
// A Client is safe for concurrent use from any number of goroutines.
type Client struct {
	cfg cfg

	roster    *ServerRoster
	pools     *poolRegistry
	backends  *backendRegistry
	meta      *metadataCache
	locator   *locator
	exec      *executor
	refresher *refresher

	rootKey TableEntryKey

	statusMu sync.Mutex
	status   atomic.Int32
}

// New builds a Client from opts. Malformed connection parameters
// (blank param URL, missing database= parameter, malformed full user
// name, a missing required collaborator) panic immediately — these are
// builder-time programmer errors, not runtime conditions (spec.md §7).
// The returned Client is not yet connected: call Init to bootstrap the
// root-server roster and start the scheduled refresher.
func New(opts ...Opt) (*Client, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	session := authSession{
		tenant:   c.tenantName,
		user:     c.userName,
		database: c.database,
		password: c.password,
	}

	roster := &ServerRoster{}
	pools := newPoolRegistry(c.connInitThreadNum, c.minIdleConnsPerServer, c.maxConnsPerServer, c.dial, c.login)
	backends := newBackendRegistry(pools, &c)
	loc := &locator{directory: c.directory, catalog: c.catalog, logger: c.logger}
	rootKey := NewRootServerKey(c.clusterName)
	meta := newMetadataCache(&c, roster, backends, loc, c.directory, session, rootKey)

	permits := newQueryPermits(c.queryConcurrencyLimit)
	exec := &executor{meta: meta, backends: backends, cfg: &c, logger: c.logger, permits: permits}

	cl := &Client{
		cfg:      c,
		roster:   roster,
		pools:    pools,
		backends: backends,
		meta:     meta,
		locator:  loc,
		exec:     exec,
		rootKey:  rootKey,
	}
	cl.refresher = newRefresher(meta, c.logger, c.tableEntryRefreshIntervalBase, c.tableEntryRefreshIntervalCeiling)
	return cl, nil
}

// Init bootstraps the root-server roster from the directory client,
// loads every active backend into the pool/handle registries, and
// starts the scheduled refresher (spec.md §4.10). Init is idempotent:
// calling it again after a successful Init is a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if clientStatus(c.status.Load()) != statusUninitialized {
		return nil
	}

	if err := c.meta.syncRefreshMetadata(ctx); err != nil {
		return fmt.Errorf("obkv: initializing client: %w", err)
	}
	for _, addr := range c.roster.GetMembers() {
		c.backends.getOrAdd(addr, authSession{
			tenant:   c.cfg.tenantName,
			user:     c.cfg.userName,
			database: c.cfg.database,
			password: c.cfg.password,
		})
	}

	c.refresher.start()
	c.status.Store(int32(statusInitialized))
	return nil
}

// IsInitialized reports whether Init has completed successfully.
func (c *Client) IsInitialized() bool {
	return clientStatus(c.status.Load()) == statusInitialized
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	return clientStatus(c.status.Load()) == statusClosed
}

// RunningMode returns the client's configured row-key convention.
func (c *Client) RunningMode() RunningMode { return c.cfg.runningMode }

// Close drains every backend connection pool and stops the scheduled
// refresher (spec.md §7 "Shutdown"). Close is idempotent.
func (c *Client) Close() error {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if clientStatus(c.status.Load()) == statusClosed {
		return nil
	}
	c.status.Store(int32(statusClosed))
	c.refresher.close()
	c.backends.drain()
	return nil
}

func (c *Client) checkOpen() error {
	switch clientStatus(c.status.Load()) {
	case statusUninitialized:
		return obkverr.ErrNotInitialized
	case statusClosed:
		return obkverr.ErrAlreadyClosed
	default:
		return nil
	}
}

// AddRowKeyElement registers table's row-key column order for
// Normal-mode partitioned tables. The first call for a given table
// wins; later calls are no-ops (spec.md §6).
func (c *Client) AddRowKeyElement(table string, columns []string) {
	if c.cfg.runningMode == RunningModeHBase {
		return
	}
	c.meta.addRowKeyElement(table, columns)
}

// InvalidateTable drops every cached artifact for table, forcing the
// next operation to refresh its metadata from scratch (spec.md §4.7).
func (c *Client) InvalidateTable(table string) {
	c.meta.invalidateTable(table)
}

func (c *Client) doOp(ctx context.Context, table string, op obrpc.OpType, rowKey RowKey, columns Columns) (*obrpc.OperationResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	resp := &obrpc.OperationResult{}
	err := c.exec.execute(ctx, table, rowKey, func(partID int64) obrpc.Request {
		return &obrpc.OperationRequest{
			Table:   table,
			Type:    op,
			Entity:  c.entityType(),
			RowKey:  rawRowKey(rowKey),
			Columns: rawColumns(columns),
		}
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) entityType() obrpc.EntityType {
	if c.cfg.runningMode == RunningModeHBase {
		return obrpc.EntityHKV
	}
	return obrpc.EntityDynamic
}

// Insert inserts a new row, failing if the row key already exists.
func (c *Client) Insert(ctx context.Context, table string, rowKey RowKey, columns Columns) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpInsert, rowKey, columns)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// Update updates an existing row, failing if the row key does not exist.
func (c *Client) Update(ctx context.Context, table string, rowKey RowKey, columns Columns) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpUpdate, rowKey, columns)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// InsertOrUpdate inserts the row if absent, or updates it if present.
func (c *Client) InsertOrUpdate(ctx context.Context, table string, rowKey RowKey, columns Columns) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpInsertOrUpdate, rowKey, columns)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// Replace replaces the row at row key wholesale, creating it if absent.
func (c *Client) Replace(ctx context.Context, table string, rowKey RowKey, columns Columns) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpReplace, rowKey, columns)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// Append appends value to the named columns (string/bytes columns
// only); the row is created if absent.
func (c *Client) Append(ctx context.Context, table string, rowKey RowKey, columns Columns) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpAppend, rowKey, columns)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// Increment adds the given delta to the named numeric columns; the row
// is created (seeded at 0) if absent.
func (c *Client) Increment(ctx context.Context, table string, rowKey RowKey, columns Columns) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpIncrement, rowKey, columns)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// Delete removes the row at row key.
func (c *Client) Delete(ctx context.Context, table string, rowKey RowKey) (int64, error) {
	resp, err := c.doOp(ctx, table, obrpc.OpDelete, rowKey, nil)
	if err != nil {
		return 0, err
	}
	return resp.AffectedRows, nil
}

// Get reads the named columns (nil selects every column) for the row at
// row key.
func (c *Client) Get(ctx context.Context, table string, rowKey RowKey, selectColumns []string) (Columns, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	resp := &obrpc.OperationResult{}
	req := &obrpc.OperationRequest{
		Table:   table,
		Type:    obrpc.OpGet,
		Entity:  c.entityType(),
		RowKey:  rawRowKey(rowKey),
		Columns: selectColumnsToColumns(selectColumns),
	}
	err := c.exec.execute(ctx, table, rowKey, func(partID int64) obrpc.Request { return req }, resp)
	if err != nil {
		return nil, err
	}
	return wrapColumns(resp.Columns), nil
}

// Batch accumulates single-row operations for a single ExecuteBatch
// call (spec.md §6 "batch_operation(hint) → Batch").
type Batch struct {
	atomic bool
	ops    []*obrpc.OperationRequest
	keys   []RowKey
}

// BatchOperation returns a new, empty Batch, sized to hint as a
// capacity hint for its op slice.
func (c *Client) BatchOperation(hint int) *Batch {
	if hint < 0 {
		hint = 0
	}
	return &Batch{ops: make([]*obrpc.OperationRequest, 0, hint), keys: make([]RowKey, 0, hint)}
}

// Atomic marks the batch as requiring single-partition atomicity;
// ExecuteBatch fails the whole batch if its ops span more than one
// partition (spec.md §4.9 invariant 5).
func (b *Batch) Atomic(v bool) *Batch { b.atomic = v; return b }

func (b *Batch) add(op obrpc.OpType, entity obrpc.EntityType, rowKey RowKey, columns Columns) *Batch {
	b.ops = append(b.ops, &obrpc.OperationRequest{
		Type:    op,
		Entity:  entity,
		RowKey:  rawRowKey(rowKey),
		Columns: rawColumns(columns),
	})
	b.keys = append(b.keys, rowKey)
	return b
}

func (b *Batch) Insert(rowKey RowKey, columns Columns) *Batch {
	return b.add(obrpc.OpInsert, obrpc.EntityDynamic, rowKey, columns)
}
func (b *Batch) Update(rowKey RowKey, columns Columns) *Batch {
	return b.add(obrpc.OpUpdate, obrpc.EntityDynamic, rowKey, columns)
}
func (b *Batch) InsertOrUpdate(rowKey RowKey, columns Columns) *Batch {
	return b.add(obrpc.OpInsertOrUpdate, obrpc.EntityDynamic, rowKey, columns)
}
func (b *Batch) Replace(rowKey RowKey, columns Columns) *Batch {
	return b.add(obrpc.OpReplace, obrpc.EntityDynamic, rowKey, columns)
}
func (b *Batch) Delete(rowKey RowKey) *Batch {
	return b.add(obrpc.OpDelete, obrpc.EntityDynamic, rowKey, nil)
}
func (b *Batch) Get(rowKey RowKey, selectColumns []string) *Batch {
	return b.add(obrpc.OpGet, obrpc.EntityDynamic, rowKey, selectColumnsAsColumns(selectColumns))
}

// ExecuteBatch sends b against table, bucketing its ops by partition
// (spec.md §4.9).
func (c *Client) ExecuteBatch(ctx context.Context, table string, b *Batch) ([]obrpc.OpResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	for _, op := range b.ops {
		op.Table = table
	}
	return c.exec.executeBatch(ctx, table, b.atomic, b.ops, b.keys)
}

// Query returns a new TableQuery scoped to table.
func (c *Client) Query(table string) *TableQuery {
	return &TableQuery{Table: table, Entity: c.entityType()}
}

// ExecuteQuery resolves q's ranges and returns a QueryStreamResult the
// caller pulls pages from one partition at a time (spec.md §4.8).
func (c *Client) ExecuteQuery(ctx context.Context, q *TableQuery) (*QueryStreamResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return q.execute(ctx, c.exec)
}

// ExecuteSQL runs sql over the sys-tenant session against a random
// active backend (spec.md §6 "execute_sql"). The wire encoding of a SQL
// request is the codec's concern (out of scope, spec.md §1).
func (c *Client) ExecuteSQL(ctx context.Context, sql string) (*obrpc.SQLResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	addr, ok := c.roster.PeekRandomServer()
	if !ok {
		return nil, obkverr.ErrNotFound
	}
	handle, ok := c.backends.get(addr)
	if !ok {
		return nil, fmt.Errorf("obkv: backend %s not registered", addr)
	}
	resp := &obrpc.SQLResult{}
	if err := handle.executePayload(ctx, &obrpc.SQLRequest{SQL: sql}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TruncateTable truncates table and invalidates its cached metadata.
func (c *Client) TruncateTable(ctx context.Context, table string) error {
	if _, err := c.ExecuteSQL(ctx, fmt.Sprintf("TRUNCATE TABLE `%s`", table)); err != nil {
		return err
	}
	c.meta.invalidateTable(table)
	return nil
}

// CheckTableExists reports whether table resolves to a TableEntry.
func (c *Client) CheckTableExists(ctx context.Context, table string) (bool, error) {
	_, err := c.meta.getOrRefreshTableEntry(ctx, table, true, true)
	if err == nil {
		return true, nil
	}
	var oe *obkverr.ObException
	if errors.As(err, &oe) && oe.Code == obkverr.CodeTableNotExist {
		return false, nil
	}
	if errors.Is(err, obkverr.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func rawRowKey(key RowKey) []any {
	out := make([]any, len(key))
	for i, v := range key {
		out[i] = v.Raw()
	}
	return out
}

func rawColumns(cols Columns) map[string]any {
	if cols == nil {
		return nil
	}
	out := make(map[string]any, len(cols))
	for k, v := range cols {
		out[k] = v.Raw()
	}
	return out
}

func wrapColumns(raw map[string]any) Columns {
	out := make(Columns, len(raw))
	for k, v := range raw {
		out[k] = NewValue(v)
	}
	return out
}

func selectColumnsToColumns(names []string) map[string]any {
	if names == nil {
		return nil
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		out[n] = nil
	}
	return out
}

func selectColumnsAsColumns(names []string) Columns {
	if names == nil {
		return nil
	}
	out := make(Columns, len(names))
	for _, n := range names {
		out[n] = NewValue(nil)
	}
	return out
}
