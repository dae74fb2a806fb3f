// Package obrpc defines the opaque request/response payload shapes the
// execution engine builds and hands to a backend connection. The wire
// codec itself — how a Request becomes bytes and back — is out of
// scope (spec.md §1): Request and Response here are the "opaque
// payload objects" spec.md describes, with just enough structure for
// the routing and retry logic in pkg/obkv to operate on them.
package obrpc

// OpType is the kind of single-row operation a request carries.
type OpType int8

const (
	OpInsert OpType = iota
	OpUpdate
	OpInsertOrUpdate
	OpReplace
	OpDelete
	OpGet
	OpAppend
	OpIncrement
)

// EntityType distinguishes Normal-mode tables from HBase-mode tables at
// the wire level (spec.md glossary "Running mode").
type EntityType int8

const (
	EntityDynamic EntityType = iota
	EntityHKV
)

// Header is the common response envelope every backend reply carries.
type Header struct {
	ErrorNo      int32
	ErrorMessage string
	SequenceID   int64
}

// Request is any payload the execution engine can hand to a backend
// connection for a single round trip.
type Request interface {
	// PartitionID is the partition this request targets; the execution
	// engine sets it after resolving the request's row key.
	PartitionID() int64
	SetPartitionID(id int64)
	TableName() string
}

// Response is any payload a backend connection can decode a reply into.
type Response interface {
	Header() Header
}

// OperationRequest is a single-row operation request.
type OperationRequest struct {
	Table      string
	Type       OpType
	Entity     EntityType
	RowKey     []any
	Columns    map[string]any
	partID     int64
}

func (r *OperationRequest) PartitionID() int64      { return r.partID }
func (r *OperationRequest) SetPartitionID(id int64) { r.partID = id }
func (r *OperationRequest) TableName() string       { return r.Table }

// OperationResult is the response to a single-row operation.
type OperationResult struct {
	Hdr          Header
	AffectedRows int64
	Columns      map[string]any
}

func (r *OperationResult) Header() Header { return r.Hdr }

// BatchOperation is a collection of single-row operations tagged with a
// partition id and, optionally, marked atomic (spec.md §4.9).
type BatchOperation struct {
	Table    string
	PartID   int64
	Atomic   bool
	SameType bool
	Ops      []*OperationRequest
}

func (b *BatchOperation) PartitionID() int64      { return b.PartID }
func (b *BatchOperation) SetPartitionID(id int64) { b.PartID = id }
func (b *BatchOperation) TableName() string       { return b.Table }

// OpResult is one element of a batch's result set.
type OpResult struct {
	Hdr          Header
	AffectedRows int64
	Columns      map[string]any
	Err          error
}

// BatchResult is the response to a BatchOperation.
type BatchResult struct {
	Hdr     Header
	Results []OpResult
}

func (r *BatchResult) Header() Header { return r.Hdr }

// StreamRequest asks a backend to continue a previously opened query
// stream (spec.md §4.8 "stream next" continuation frames).
type StreamRequest struct {
	Table      string
	PartID     int64
	SessionID  int64
	End        bool
}

func (r *StreamRequest) PartitionID() int64      { return r.PartID }
func (r *StreamRequest) SetPartitionID(id int64) { r.PartID = id }
func (r *StreamRequest) TableName() string       { return r.Table }

// QueryResult is one page of a query stream's rows, plus whether more
// pages remain.
type QueryResult struct {
	Hdr     Header
	Rows    []map[string]any
	HasMore bool
}

func (r *QueryResult) Header() Header { return r.Hdr }

// SQLRequest carries a raw SQL statement executed over the sys-tenant
// session, for administrative operations the row-key API does not
// cover (spec.md §6 "execute_sql", "truncate_table"). It targets no
// partition.
type SQLRequest struct {
	SQL string
}

func (r *SQLRequest) PartitionID() int64  { return 0 }
func (r *SQLRequest) SetPartitionID(int64) {}
func (r *SQLRequest) TableName() string   { return "" }

// SQLResult is the response to a SQLRequest.
type SQLResult struct {
	Hdr          Header
	Rows         []map[string]any
	RowsAffected int64
}

func (r *SQLResult) Header() Header { return r.Hdr }
