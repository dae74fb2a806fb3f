// Package obkverr classifies every error the client can surface.
//
// It mirrors the shape of franz-go's kerr package: a registry of typed
// codes, each tagged with the retry policy it implies, plus a small set
// of sentinel lifecycle/location errors that carry no code at all.
// Policy lives entirely here, not on the call sites that produce the
// errors — see DESIGN.md.
package obkverr

import (
	"errors"
	"fmt"
)

// Code is an OBKV backend result code (what the spec calls errorno).
type Code int32

// A non-exhaustive but representative slice of backend result codes.
// Values are illustrative placeholders for the wire protocol's codes;
// the wire codec itself is out of scope (spec.md §1).
const (
	CodeSuccess             Code = 0
	CodePartitionNotLeader   Code = -4038
	CodeNotInit              Code = -4005
	CodeTimeout              Code = -4012
	CodeRPCConnectError      Code = -4016
	CodeTableNotExist        Code = -5019
	CodeInvalidPartition     Code = -5625
	CodeSizeOverflow         Code = -5067
	CodeServerIsStopping     Code = -4029
	CodeUnknownUser          Code = -8001
	CodePasswordError        Code = -8002
	CodeGetLocationTimeError Code = -4721
)

type classification struct {
	retryable        bool
	needsRefresh     bool
	invalidatesBatch bool
}

var classifications = map[Code]classification{
	CodeSuccess:              {},
	CodePartitionNotLeader:   {retryable: true, needsRefresh: true},
	CodeNotInit:              {retryable: true},
	CodeTimeout:              {retryable: true},
	CodeRPCConnectError:      {retryable: true, needsRefresh: true},
	CodeServerIsStopping:     {retryable: true, needsRefresh: true},
	CodeGetLocationTimeError: {retryable: true, needsRefresh: true},
	CodeTableNotExist:        {needsRefresh: true},
	CodeInvalidPartition:     {invalidatesBatch: true},
	CodeSizeOverflow:         {},
	CodeUnknownUser:          {},
	CodePasswordError:        {},
}

// ObException is a typed error returned by a backend response header.
type ObException struct {
	Code    Code
	Message string
}

func (e *ObException) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("obkv: backend error %d", e.Code)
	}
	return fmt.Sprintf("obkv: backend error %d: %s", e.Code, e.Message)
}

// NewObException builds an ObException carrying code and the given
// message; classification depends on code only, never on the message.
func NewObException(code Code, message string) *ObException {
	return &ObException{Code: code, Message: message}
}

// NeedRetry reports whether the execution engine should retry the
// operation that produced err.
func NeedRetry(err error) bool {
	var oe *ObException
	if errors.As(err, &oe) {
		return classifications[oe.Code].retryable
	}
	return false
}

// NeedRefreshTable reports whether the execution engine should trigger a
// non-blocking metadata refresh for the table involved in err.
func NeedRefreshTable(err error) bool {
	var oe *ObException
	if errors.As(err, &oe) {
		return classifications[oe.Code].needsRefresh
	}
	return false
}

// InvalidatesAtomicBatch reports whether err is the class of error an
// atomic multi-partition batch must fail with (spec.md §4.9 invariant 5).
func InvalidatesAtomicBatch(err error) bool {
	var oe *ObException
	if errors.As(err, &oe) {
		return classifications[oe.Code].invalidatesBatch
	}
	return false
}

// Lifecycle and location sentinel errors. These carry no backend code:
// they originate client-side.
var (
	ErrNotInitialized = errors.New("obkv: client not initialized")
	ErrAlreadyClosed  = errors.New("obkv: client is closed")
	ErrNotFound       = errors.New("obkv: not found")
	ErrLocked         = errors.New("obkv: refresh already in progress")
)

// PartitionError reports a malformed partition scheme or an operation
// this client cannot route, such as a level-two range query.
type PartitionError struct {
	Msg string
}

func (e *PartitionError) Error() string { return "obkv: partition error: " + e.Msg }

// NewPartitionError builds a PartitionError with msg.
func NewPartitionError(msg string) *PartitionError { return &PartitionError{Msg: msg} }

// ErrUnsupportedPartitionLevelTwo is returned for range queries against
// a two-level partitioned table (spec.md §4.5).
var ErrUnsupportedPartitionLevelTwo = NewPartitionError("unsupported partition level two for range query")
