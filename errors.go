package mvccdb

import "github.com/oltpcore/mvccdb/internal/txn"

// AbortCode is the result-kind token an aborted operation returns (§7).
type AbortCode = txn.AbortCode

// The error taxonomy kinds (§7).
const (
	CodeWriteConflict = txn.CodeWriteConflict
	CodeSerial        = txn.CodeSerial
	CodeRW            = txn.CodeRW
	CodePhantom       = txn.CodePhantom
	CodeInternal      = txn.CodeInternal
	CodeUser          = txn.CodeUser
)

// AbortError reports that a transaction aborted and why. Use errors.As to
// recover one from an error returned by Txn.Commit or a table operation,
// or errors.Is against ErrNotFound / ErrKeyExists for the non-abort
// result statuses.
type AbortError = txn.AbortError

// Non-abort result statuses a table operation can return.
var (
	ErrNotFound     = txn.ErrNotFound
	ErrKeyExists    = txn.ErrKeyExists
	ErrTxnNotActive = txn.ErrTxnNotActive
)

// ErrTableExists is returned by CreateTable when name is already
// registered.
var ErrTableExists = errTableExists{}

type errTableExists struct{}

func (errTableExists) Error() string { return "mvccdb: table already exists" }

// ErrTableNotFound is returned when a table name has no registered
// backing store.
var ErrTableNotFound = errTableNotFound{}

type errTableNotFound struct{}

func (errTableNotFound) Error() string { return "mvccdb: table not found" }
