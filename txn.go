package mvccdb

import "github.com/oltpcore/mvccdb/internal/txn"

// Txn is a thin façade over internal/txn.Txn; it exists so callers
// depend only on the root package while the transaction core stays
// unexported implementation detail (§4.8).
type Txn struct {
	inner *txn.Txn
}

// XID returns the transaction's identity.
func (tx *Txn) XID() uint64 { return tx.inner.XID() }

// Commit runs the full validation and install sequence (§4.5 commit).
// On abort it returns an *AbortError; inspect its Code for the kind.
func (tx *Txn) Commit() error {
	return tx.inner.Commit()
}

// Abort unwinds the transaction's write set and marks it ABORTED.
func (tx *Txn) Abort() error {
	return tx.inner.Abort()
}
