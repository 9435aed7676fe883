package mvccdb

import "github.com/oltpcore/mvccdb/internal/txn"

// Table is a handle to one ordered key→value store. All operations take
// the transaction performing them explicitly (§6 "per-table operations
// via txn").
type Table struct {
	name  string
	kind  TableKind
	store *txn.Store
}

// Name returns the table's registered name.
func (t *Table) Name() string { return t.name }

// Get reads key's visible value under tx's snapshot.
func (t *Table) Get(tx *Txn, key []byte) ([]byte, error) {
	return tx.inner.Get(t.store, key)
}

// Insert installs key→value only if key is absent, unless upsert is
// true, in which case an existing key is updated instead.
func (t *Table) Insert(tx *Txn, key, value []byte, upsert bool) error {
	_, err := tx.inner.Insert(t.store, key, value, upsert)
	return err
}

// Put is an unconditional write: insert if absent, update if present.
func (t *Table) Put(tx *Txn, key, value []byte) error {
	return t.Insert(tx, key, value, true)
}

// Remove deletes key, leaving a tombstone that later reads treat as
// absent.
func (t *Table) Remove(tx *Txn, key []byte) error {
	return tx.inner.Remove(t.store, key)
}

// ScanFunc receives each visible (key, value) pair; return false to stop.
type ScanFunc = txn.ScanFunc

// Scan walks [low, high) in ascending order. A nil high scans to the end
// of the table.
func (t *Table) Scan(tx *Txn, low, high []byte, cb ScanFunc) error {
	return tx.inner.Scan(t.store, low, high, cb)
}

// RScan walks [low, high] in descending order. A nil low scans from the
// start of the table.
func (t *Table) RScan(tx *Txn, high, low []byte, cb ScanFunc) error {
	return tx.inner.RScan(t.store, high, low, cb)
}
