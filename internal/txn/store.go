package txn

import (
	"github.com/oltpcore/mvccdb/internal/index"
	"github.com/oltpcore/mvccdb/internal/oid"
	"github.com/oltpcore/mvccdb/internal/version"
)

// Store is everything one table contributes to a transaction: its OID
// indirection table (oid → version chain head) and its ordered index
// (key → OID). The engine façade owns one Store per table; transactions
// never construct a Store themselves, only operate against ones handed
// to them by the caller.
type Store struct {
	OIDs *oid.Table[version.Version]
	Idx  *index.Index
}

// NewStore creates an empty table backing store.
func NewStore() *Store {
	return &Store{
		OIDs: oid.New[version.Version](),
		Idx:  index.New(),
	}
}
