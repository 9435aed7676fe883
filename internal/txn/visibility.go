package txn

import "github.com/oltpcore/mvccdb/internal/version"

// visibleVersion implements §4.4: among the chain starting at head, the
// newest version that is either uncommitted-and-owned-by-tx or committed
// with stamp ≤ tx's begin-LSN. Mirrors the teacher's
// MVCCManager.IsVisible, generalized from wall-clock timestamps to LSNs.
func (tx *Txn) visibleVersion(head *version.Version) (*version.Version, version.Stamp, bool) {
	begin := tx.xctx.begin.Load()
	for v := head; v != nil; v = v.Prev() {
		s := v.Stamp()
		if s.IsAborted() {
			continue
		}
		if !s.IsCommitted() {
			if s.Owner() == tx.xid {
				return v, s, true
			}
			// Uncommitted foreign write: readers never wait, they walk
			// past it (§4.4).
			continue
		}
		if s.LSN() <= begin {
			return v, s, true
		}
	}
	return nil, 0, false
}
