package txn

import (
	"github.com/oltpcore/mvccdb/internal/epoch"
	"github.com/oltpcore/mvccdb/internal/version"
)

// Horizon returns the oldest begin-LSN among this context's currently
// live transactions, or the log's current tail if none are live.
// Versions committed at or before Horizon are the last ones any live
// snapshot could still need — anything strictly older is safe to
// reclaim (§4.1/§2 component 3: version-store reclamation goes through
// the epoch system, driven off live-transaction horizons rather than a
// fixed retention window).
func (c *Context) Horizon() uint64 {
	return c.reg.oldestBegin(c.Log.Tail())
}

// CompactStore prunes every OID's version chain in store down to the
// newest version visible at or before horizon. Everything behind that
// version is unreachable from any live transaction's snapshot by
// construction (no live begin-LSN is smaller than horizon), so the
// chain is severed there; the sever itself is deferred through epochs
// so that a scan already walking the old tail when the sweep runs is
// never cut out from under it mid-traversal. Returns the number of
// versions queued for reclamation, for the caller to log.
func CompactStore(store *Store, epochs *epoch.Manager, horizon uint64) int {
	pruned := 0
	epochNow := epochs.Current()

	store.OIDs.Range(func(oidValue uint64, head *version.Version) {
		v := head
		for v != nil {
			s := v.Stamp()
			if s.IsCommitted() && s.LSN() <= horizon {
				break
			}
			v = v.Prev()
		}
		if v == nil {
			return // nothing in this chain is old enough to cut behind
		}

		tail := v.Prev()
		if tail == nil {
			return // already fully compacted
		}
		for c := tail; c != nil; c = c.Prev() {
			pruned++
		}
		epochs.DeferFree(epochNow, func() { v.Truncate() })
	})

	return pruned
}
