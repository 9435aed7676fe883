// Package version implements the per-OID version chain: immutable payload
// nodes linked toward older versions, each carrying a single packed stamp
// that is either "uncommitted, created by XID x" or "committed at LSN l".
//
// What: Version{Payload, prev, stamp}. A version's prev is set once at
// construction and from then on only ever truncated to nil by the
// reclamation sweep, never repointed elsewhere; its stamp transitions at
// most once, from uncommitted to committed, via a single atomic store.
// How: the teacher's RowVersion (storage/mvcc.go) carries XMin/XMax/
// CreatedAt/DeletedAt as four separate fields. This is deliberately
// collapsed to the spec's tighter model: one packed 64-bit stamp with a
// tag bit distinguishing "owner XID" from "committed LSN", matching the
// spec's "a version's stamp transitions at most once" invariant with a
// single atomic word instead of a multi-field handshake.
// Why: fewer fields to keep consistent under concurrent access, and a
// commit becomes one atomic store per version instead of several field
// writes.
package version

import "sync/atomic"

// committedBit marks a stamp as "committed at LSN" rather than
// "uncommitted, owned by XID". LSN 0 is never valid (the log always
// starts counting from 1), and XID 0 is never valid either, so the tag
// bit is the top bit of the 64-bit word: stamps never get close to
// 1<<63 values in practice, and this keeps Load/CAS to one word.
const committedBit = uint64(1) << 63

// Stamp is the packed representation of a version's commit status.
type Stamp uint64

// UncommittedBy returns the stamp for a version just created by xid.
func UncommittedBy(xid uint64) Stamp { return Stamp(xid &^ committedBit) }

// CommittedAt returns the stamp for a version committed at lsn.
func CommittedAt(lsn uint64) Stamp { return Stamp(lsn | committedBit) }

// Aborted is the sentinel stamp for a version whose writer aborted but
// could not unlink it because a later writer had already layered a
// version on top (§4.5 abort: "mark the
// version stamp as aborted so readers skip it"). It reuses XID 0, which is
// never a live transaction id.
var Aborted = UncommittedBy(0)

// IsCommitted reports whether s represents a committed version.
func (s Stamp) IsCommitted() bool { return uint64(s)&committedBit != 0 }

// LSN returns the commit LSN; valid only if IsCommitted.
func (s Stamp) LSN() uint64 { return uint64(s) &^ committedBit }

// Owner returns the creating XID; valid only if !IsCommitted.
func (s Stamp) Owner() uint64 { return uint64(s) &^ committedBit }

// IsAborted reports whether s is the aborted sentinel.
func (s Stamp) IsAborted() bool { return s == Aborted }

// Version is one immutable node in an OID's version chain.
type Version struct {
	Payload []byte
	prev    atomic.Pointer[Version]
	stamp   atomic.Uint64
}

// New allocates a version owned by xid, pointing at prev (the chain's
// current head at allocation time, or nil for a brand new OID).
func New(payload []byte, xid uint64, prev *Version) *Version {
	v := &Version{Payload: payload}
	v.prev.Store(prev)
	v.stamp.Store(uint64(UncommittedBy(xid)))
	return v
}

// Prev atomically loads the next-older version in the chain, or nil if
// this is the oldest version still linked (either genuinely the first
// version ever created, or everything older has been reclaimed).
func (v *Version) Prev() *Version { return v.prev.Load() }

// Truncate severs the chain just past v, dropping the reference to
// whatever v.Prev() used to be. Called only by the reclamation sweep
// (internal/txn's CompactStore) once no live transaction's snapshot can
// still reach the versions behind the cut; readers that already loaded
// the old Prev() value keep following it through their own local
// reference, so this never invalidates an in-progress scan.
func (v *Version) Truncate() { v.prev.Store(nil) }

// Stamp atomically loads the version's current stamp.
func (v *Version) Stamp() Stamp { return Stamp(v.stamp.Load()) }

// CommitTo publishes commitLSN as this version's stamp with a release
// store, so that once a transaction's state becomes COMMITTED, any reader
// who observes that state also observes this stamp (§4.5 step 5: "publish
// stamps with a release-store so readers see the committed state").
func (v *Version) CommitTo(commitLSN uint64) {
	v.stamp.Store(uint64(CommittedAt(commitLSN)))
}

// MarkAborted stamps the version as aborted so readers walking the chain
// skip it (§4.5 abort, second bullet: CAS-unlink fails because a later
// writer already layered on top, so the version is stamped instead of
// unlinked).
func (v *Version) MarkAborted() {
	v.stamp.Store(uint64(Aborted))
}
