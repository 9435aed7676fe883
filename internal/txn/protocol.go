package txn

import "github.com/oltpcore/mvccdb/internal/version"

// Protocol is the isolation variant a transaction runs under. All four
// share one Txn data layout; only the dispatch table differs (§9: "model
// as a single transaction record parameterized by a protocol tag; the
// per-protocol code paths are distinct functions dispatched once at
// begin, not on each operation").
type Protocol int

const (
	SI Protocol = iota
	SSI
	SSN
	MVOCC
)

func (p Protocol) String() string {
	switch p {
	case SI:
		return "SI"
	case SSI:
		return "SSI"
	case SSN:
		return "SSN"
	case MVOCC:
		return "MVOCC"
	default:
		return "UNKNOWN"
	}
}

// protocolOps is one protocol's function table. onRead/onWrite update a
// transaction's η/π stamps as versions are observed; validate runs at
// commit and returns CodeNone on success.
type protocolOps struct {
	onRead   func(tx *Txn, stamp version.Stamp)
	onWrite  func(tx *Txn, observedHeadStamp version.Stamp)
	validate func(tx *Txn) AbortCode
}

func onReadNoop(tx *Txn, stamp version.Stamp)           {}
func onWriteNoop(tx *Txn, observedHeadStamp version.Stamp) {}

// onReadSSN raises η (hi) to the largest committed predecessor stamp
// observed on any read.
func onReadSSN(tx *Txn, stamp version.Stamp) {
	if !stamp.IsCommitted() {
		return
	}
	lsn := stamp.LSN()
	for {
		cur := tx.xctx.hi.Load()
		if lsn <= cur {
			return
		}
		if tx.xctx.hi.CompareAndSwap(cur, lsn) {
			return
		}
	}
}

// onWriteSSN lowers π (lo) to the smallest committed predecessor stamp
// observed under the head a write installs on top of.
func onWriteSSN(tx *Txn, observedHeadStamp version.Stamp) {
	if !observedHeadStamp.IsCommitted() {
		return
	}
	lsn := observedHeadStamp.LSN()
	for {
		cur := tx.xctx.lo.Load()
		if lsn >= cur {
			return
		}
		if tx.xctx.lo.CompareAndSwap(cur, lsn) {
			return
		}
	}
}

func validateSI(tx *Txn) AbortCode { return CodeNone }

func validateSSN(tx *Txn) AbortCode {
	if !ssnCheckExclusion(tx.xctx.hi.Load(), tx.xctx.lo.Load()) {
		return CodeSerial
	}
	return CodeNone
}

// validateMVOCC checks, for every read-set entry, whether the OID's
// version chain has received a new head since the read (§4.5 commit,
// MVOCC bullet: "revalidate that the version is still the visible one...
// if any changed, abort RW"). A new head means some writer — committed
// or not — has installed a version on top of what we read; if that
// writer goes on to commit, our read is stale, so MVOCC fails closed on
// the structural change itself rather than waiting to see whether the
// other writer commits.
func validateMVOCC(tx *Txn) AbortCode {
	for _, r := range tx.readSet {
		if r.store.OIDs.Head(r.oidValue) != r.ver {
			return CodeRW
		}
	}
	return CodeNone
}

var protocolTable = map[Protocol]protocolOps{
	SI: {
		onRead:   onReadNoop,
		onWrite:  onWriteNoop,
		validate: validateSI,
	},
	SSI: {
		onRead:   onReadSSN,
		onWrite:  onWriteSSN,
		validate: validateSSN,
	},
	SSN: {
		onRead:   onReadSSN,
		onWrite:  onWriteSSN,
		validate: validateSSN,
	},
	MVOCC: {
		onRead:   onReadNoop,
		onWrite:  onWriteNoop,
		validate: validateMVOCC,
	},
}
