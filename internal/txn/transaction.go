// Package txn is the transaction core (§4.5/§4.6): it builds read/write/
// absent sets, enforces version visibility, and coordinates the version
// install + commit-LSN + state publish sequence across four isolation
// protocols sharing one transaction record.
package txn

import (
	"github.com/oltpcore/mvccdb/internal/epoch"
	"github.com/oltpcore/mvccdb/internal/index"
	"github.com/oltpcore/mvccdb/internal/oid"
	"github.com/oltpcore/mvccdb/internal/version"
	"github.com/oltpcore/mvccdb/internal/walog"
)

// Context bundles the engine-wide shared state every transaction needs:
// the epoch manager, the log, and the XID registry. One Context is
// constructed at engine init and threaded explicitly into every
// operation (§9: "bundle as an explicit engine context passed by
// reference; avoid implicit globals").
type Context struct {
	Epochs *epoch.Manager
	Log    *walog.Log
	reg    *registry
}

// NewContext creates a fresh engine context over the given epoch manager
// and log.
func NewContext(epochs *epoch.Manager, log *walog.Log) *Context {
	return &Context{Epochs: epochs, Log: log, reg: newRegistry()}
}

type readEntry struct {
	store    *Store
	oidValue uint64
	ver      *version.Version
	stamp    version.Stamp
}

type writeEntry struct {
	store    *Store
	oidValue uint64
	ver      *version.Version
	prevHead *version.Version
}

type absentEntry struct {
	leaf    *index.Leaf
	version uint64
}

// Txn is one transaction's descriptor: its identity, its protocol
// dispatch table, and its read/write/absent sets.
type Txn struct {
	ctx      *Context
	xid      uint64
	xctx     *xidContext
	protocol Protocol
	ops      protocolOps
	readOnly bool

	guard *epoch.Guard
	txLog *walog.TxLog

	locals map[*Store]*oid.Local

	readSet   []readEntry
	writeSet  []writeEntry
	absentSet []absentEntry
}

// BeginOptions controls how a new transaction starts.
type BeginOptions struct {
	ReadOnly bool
	Protocol Protocol
}

// Begin allocates an XID and context, enters the current epoch, and
// dispatches the transaction's protocol once for its whole lifetime
// (§9). begin-LSN is the log's current tail, a snapshot of everything
// already committed.
func Begin(ctx *Context, opts BeginOptions) *Txn {
	xc := ctx.reg.allocate()
	xc.begin.Store(ctx.Log.Tail())

	tx := &Txn{
		ctx:      ctx,
		xid:      xc.xid,
		xctx:     xc,
		protocol: opts.Protocol,
		ops:      protocolTable[opts.Protocol],
		readOnly: opts.ReadOnly,
		guard:    ctx.Epochs.Enter(),
		locals:   make(map[*Store]*oid.Local),
	}
	return tx
}

// XID returns the transaction's identity.
func (tx *Txn) XID() uint64 { return tx.xid }

func (tx *Txn) localFor(s *Store) *oid.Local {
	l, ok := tx.locals[s]
	if !ok {
		l = oid.NewLocal()
		tx.locals[s] = l
	}
	return l
}

// ensureActive transitions EMBRYO → ACTIVE on first data access (§4.6:
// "Transition EMBRYO→ACTIVE happens at the first data access") and
// reports whether the transaction is now usable.
func (tx *Txn) ensureActive() bool {
	for {
		switch tx.xctx.getState() {
		case stateEmbryo:
			if tx.xctx.casState(stateEmbryo, stateActive) {
				return true
			}
		case stateActive:
			return true
		default:
			return false
		}
	}
}

// Get performs a point read (§4.5 get).
func (tx *Txn) Get(store *Store, key []byte) ([]byte, error) {
	if !tx.ensureActive() {
		return nil, ErrTxnNotActive
	}

	found, oidValue, obs := store.Idx.Search(key)
	if !tx.readOnly {
		tx.absentSet = append(tx.absentSet, absentEntry{leaf: obs.Leaf, version: obs.Version})
	}
	if !found {
		return nil, ErrNotFound
	}

	head := store.OIDs.Head(oidValue)
	ver, stamp, ok := tx.visibleVersion(head)
	if !ok || ver.Payload == nil {
		return nil, ErrNotFound
	}

	tx.readSet = append(tx.readSet, readEntry{store: store, oidValue: oidValue, ver: ver, stamp: stamp})
	tx.ops.onRead(tx, stamp)
	return ver.Payload, nil
}

// Insert allocates a fresh OID and installs key→oid only if key is
// absent (§4.5 insert). When upsert is true and the key already exists,
// it rolls back the pre-allocated version and retries as Update instead
// of returning ErrKeyExists (§9 open question, resolved in favor of
// exposing both behaviors via this flag).
func (tx *Txn) Insert(store *Store, key, value []byte, upsert bool) (uint64, error) {
	if !tx.ensureActive() {
		return 0, ErrTxnNotActive
	}

	local := tx.localFor(store)
	oidValue := store.OIDs.Alloc(local)
	newVer := version.New(value, tx.xid, nil)
	store.OIDs.StoreHead(oidValue, newVer)

	installed, info := store.Idx.InsertIfAbsent(key, oidValue)
	if !installed {
		newVer.MarkAborted()
		if !upsert {
			return 0, ErrKeyExists
		}
		found, existingOID, obs := store.Idx.Search(key)
		if !tx.readOnly {
			tx.absentSet = append(tx.absentSet, absentEntry{leaf: obs.Leaf, version: obs.Version})
		}
		if !found {
			return 0, errInternal
		}
		if err := tx.update(store, existingOID, value); err != nil {
			return 0, err
		}
		return existingOID, nil
	}

	// Validate the absent set against this insert's structural change:
	// any earlier observation of the same leaf must match the leaf's
	// version just before this insert, or another writer raced us.
	for _, a := range tx.absentSet {
		if a.leaf == info.Leaf && a.version != info.OldVersion {
			return 0, tx.abortWith(CodePhantom)
		}
	}

	tx.writeSet = append(tx.writeSet, writeEntry{store: store, oidValue: oidValue, ver: newVer})
	return oidValue, nil
}

// Update installs a new version on top of oidValue's current head
// (§4.5 update). It aborts WRITE_CONFLICT if the head is an uncommitted
// version owned by another transaction.
func (tx *Txn) Update(store *Store, oidValue uint64, value []byte) error {
	if !tx.ensureActive() {
		return ErrTxnNotActive
	}
	return tx.update(store, oidValue, value)
}

func (tx *Txn) update(store *Store, oidValue uint64, value []byte) error {
	head := store.OIDs.Head(oidValue)
	if head != nil {
		s := head.Stamp()
		if !s.IsCommitted() && !s.IsAborted() && s.Owner() != tx.xid {
			return tx.abortWith(CodeWriteConflict)
		}
	}

	newVer := version.New(value, tx.xid, head)
	if !store.OIDs.CASHead(oidValue, head, newVer) {
		return tx.abortWith(CodeWriteConflict)
	}

	if head != nil {
		tx.ops.onWrite(tx, head.Stamp())
	}
	tx.writeSet = append(tx.writeSet, writeEntry{store: store, oidValue: oidValue, ver: newVer, prevHead: head})
	return nil
}

// Remove installs a tombstone version (a version with a nil payload) on
// top of key's current mapping. The key→OID mapping itself is left in
// place; Get and Scan treat a tombstone's visible version as absent.
func (tx *Txn) Remove(store *Store, key []byte) error {
	if !tx.ensureActive() {
		return ErrTxnNotActive
	}
	found, oidValue, obs := store.Idx.Search(key)
	if !tx.readOnly {
		tx.absentSet = append(tx.absentSet, absentEntry{leaf: obs.Leaf, version: obs.Version})
	}
	if !found {
		return ErrNotFound
	}
	return tx.update(store, oidValue, nil)
}

// ScanFunc is called with each visible (key, value) pair a scan turns
// up; return false to stop early.
type ScanFunc func(key, value []byte) bool

// Scan walks [low, high) in ascending order, recording every visited
// leaf in the absent set for phantom protection (§4.5 scan).
func (tx *Txn) Scan(store *Store, low, high []byte, cb ScanFunc) error {
	return tx.rangeScan(store, low, high, cb, false)
}

// RScan walks [low, high] in descending order.
func (tx *Txn) RScan(store *Store, high, low []byte, cb ScanFunc) error {
	return tx.rangeScan(store, high, low, cb, true)
}

func (tx *Txn) rangeScan(store *Store, a, b []byte, cb ScanFunc, reverse bool) error {
	if !tx.ensureActive() {
		return ErrTxnNotActive
	}
	visit := index.VisitFunc{
		Leaf: func(obs index.Observation) {
			if !tx.readOnly {
				tx.absentSet = append(tx.absentSet, absentEntry{leaf: obs.Leaf, version: obs.Version})
			}
		},
		Item: func(key []byte, oidValue uint64) bool {
			head := store.OIDs.Head(oidValue)
			ver, stamp, ok := tx.visibleVersion(head)
			if !ok || ver.Payload == nil {
				return true
			}
			tx.readSet = append(tx.readSet, readEntry{store: store, oidValue: oidValue, ver: ver, stamp: stamp})
			tx.ops.onRead(tx, stamp)
			return cb(key, ver.Payload)
		},
	}
	if reverse {
		store.Idx.RScan(a, b, visit)
	} else {
		store.Idx.Scan(a, b, visit)
	}
	return nil
}

// Commit runs the full validation and install sequence (§4.5 commit).
func (tx *Txn) Commit() error {
	if !tx.xctx.casState(stateActive, stateCommitting) && !tx.xctx.casState(stateEmbryo, stateCommitting) {
		return ErrTxnNotActive
	}

	for _, a := range tx.absentSet {
		if a.leaf.Version() != a.version {
			return tx.abortWith(CodePhantom)
		}
	}

	if code := tx.ops.validate(tx); code != CodeNone {
		return tx.abortWith(code)
	}

	// Nothing to install: no commit record is needed (§9 resolved — a
	// read-only transaction, under any protocol, exits once validation
	// passes without appending to the log).
	if len(tx.writeSet) == 0 {
		tx.xctx.end.Store(tx.xctx.begin.Load())
		tx.xctx.setState(stateCommitted)
		tx.release()
		return nil
	}

	if tx.txLog == nil {
		tx.txLog = tx.ctx.Log.NewTxLog(tx.xid)
	}
	for _, w := range tx.writeSet {
		tx.txLog.Append(w.ver.Payload)
	}
	lsn, err := tx.txLog.Commit()
	if err != nil {
		return tx.abortWith(CodeInternal)
	}

	tx.xctx.end.Store(lsn)
	for _, w := range tx.writeSet {
		w.ver.CommitTo(lsn)
	}
	tx.xctx.setState(stateCommitted)
	tx.release()
	return nil
}

// Abort unwinds the transaction's write set and marks it ABORTED
// (§4.5 abort). Safe to call at any point after Begin; on a transaction
// that has already committed or aborted it changes nothing and returns
// ErrTxnNotActive.
func (tx *Txn) Abort() error {
	switch tx.xctx.getState() {
	case stateCommitted, stateAborted:
		return ErrTxnNotActive
	}
	return tx.abortWith(CodeUser)
}

func (tx *Txn) abortWith(code AbortCode) error {
	tx.xctx.setState(stateAborted)
	for _, w := range tx.writeSet {
		if w.store.OIDs.CASHead(w.oidValue, w.ver, w.prevHead) {
			continue
		}
		// A later writer has already layered a version on top; we can't
		// unlink ours, so mark it aborted and let readers skip it.
		w.ver.MarkAborted()
	}
	tx.release()
	return newAbortError(code)
}

// release exits the transaction's epoch and schedules its context for
// removal from the registry once every guard active at this epoch has
// quiesced (§3 xid_context lifecycle).
func (tx *Txn) release() {
	epochAtRelease := tx.guard.Epoch()
	tx.guard.Exit()
	xid := tx.xid
	reg := tx.ctx.reg
	tx.ctx.Epochs.DeferFree(epochAtRelease, func() {
		reg.release(xid)
	})
}
