// Package oid implements the grow-only oid → head-of-version-list table.
//
// What: a stable 64-bit identity for every record, indirecting through to
// the current head of that record's version chain.
// How: the table is a growable slice of fixed-size segments of atomic
// pointers. Allocation is extent-based — a caller (a transaction, via a
// Local) reserves a batch of OIDs from a global, atomically-incremented
// cursor and then hands them out one at a time without contending on the
// global cursor again until the batch is exhausted.
// Why: this is the same trick original MVCC engines use to keep OID
// allocation off the hot path (ermia's object_vector::alloc_oid_extent);
// Go has no per-OS-thread storage, so the extent is owned by whichever
// caller requests one instead of a fixed per-core slot.
package oid

import (
	"sync"
	"sync/atomic"
)

// ExtentSize is the number of OIDs reserved per extent request.
const ExtentSize = 8192

const segmentBits = 16
const segmentSize = 1 << segmentBits // entries per segment
const segmentMask = segmentSize - 1

// Table stores, for each OID, an atomic pointer to the head of its
// version chain. It is generic over the head type T (no unsafe.Pointer);
// callers instantiate Table[T] with their version node type.
type Table[T any] struct {
	mu       sync.Mutex
	segments [][]atomic.Pointer[T]

	nextOID   atomic.Uint64 // global extent cursor, advanced by ExtentSize per extent
	highWater atomic.Uint64 // one past the largest oidValue actually ensure()'d
}

// New creates an empty OID table.
func New[T any]() *Table[T] {
	return &Table[T]{}
}

// Local is a per-caller extent handle. A transaction obtains one Local and
// reuses it for every OID it allocates during its lifetime, amortizing the
// cost of the global cursor increment across ExtentSize allocations.
type Local struct {
	offset    uint64
	remaining uint64
}

// NewLocal returns an empty Local; its first Alloc call will reserve a
// fresh extent.
func NewLocal() *Local { return &Local{} }

// Alloc returns a freshly allocated OID that is not yet associated with
// any version (Head returns the zero pointer for it until StoreHead or
// CASHead installs one).
func (t *Table[T]) Alloc(l *Local) uint64 {
	if l.remaining == 0 {
		l.offset = t.allocExtent()
		l.remaining = ExtentSize
	}
	l.remaining--
	oidValue := l.offset + (ExtentSize - l.remaining)
	t.ensure(oidValue)
	return oidValue
}

func (t *Table[T]) allocExtent() uint64 {
	return t.nextOID.Add(ExtentSize) - ExtentSize
}

// ensure grows the segment list so that oidValue has backing storage,
// then raises highWater past oidValue. highWater — not nextOID, which
// counts whole reserved extents, some of whose OIDs may never be
// individually allocated — is what Range uses to bound its scan, so it
// never indexes into a segment that hasn't been grown yet.
func (t *Table[T]) ensure(oidValue uint64) {
	segIdx := int(oidValue >> segmentBits)
	t.mu.Lock()
	for len(t.segments) <= segIdx {
		t.segments = append(t.segments, make([]atomic.Pointer[T], segmentSize))
	}
	t.mu.Unlock()

	for {
		cur := t.highWater.Load()
		if oidValue < cur {
			break
		}
		if t.highWater.CompareAndSwap(cur, oidValue+1) {
			break
		}
	}
}

func (t *Table[T]) slot(oidValue uint64) *atomic.Pointer[T] {
	segIdx := int(oidValue >> segmentBits)
	off := oidValue & segmentMask
	t.mu.Lock()
	seg := t.segments[segIdx]
	t.mu.Unlock()
	return &seg[off]
}

// Head atomically loads the current head version pointer for oidValue.
// A freshly allocated OID's head is nil.
func (t *Table[T]) Head(oidValue uint64) *T {
	return t.slot(oidValue).Load()
}

// CASHead attempts to install newHead as the head for oidValue, succeeding
// only if the current head is still expected.
func (t *Table[T]) CASHead(oidValue uint64, expected, newHead *T) bool {
	return t.slot(oidValue).CompareAndSwap(expected, newHead)
}

// StoreHead unconditionally installs newHead as the head for oidValue.
// Used only at allocation time, before the OID is visible to any other
// transaction.
func (t *Table[T]) StoreHead(oidValue uint64, newHead *T) {
	t.slot(oidValue).Store(newHead)
}

// Len reports the number of OIDs ever handed out (an upper bound — some
// may not have a head installed yet).
func (t *Table[T]) Len() uint64 {
	return t.nextOID.Load()
}

// Range calls fn once for every OID that has actually been ensure()'d
// (i.e. returned by a prior Alloc call) whose head is non-nil, in OID
// order. Used by the reclamation sweep to visit every version chain
// without keeping a separate live-OID index.
func (t *Table[T]) Range(fn func(oidValue uint64, head *T)) {
	for oidValue := uint64(0); oidValue < t.highWater.Load(); oidValue++ {
		if head := t.Head(oidValue); head != nil {
			fn(oidValue, head)
		}
	}
}
