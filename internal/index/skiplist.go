// Package index implements the ordered key→OID map described in §4.3: a
// latch-free point lookup, a lock-based insert-if-absent, and forward/
// reverse range scans whose callback surfaces leaf identity and
// leaf-version for phantom protection.
//
// What: a concurrent skip list. Every node doubles as the "leaf" the
// spec's contract talks about — its pointer identity is the stable,
// hashable leaf-identity (design note: "hashable on pointer identity"),
// and a per-node monotonic counter is its leaf-version, bumped whenever
// the node's level-0 successor changes (a key inserted or removed right
// after it). A node's own key→OID mapping never changes.
// How: the classic lock-based optimistic skip list (Herlihy & Shavit):
// Search is entirely lock-free (load-and-compare down the levels);
// InsertIfAbsent locks only the predecessor nodes it needs to splice
// into, with an optimistic unlocked pre-scan and a locked revalidation,
// so writers never block readers and rarely block each other.
// Why: no library in the example pack exposes an ordered map with this
// exact leaf-version/leaf-identity contract (see DESIGN.md) — this one
// hand-built structure is the exception to "always reach for a pack
// dependency" because nothing in the pack fits the shape the spec
// demands.
package index

import (
	"bytes"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
)

const maxLevel = 24
const levelP = 0.5

// Leaf is an opaque skip-list node. Its pointer identity is the
// leaf-identity half of the (leaf-identity, leaf-version) pair the §4.3
// contract requires; Version() is the other half.
type Leaf struct {
	key  []byte
	oid  uint64
	next []atomic.Pointer[Leaf]

	mu          sync.Mutex
	marked      atomic.Bool
	fullyLinked atomic.Bool
	version     atomic.Uint64

	isHead bool
	isTail bool
}

// Version returns the leaf's current monotonic version counter.
func (l *Leaf) Version() uint64 { return l.version.Load() }

// OID returns the OID this leaf currently maps its key to. Only valid for
// a leaf observed via Search or a scan callback, never for head/tail.
func (l *Leaf) OID() uint64 { return l.oid }

func newLeaf(key []byte, oid uint64, level int) *Leaf {
	return &Leaf{key: key, oid: oid, next: make([]atomic.Pointer[Leaf], level+1)}
}

func randomLevel() int {
	level := 0
	for level < maxLevel-1 && rand.Float64() < levelP {
		level++
	}
	return level
}

// Observation is what callers record in their absent set: which leaf was
// consulted, and what version it was at when consulted.
type Observation struct {
	Leaf    *Leaf
	Version uint64
}

// Index is a concurrent ordered key→OID map.
type Index struct {
	head *Leaf
	tail *Leaf
}

// New creates an empty ordered index.
func New() *Index {
	head := &Leaf{isHead: true, next: make([]atomic.Pointer[Leaf], maxLevel)}
	tail := &Leaf{isTail: true, next: make([]atomic.Pointer[Leaf], maxLevel)}
	head.fullyLinked.Store(true)
	tail.fullyLinked.Store(true)
	for i := range head.next {
		head.next[i].Store(tail)
	}
	return &Index{head: head, tail: tail}
}

func keyEqual(key []byte, b *Leaf) bool {
	if b.isHead || b.isTail {
		return false
	}
	return bytes.Equal(key, b.key)
}

// findPreds walks from head down to level 0, filling preds[i]/succs[i]
// with the predecessor/successor of key at each level. Returns the level
// at which an exact key match was found, or -1.
func (ix *Index) findPreds(key []byte, preds, succs []*Leaf) int {
	foundLevel := -1
	pred := ix.head
	for level := maxLevel - 1; level >= 0; level-- {
		curr := pred.next[level].Load()
		for curr != nil && keyLess2(curr, key) {
			pred = curr
			curr = pred.next[level].Load()
		}
		if foundLevel == -1 && curr != nil && keyEqual(key, curr) {
			foundLevel = level
		}
		preds[level] = pred
		succs[level] = curr
	}
	return foundLevel
}

func keyLess2(node *Leaf, key []byte) bool {
	if node.isHead {
		return true
	}
	if node.isTail {
		return false
	}
	return bytes.Compare(node.key, key) < 0
}

// Search performs a lock-free point lookup. It always returns the
// (leaf-identity, leaf-version) pair it consulted, even on a miss, so
// callers can record it in their absent set.
func (ix *Index) Search(key []byte) (found bool, oidValue uint64, obs Observation) {
	pred := ix.head
	var curr *Leaf
	for level := maxLevel - 1; level >= 0; level-- {
		curr = pred.next[level].Load()
		for curr != nil && keyLess2(curr, key) {
			pred = curr
			curr = pred.next[level].Load()
		}
	}
	if curr != nil && keyEqual(key, curr) && curr.fullyLinked.Load() && !curr.marked.Load() {
		return true, curr.oid, Observation{Leaf: curr, Version: curr.Version()}
	}
	// Miss: the observation is the predecessor we stopped at — its
	// forward link is what a concurrent insert of `key` would change.
	return false, 0, Observation{Leaf: pred, Version: pred.Version()}
}

// InsertInfo describes the structural change InsertIfAbsent made.
type InsertInfo struct {
	Leaf       *Leaf  // the mutated predecessor leaf
	OldVersion uint64 // its version before the insert
	NewVersion uint64 // its version after the insert
}

// InsertIfAbsent atomically installs key→oidValue if key is not already
// present. On success it returns the (old, new) version pair of the leaf
// it spliced into, for the caller to validate earlier absent-set
// observations against (§4.5 insert step 3).
func (ix *Index) InsertIfAbsent(key []byte, oidValue uint64) (installed bool, info InsertInfo) {
	topLevel := randomLevel()
	preds := make([]*Leaf, maxLevel)
	succs := make([]*Leaf, maxLevel)

	for {
		foundLevel := ix.findPreds(key, preds, succs)
		if foundLevel != -1 {
			found := succs[foundLevel]
			if !found.marked.Load() {
				for !found.fullyLinked.Load() {
					runtime.Gosched() // another insert of the same key is still linking
				}
				return false, InsertInfo{}
			}
			continue // marked for deletion concurrently; retry
		}

		locked := make([]*Leaf, 0, topLevel+1)
		valid := true
		var lowestPred *Leaf
		for level := 0; valid && level <= topLevel; level++ {
			pred := preds[level]
			succ := succs[level]
			if level == 0 || pred != preds[level-1] {
				pred.mu.Lock()
				locked = append(locked, pred)
			}
			valid = !pred.marked.Load() && !succ.marked.Load() && pred.next[level].Load() == succ
			if level == 0 {
				lowestPred = pred
			}
		}
		if !valid {
			for _, l := range locked {
				l.mu.Unlock()
			}
			continue
		}

		newNode := newLeaf(append([]byte(nil), key...), oidValue, topLevel)
		oldVersion := lowestPred.Version()
		for level := 0; level <= topLevel; level++ {
			newNode.next[level].Store(succs[level])
		}
		for level := 0; level <= topLevel; level++ {
			preds[level].next[level].Store(newNode)
		}
		newNode.fullyLinked.Store(true)
		newVersion := lowestPred.version.Add(1)

		for _, l := range locked {
			l.mu.Unlock()
		}
		return true, InsertInfo{Leaf: lowestPred, OldVersion: oldVersion, NewVersion: newVersion}
	}
}

// Remove logically deletes key, bumping the leaf-version of its
// predecessor so outstanding absent-set/scan observations notice the
// structural change.
func (ix *Index) Remove(key []byte) bool {
	preds := make([]*Leaf, maxLevel)
	succs := make([]*Leaf, maxLevel)
	var victim *Leaf
	marked := false

	for {
		foundLevel := ix.findPreds(key, preds, succs)
		if !marked {
			if foundLevel == -1 {
				return false
			}
			victim = succs[foundLevel]
			if !victim.fullyLinked.Load() || victim.marked.Load() {
				return false
			}
		}

		victim.mu.Lock()
		if !marked {
			if victim.marked.Load() {
				victim.mu.Unlock()
				return false
			}
			victim.marked.Store(true)
			marked = true
		}

		locked := make([]*Leaf, 0, len(victim.next))
		valid := true
		var lowestPred *Leaf
		for level := 0; valid && level < len(victim.next); level++ {
			pred := preds[level]
			if level == 0 || pred != preds[level-1] {
				pred.mu.Lock()
				locked = append(locked, pred)
			}
			valid = !pred.marked.Load() && pred.next[level].Load() == victim
			if level == 0 {
				lowestPred = pred
			}
		}
		if !valid {
			for _, l := range locked {
				l.mu.Unlock()
			}
			victim.mu.Unlock()
			continue
		}
		for level := len(victim.next) - 1; level >= 0; level-- {
			preds[level].next[level].Store(victim.next[level].Load())
		}
		lowestPred.version.Add(1)
		for _, l := range locked {
			l.mu.Unlock()
		}
		victim.mu.Unlock()
		return true
	}
}

// VisitFunc is notified of each leaf a scan passes through (before any
// key in that leaf is delivered) and each candidate (key, oid) pair. It
// returns false to stop the scan early.
type VisitFunc struct {
	Leaf func(obs Observation)
	Item func(key []byte, oidValue uint64) bool
}

// Scan walks keys in [low, high) in ascending order. A nil high means
// "to the end of the index".
func (ix *Index) Scan(low, high []byte, visit VisitFunc) {
	pred := ix.head
	for level := maxLevel - 1; level >= 0; level-- {
		curr := pred.next[level].Load()
		for curr != nil && keyLess2(curr, low) {
			pred = curr
			curr = pred.next[level].Load()
		}
	}
	curr := pred.next[0].Load()
	for curr != nil && !curr.isTail {
		if visit.Leaf != nil {
			visit.Leaf(Observation{Leaf: curr, Version: curr.Version()})
		}
		if high != nil && bytes.Compare(curr.key, high) >= 0 {
			return
		}
		if curr.fullyLinked.Load() && !curr.marked.Load() {
			if visit.Item != nil && !visit.Item(curr.key, curr.oid) {
				return
			}
		}
		curr = curr.next[0].Load()
	}
}

// RScan walks keys in [low, high] in descending order. A nil low means
// "from the beginning of the index". Because the skip list's forward
// links don't support reverse traversal directly, RScan first collects
// the level-0 chain within range (cheap: it's the same chain Scan would
// walk) and then delivers it back-to-front.
func (ix *Index) RScan(high, low []byte, visit VisitFunc) {
	var leaves []*Leaf
	pred := ix.head
	for level := maxLevel - 1; level >= 0; level-- {
		curr := pred.next[level].Load()
		for curr != nil && low != nil && keyLess2(curr, low) {
			pred = curr
			curr = pred.next[level].Load()
		}
	}
	curr := pred.next[0].Load()
	for curr != nil && !curr.isTail {
		if high != nil && bytes.Compare(curr.key, high) > 0 {
			break
		}
		leaves = append(leaves, curr)
		curr = curr.next[0].Load()
	}

	for i := len(leaves) - 1; i >= 0; i-- {
		l := leaves[i]
		if visit.Leaf != nil {
			visit.Leaf(Observation{Leaf: l, Version: l.Version()})
		}
		if l.fullyLinked.Load() && !l.marked.Load() {
			if visit.Item != nil && !visit.Item(l.key, l.oid) {
				return
			}
		}
	}
}
