// End-to-end scenarios from §8, one test per labelled scenario.
package txn

import (
	"errors"
	"testing"
)

// S1. Empty DB; T1 inserts (k=0x01, v="a") and commits; T2 with begin-LSN
// after T1's end-LSN reads k=0x01 → "a".
func TestScenarioS1_InsertThenReadAfterCommit(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	t1 := Begin(ctx, BeginOptions{Protocol: SI})
	if _, err := t1.Insert(store, []byte{0x01}, []byte("a"), false); err != nil {
		t.Fatalf("t1 insert: %v", err)
	}
	if err := t1.Commit(); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	t2 := Begin(ctx, BeginOptions{Protocol: SI})
	val, err := t2.Get(store, []byte{0x01})
	if err != nil {
		t.Fatalf("t2 get: %v", err)
	}
	if string(val) != "a" {
		t.Fatalf("got %q, want a", val)
	}
	t2.Commit()
}

// S2. T1 reads k=0x02 (absent). T2 inserts (k=0x02, v="b") and commits.
// T1 commits. Expected: T1 aborts with PHANTOM.
func TestScenarioS2_AbsentReadThenConcurrentInsertPhantoms(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	t1 := Begin(ctx, BeginOptions{Protocol: SI})
	if _, err := t1.Get(store, []byte{0x02}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("t1 get = %v, want ErrNotFound", err)
	}

	t2 := Begin(ctx, BeginOptions{Protocol: SI})
	if _, err := t2.Insert(store, []byte{0x02}, []byte("b"), false); err != nil {
		t.Fatalf("t2 insert: %v", err)
	}
	if err := t2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	err := t1.Commit()
	var abortErr *AbortError
	if !errors.As(err, &abortErr) || abortErr.Code != CodePhantom {
		t.Fatalf("t1 commit = %v, want PHANTOM", err)
	}
}

// S3. Pre-loaded (k, v="a"). T1 reads k → "a". T2 updates k to "b" and
// commits. T1 commits. Under SI: both commit.
func TestScenarioS3_SIBothCommit(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	seed := Begin(ctx, BeginOptions{Protocol: SI})
	oidValue, _ := seed.Insert(store, []byte("k"), []byte("a"), false)
	seed.Commit()

	t1 := Begin(ctx, BeginOptions{Protocol: SI})
	if _, err := t1.Get(store, []byte("k")); err != nil {
		t.Fatalf("t1 get: %v", err)
	}

	t2 := Begin(ctx, BeginOptions{Protocol: SI})
	if err := t2.Update(store, oidValue, []byte("b")); err != nil {
		t.Fatalf("t2 update: %v", err)
	}
	if err := t2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	if err := t1.Commit(); err != nil {
		t.Fatalf("t1 commit under SI should succeed, got %v", err)
	}
}

// S3 under MVOCC: T1 aborts RW since its read is now stale.
func TestScenarioS3_MVOCCReaderAborts(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	seed := Begin(ctx, BeginOptions{Protocol: MVOCC})
	oidValue, _ := seed.Insert(store, []byte("k"), []byte("a"), false)
	seed.Commit()

	t1 := Begin(ctx, BeginOptions{Protocol: MVOCC})
	if _, err := t1.Get(store, []byte("k")); err != nil {
		t.Fatalf("t1 get: %v", err)
	}

	t2 := Begin(ctx, BeginOptions{Protocol: MVOCC})
	t2.Update(store, oidValue, []byte("b"))
	if err := t2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	err := t1.Commit()
	var abortErr *AbortError
	if !errors.As(err, &abortErr) || abortErr.Code != CodeRW {
		t.Fatalf("t1 commit under MVOCC = %v, want RW", err)
	}
}

// S3 under SSN: T1 only reads k, never writes it, so it never lowers π
// (lo); with lo left unset the exclusion test can't fail regardless of
// what η (hi) was raised to, matching "if T1 read before T2's commit and
// has no write of k, T1 may commit".
func TestScenarioS3_SSNReadOnlyCommits(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	seed := Begin(ctx, BeginOptions{Protocol: SSN})
	oidValue, _ := seed.Insert(store, []byte("k"), []byte("a"), false)
	seed.Commit()

	t1 := Begin(ctx, BeginOptions{Protocol: SSN})
	if _, err := t1.Get(store, []byte("k")); err != nil {
		t.Fatalf("t1 get: %v", err)
	}

	t2 := Begin(ctx, BeginOptions{Protocol: SSN})
	t2.Update(store, oidValue, []byte("b"))
	if err := t2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	if err := t1.Commit(); err != nil {
		t.Fatalf("t1 commit under SSN (read-only) should succeed, got %v", err)
	}
}

// SSN dangerous structure: T1 reads a version committed at the higher of
// two LSNs (raising η past it) and writes on top of a version committed
// at the lower one (lowering π to it), producing η ≥ π — the rw...wr
// dependency chain SSN's exclusion test exists to reject. Driven fully
// through Begin/Get/Update/Commit so a regression in onReadSSN/
// onWriteSSN/validateSSN wiring would be caught, not just
// ssnCheckExclusion in isolation.
func TestScenarioS3_SSNDangerousStructureAborts(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	seedLow := Begin(ctx, BeginOptions{Protocol: SSN})
	lowOID, _ := seedLow.Insert(store, []byte("low"), []byte("a"), false)
	if err := seedLow.Commit(); err != nil {
		t.Fatalf("seed low commit: %v", err)
	}

	seedHigh := Begin(ctx, BeginOptions{Protocol: SSN})
	if _, err := seedHigh.Insert(store, []byte("high"), []byte("a"), false); err != nil {
		t.Fatalf("seed high insert: %v", err)
	}
	if err := seedHigh.Commit(); err != nil {
		t.Fatalf("seed high commit: %v", err)
	}

	t1 := Begin(ctx, BeginOptions{Protocol: SSN})
	if _, err := t1.Get(store, []byte("high")); err != nil {
		t.Fatalf("t1 get high: %v", err)
	}
	if err := t1.Update(store, lowOID, []byte("x")); err != nil {
		t.Fatalf("t1 update low: %v", err)
	}

	err := t1.Commit()
	var abortErr *AbortError
	if !errors.As(err, &abortErr) || abortErr.Code != CodeSerial {
		t.Fatalf("t1 commit under SSN = %v, want SERIAL", err)
	}
}

// S4. T1 updates k=0x03 to "x" (installs uncommitted version). T2
// attempts to update k=0x03: expected immediate WRITE_CONFLICT for T2.
func TestScenarioS4_ConcurrentUpdateWriteConflict(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	seed := Begin(ctx, BeginOptions{Protocol: SI})
	oidValue, _ := seed.Insert(store, []byte{0x03}, []byte("seed"), false)
	seed.Commit()

	t1 := Begin(ctx, BeginOptions{Protocol: SI})
	if err := t1.Update(store, oidValue, []byte("x")); err != nil {
		t.Fatalf("t1 update: %v", err)
	}

	t2 := Begin(ctx, BeginOptions{Protocol: SI})
	err := t2.Update(store, oidValue, []byte("y"))
	var abortErr *AbortError
	if !errors.As(err, &abortErr) || abortErr.Code != CodeWriteConflict {
		t.Fatalf("t2 update = %v, want immediate WRITE_CONFLICT", err)
	}

	t1.Commit()
}

// S5. Range [0x10, 0x20) scan by T1 returns a set. Concurrent T2 inserts
// 0x18 within that range and commits. T1 commits: PHANTOM.
func TestScenarioS5_RangeScanThenConcurrentInsertPhantoms(t *testing.T) {
	ctx := newTestContext(t)
	store := NewStore()

	seed := Begin(ctx, BeginOptions{Protocol: SI})
	seed.Insert(store, []byte{0x12}, []byte("a"), false)
	seed.Insert(store, []byte{0x15}, []byte("b"), false)
	seed.Commit()

	t1 := Begin(ctx, BeginOptions{Protocol: SI})
	var keys [][]byte
	t1.Scan(store, []byte{0x10}, []byte{0x20}, func(key, value []byte) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys in range, got %d", len(keys))
	}

	t2 := Begin(ctx, BeginOptions{Protocol: SI})
	if _, err := t2.Insert(store, []byte{0x18}, []byte("c"), false); err != nil {
		t.Fatalf("t2 insert: %v", err)
	}
	if err := t2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	err := t1.Commit()
	var abortErr *AbortError
	if !errors.As(err, &abortErr) || abortErr.Code != CodePhantom {
		t.Fatalf("t1 commit = %v, want PHANTOM", err)
	}
}
