// Package epoch implements a process-wide quiescent-state reclamation
// scheme.
//
// What: threads (here, goroutines acting on behalf of a transaction)
// register a Guard around any access to shared versioned memory. A
// background ticker advances the global epoch once every registered guard
// has been seen quiescent at least once since the last tick, and only then
// runs the free callbacks that were deferred against the epoch that just
// closed out.
// How: a mutex-guarded registry of active guards (each recording the
// epoch it entered under), one global counter, and a map of pending-free
// buckets keyed by epoch. Modeled on the worker-pool lifecycle (ctx/cancel/WaitGroup) the
// rest of this module uses for background goroutines.
// Why: readers never block writers and writers never block readers; the
// cost of safe memory reclamation is paid by a background goroutine
// instead of the hot path.
package epoch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Epoch is a monotonically increasing quiescent-period identifier.
type Epoch uint64

// Manager owns the global epoch counter, the registry of active guards,
// and the deferred-free queues.
type Manager struct {
	global atomic.Uint64 // current global epoch

	mu     sync.Mutex
	active map[*Guard]struct{} // currently entered guards

	pendingMu sync.Mutex
	pending   map[Epoch][]func() // free callbacks keyed by the epoch they were deferred under

	tickCancel context.CancelFunc
	tickWG     sync.WaitGroup
}

// NewManager creates a Manager at global epoch 0 and starts its background
// ticker at the given interval. Call Close to stop the ticker.
func NewManager(tickInterval time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		active:     make(map[*Guard]struct{}),
		pending:    make(map[Epoch][]func()),
		tickCancel: cancel,
	}
	if tickInterval <= 0 {
		tickInterval = 10 * time.Millisecond
	}
	m.tickWG.Add(1)
	go m.tickLoop(ctx, tickInterval)
	log.Printf("epoch: reclamation ticker started (interval=%s)", tickInterval)
	return m
}

// Guard represents one caller's membership in the current epoch. Zero
// value is not usable; obtain one via Manager.Enter.
type Guard struct {
	m      *Manager
	epoch  Epoch
	active bool
}

// Enter marks the caller as active in the current global epoch. The
// returned Guard must be released with Exit — typically via defer —
// before the caller crosses any boundary where it no longer needs to
// dereference version pointers.
func (m *Manager) Enter() *Guard {
	g := &Guard{m: m, epoch: Epoch(m.global.Load()), active: true}
	m.mu.Lock()
	m.active[g] = struct{}{}
	m.mu.Unlock()
	return g
}

// Epoch returns the epoch this guard entered under.
func (g *Guard) Epoch() Epoch { return g.epoch }

// Exit releases the guard's membership in its epoch. Exit is idempotent.
func (g *Guard) Exit() {
	if !g.active {
		return
	}
	g.active = false
	g.m.mu.Lock()
	delete(g.m.active, g)
	g.m.mu.Unlock()
}

// DeferFree queues fn to run only after every guard that was active at or
// before targetEpoch has exited. fn should drop the last reference to the
// freed object (and may update statistics); it must not itself call Enter
// or DeferFree.
func (m *Manager) DeferFree(targetEpoch Epoch, fn func()) {
	m.pendingMu.Lock()
	m.pending[targetEpoch] = append(m.pending[targetEpoch], fn)
	m.pendingMu.Unlock()
}

// Current returns the current global epoch.
func (m *Manager) Current() Epoch { return Epoch(m.global.Load()) }

// Tick advances the global epoch only if no guard is currently active
// (every active guard entered at or before the current epoch, so any one
// of them straddles the boundary), and then drains any pending frees
// whose target epoch is at or before the epoch that just closed. It
// is safe to call Tick manually in tests; the background loop calls it on
// its own schedule otherwise.
func (m *Manager) Tick() {
	m.mu.Lock()
	current := Epoch(m.global.Load())
	quiesced := true
	for g := range m.active {
		if g.epoch <= current {
			quiesced = false
			break
		}
	}
	if quiesced {
		m.global.Add(1)
	}
	m.mu.Unlock()

	if !quiesced {
		return
	}

	m.pendingMu.Lock()
	var ready []func()
	for e, fns := range m.pending {
		if e <= current {
			ready = append(ready, fns...)
			delete(m.pending, e)
		}
	}
	m.pendingMu.Unlock()

	for _, fn := range ready {
		fn()
	}
}

func (m *Manager) tickLoop(ctx context.Context, interval time.Duration) {
	defer m.tickWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Close stops the background ticker and waits for it to exit. Any frees
// still pending are discarded (the process is shutting down).
func (m *Manager) Close() {
	m.tickCancel()
	m.tickWG.Wait()
	log.Printf("epoch: reclamation ticker stopped at epoch %d", m.Current())
}
