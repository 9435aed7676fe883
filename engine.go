package mvccdb

import (
	"context"
	"fmt"
	stdlog "log"
	"sync"
	"time"

	"github.com/oltpcore/mvccdb/internal/epoch"
	"github.com/oltpcore/mvccdb/internal/txn"
	"github.com/oltpcore/mvccdb/internal/walog"
)

// Engine is the top-level handle: it owns the shared epoch manager, the
// write-ahead log, the XID registry, and the table registry. Grounded in
// the teacher's CatalogManager (storage/catalog.go) for the
// registration/name-exists shape, stripped of SQL column metadata since
// tables here are opaque key→value stores (§6).
type Engine struct {
	epochs *epoch.Manager
	log    *walog.Log
	txnCtx *txn.Context

	mu     sync.RWMutex
	tables map[string]*Table

	compactCancel context.CancelFunc
	compactWG     sync.WaitGroup
}

// NewEngine opens the log at opts.LogPath, starts the background epoch
// reclamation ticker and version-chain compaction sweep, and returns a
// ready-to-use Engine. The caller must call Close when done.
func NewEngine(opts EngineOptions) (*Engine, error) {
	log, err := walog.Open(opts.LogPath)
	if err != nil {
		return nil, fmt.Errorf("mvccdb: open log: %w", err)
	}
	epochs := epoch.NewManager(opts.EpochTickInterval)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		epochs:        epochs,
		log:           log,
		txnCtx:        txn.NewContext(epochs, log),
		tables:        make(map[string]*Table),
		compactCancel: cancel,
	}

	interval := opts.CompactInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	e.compactWG.Add(1)
	go e.compactLoop(ctx, interval)

	stdlog.Printf("mvccdb: engine opened (log=%s)", opts.LogPath)
	return e, nil
}

// compactLoop periodically sweeps every table's version chains down to
// the reclamation horizon (§4.1). Mirrors the teacher's ticker-driven
// background loop shape (storage/concurrency.go's BatchProcessor.Run).
func (e *Engine) compactLoop(ctx context.Context, interval time.Duration) {
	defer e.compactWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.compactOnce()
		}
	}
}

func (e *Engine) compactOnce() {
	horizon := e.txnCtx.Horizon()

	e.mu.RLock()
	tables := make([]*Table, 0, len(e.tables))
	for _, t := range e.tables {
		tables = append(tables, t)
	}
	e.mu.RUnlock()

	total := 0
	for _, t := range tables {
		total += txn.CompactStore(t.store, e.epochs, horizon)
	}
	if total > 0 {
		stdlog.Printf("mvccdb: reclaimed %d stale versions below LSN %d", total, horizon)
	}
}

// Close stops the background reclamation ticker and compaction sweep,
// then closes the log. Outstanding transactions are not aborted;
// callers must finish them first.
func (e *Engine) Close() error {
	e.compactCancel()
	e.compactWG.Wait()
	e.epochs.Close()
	stdlog.Printf("mvccdb: engine closed")
	return e.log.Close()
}

// CreateTable registers a new table under name. kind is currently always
// Ordered; see TableKind.
func (e *Engine) CreateTable(name string, kind TableKind) (*Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[name]; exists {
		return nil, ErrTableExists
	}
	t := &Table{
		name:  name,
		kind:  kind,
		store: txn.NewStore(),
	}
	e.tables[name] = t
	return t, nil
}

// Table looks up a previously created table by name.
func (e *Engine) Table(name string) (*Table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

// Begin starts a new transaction dispatched to opts.Protocol, entering
// the engine's current reclamation epoch (§4.5 begin).
func (e *Engine) Begin(opts TxnOptions) *Txn {
	inner := txn.Begin(e.txnCtx, txn.BeginOptions{ReadOnly: opts.ReadOnly, Protocol: opts.Protocol})
	return &Txn{inner: inner}
}
