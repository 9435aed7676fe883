package mvccdb

import (
	"time"

	"github.com/oltpcore/mvccdb/internal/txn"
)

// EngineOptions configures a new Engine.
type EngineOptions struct {
	// LogPath is the file the engine's write-ahead log is opened against.
	LogPath string
	// EpochTickInterval controls how often the background reclamation
	// ticker checks for quiescence. Shorter intervals reclaim memory
	// sooner at the cost of more background wakeups.
	EpochTickInterval time.Duration
	// CompactInterval controls how often the engine sweeps every table's
	// version chains down to what's still reachable from a live
	// transaction's snapshot. Shorter intervals bound chain growth more
	// tightly at the cost of more background sweeps.
	CompactInterval time.Duration
}

// DefaultEngineOptions returns sane defaults for a new Engine logging to
// logPath.
func DefaultEngineOptions(logPath string) EngineOptions {
	return EngineOptions{
		LogPath:           logPath,
		EpochTickInterval: 10 * time.Millisecond,
		CompactInterval:   100 * time.Millisecond,
	}
}

// TxnOptions controls how a transaction begins.
type TxnOptions struct {
	ReadOnly bool
	Protocol Protocol
}

// Protocol selects the isolation variant a transaction runs under.
type Protocol = txn.Protocol

// The supported isolation protocols (§1, §9).
const (
	SI    = txn.SI
	SSI   = txn.SSI
	SSN   = txn.SSN
	MVOCC = txn.MVOCC
)

// TableKind names the structure backing a table. Only Ordered is
// implemented; the type exists so a second backing structure could be
// added later without changing CreateTable's signature.
type TableKind int

const (
	// Ordered backs a table with the skip-list ordered index (§4.3):
	// lock-free lookups, per-node locks on insert and remove.
	Ordered TableKind = iota
)
