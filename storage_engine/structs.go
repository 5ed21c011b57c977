package storageengine

import (
	"log/slog"
	"sync"

	clog "HelixDB/clog_manager"
	"HelixDB/config"
	snapshot "HelixDB/snapshot_manager"
	tuple "HelixDB/tuple_manager"
	txn "HelixDB/txn_manager"
	"HelixDB/types"
)

// Engine composes the MVCC core: the id allocator, the active transaction
// registry, the status log, the snapshot machinery and the per-table version
// stores. One Engine per process; its lifecycle is the server's.
type Engine struct {
	cfg config.Config
	log *slog.Logger

	alloc    *txn.Allocator
	registry *txn.Registry
	subtrans *txn.SubtransMap
	statuses *clog.Manager
	snapmgr  *snapshot.Manager
	exchange *snapshot.Exchange

	detector ConflictDetector

	tablesMu sync.RWMutex
	tables   map[string]*tuple.Store

	// open tracks every in-progress transaction (read-only ones included,
	// which the registry never sees) so the reaper can find horizon pinners.
	openMu sync.Mutex
	open   map[types.VirtualTxID]*txn.Transaction
}

// Session is one client's handle onto the engine. A session runs at most one
// top-level transaction at a time — nested Begin is a usage error, savepoints
// are the only sanctioned nesting — and is driven by a single goroutine.
type Session struct {
	eng *Engine

	txn *txn.Transaction
	// txnSnap is the transaction-scoped snapshot under
	// RepeatableRead/Serializable, built at the first statement (or adopted
	// via import) and held for the transaction's lifetime.
	txnSnap *snapshot.Snapshot
}

// ConflictDetector is the hook a Serializable transaction registers with.
// Full predicate-based conflict detection is an external collaborator; the
// engine only honors the contract that PreCommit may force an abort that the
// client retries from the start.
type ConflictDetector interface {
	RegisterSnapshot(owner types.VirtualTxID, snap *snapshot.Snapshot)
	// PreCommit may return ErrSerializationFailure (or a wrap of it) to veto
	// the commit.
	PreCommit(owner types.VirtualTxID) error
	Finish(owner types.VirtualTxID)
}

type noopDetector struct{}

func (noopDetector) RegisterSnapshot(types.VirtualTxID, *snapshot.Snapshot) {}
func (noopDetector) PreCommit(types.VirtualTxID) error                      { return nil }
func (noopDetector) Finish(types.VirtualTxID)                               {}

// Stats is a point-in-time summary of the engine's shared state.
type Stats struct {
	ActiveTransactions int
	HeldSnapshots      int
	Horizon            types.TxID
	NextTxID           types.TxID
	Tables             int
	ClogCacheHits      uint64
	ClogCacheMisses    uint64
}
