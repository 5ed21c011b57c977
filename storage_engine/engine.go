package storageengine

import (
	"fmt"
	"log/slog"

	clog "HelixDB/clog_manager"
	"HelixDB/config"
	snapshot "HelixDB/snapshot_manager"
	tuple "HelixDB/tuple_manager"
	txn "HelixDB/txn_manager"
	"HelixDB/types"
)

/*
The main file of the storage engine: opens the durable pieces (status log,
allocator watermark), closes out transactions that were alive at crash time,
and wires the process-wide shared state together. Everything after Open is
reachable only through Sessions and the reclaimer-facing methods.
*/

// Open initializes the engine under cfg.DataDir.
func Open(cfg config.Config) (*Engine, error) {
	alloc, err := txn.NewAllocator(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init allocator: %w", err)
	}

	statuses, err := clog.Open(cfg.DataDir, cfg.ClogCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open status log: %w", err)
	}

	// A transaction alive at crash time never got its outcome written, which
	// makes it aborted by definition.
	marked, err := statuses.MarkCrashedAborted(alloc.PeekNext())
	if err != nil {
		statuses.Close()
		return nil, fmt.Errorf("failed to close out crashed transactions: %w", err)
	}

	registry := txn.NewRegistry()
	subtrans := txn.NewSubtransMap()

	e := &Engine{
		cfg:      cfg,
		log:      slog.Default().With("component", "engine"),
		alloc:    alloc,
		registry: registry,
		subtrans: subtrans,
		statuses: statuses,
		snapmgr:  snapshot.NewManager(alloc, registry, subtrans, statuses),
		exchange: snapshot.NewExchange(),
		detector: noopDetector{},
		tables:   make(map[string]*tuple.Store),
		open:     make(map[types.VirtualTxID]*txn.Transaction),
	}
	if marked > 0 {
		e.log.Info("closed out crashed transactions", "count", marked)
	}
	return e, nil
}

// SetConflictDetector installs the external Serializable conflict detector.
// Must be called before any Serializable transaction begins.
func (e *Engine) SetConflictDetector(d ConflictDetector) {
	if d == nil {
		d = noopDetector{}
	}
	e.detector = d
}

// NewSession creates a client handle. Sessions are cheap; one per connection.
func (e *Engine) NewSession() *Session {
	return &Session{eng: e}
}

// GetHorizon returns the current reclamation threshold: the oldest snapshot
// boundary still held anywhere. A dead version is safe to erase only once
// its committed xmax precedes this.
func (e *Engine) GetHorizon() types.TxID {
	return e.snapmgr.Horizon().ComputeHorizon()
}

// PruneDeadVersions erases versions no live or future snapshot can need,
// across all tables. This is the in-store primitive the external reclamation
// sweep drives; scheduling it is not the engine's business.
func (e *Engine) PruneDeadVersions() (int, error) {
	horizon := e.GetHorizon()

	e.tablesMu.RLock()
	stores := make([]*tuple.Store, 0, len(e.tables))
	for _, s := range e.tables {
		stores = append(stores, s)
	}
	e.tablesMu.RUnlock()

	total := 0
	for _, s := range stores {
		n, err := s.Prune(horizon, e.snapmgr.ResolveOutcome)
		total += n
		if err != nil {
			return total, fmt.Errorf("prune failed: %w", err)
		}
	}
	if total > 0 {
		e.log.Info("pruned dead versions", "count", total, "horizon", horizon)
	}
	return total, nil
}

// Stats returns a point-in-time summary.
func (e *Engine) Stats() Stats {
	e.openMu.Lock()
	active := len(e.open)
	e.openMu.Unlock()

	e.tablesMu.RLock()
	tables := len(e.tables)
	e.tablesMu.RUnlock()

	m := e.statuses.Metrics()
	return Stats{
		ActiveTransactions: active,
		HeldSnapshots:      e.snapmgr.Horizon().HeldCount(),
		Horizon:            e.GetHorizon(),
		NextTxID:           e.alloc.PeekNext(),
		Tables:             tables,
		ClogCacheHits:      m.Hits(),
		ClogCacheMisses:    m.Misses(),
	}
}

// Close releases the durable pieces. Open transactions are simply dropped:
// their statuses were never written, so the next Open counts them aborted.
func (e *Engine) Close() error {
	if err := e.statuses.Close(); err != nil {
		return fmt.Errorf("failed to close status log: %w", err)
	}
	return nil
}

// table returns (creating if needed) the version store for a table.
func (e *Engine) table(name string) *tuple.Store {
	e.tablesMu.RLock()
	s, ok := e.tables[name]
	e.tablesMu.RUnlock()
	if ok {
		return s
	}

	e.tablesMu.Lock()
	defer e.tablesMu.Unlock()
	if s, ok = e.tables[name]; !ok {
		s = tuple.NewStore()
		e.tables[name] = s
	}
	return s
}

func (e *Engine) trackOpen(t *txn.Transaction) {
	e.openMu.Lock()
	e.open[t.VirtualID()] = t
	e.openMu.Unlock()
}

func (e *Engine) untrackOpen(t *txn.Transaction) {
	e.openMu.Lock()
	delete(e.open, t.VirtualID())
	e.openMu.Unlock()
}
