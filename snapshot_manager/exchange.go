package snapshot

import (
	"sync"

	txn "HelixDB/txn_manager"
	"HelixDB/types"

	"github.com/google/uuid"
)

/*
Snapshot exchange lets independent transactions agree on one consistent view:
the exporter publishes its snapshot's identity under an opaque token, the
importer adopts the identical xmin/xmax/xip. Tokens are only meaningful while
the exporting transaction stays open — the moment it ends, the horizon may
advance past versions the shared view still needs.
*/

type exportEntry struct {
	snap     *Snapshot
	exporter *txn.Transaction
}

// Exchange is the process-wide token table.
type Exchange struct {
	mu     sync.Mutex
	tokens map[string]exportEntry
}

// NewExchange creates an empty exchange.
func NewExchange() *Exchange {
	return &Exchange{tokens: make(map[string]exportEntry)}
}

// Export publishes the exporter's snapshot and returns its token. Only
// RepeatableRead/Serializable transactions hold a stable transaction-scoped
// snapshot worth sharing; anything else is an isolation mismatch.
func (e *Exchange) Export(exporter *txn.Transaction, snap *Snapshot) (string, error) {
	if !exporter.Isolation().UsesTransactionSnapshot() {
		return "", types.ErrIsolationMismatch
	}

	// The exported copy must hide the exporter's own in-progress writes from
	// importers, so the exporter's ids go into the copy's active set. (The
	// exporter's own view keeps resolving them through the own-transaction
	// rule instead.)
	shared := snap.clone(exporter.VirtualID(), types.FirstCommandID)
	for _, id := range exporter.OwnIDs() {
		if id.Precedes(shared.xmax) {
			shared.xip[id] = struct{}{}
		}
	}

	token := uuid.NewString()
	e.mu.Lock()
	e.tokens[token] = exportEntry{snap: shared, exporter: exporter}
	e.mu.Unlock()
	return token, nil
}

// Import adopts the identified snapshot for the importing transaction,
// guaranteeing both transactions observe an identical row-visibility view.
// Fails with ErrIsolationMismatch for a ReadCommitted importer (each of its
// statements would rebuild its own snapshot, defeating the purpose) and with
// ErrInvalidSnapshotToken when the token is unknown or its exporter ended.
func (e *Exchange) Import(importer *txn.Transaction, token string) (*Snapshot, error) {
	if !importer.Isolation().UsesTransactionSnapshot() {
		return nil, types.ErrIsolationMismatch
	}

	e.mu.Lock()
	entry, ok := e.tokens[token]
	e.mu.Unlock()
	if !ok || entry.exporter.State() != txn.StateActive {
		return nil, types.ErrInvalidSnapshotToken
	}

	return entry.snap.clone(importer.VirtualID(), importer.CurrentCommand()), nil
}

// DropExporter invalidates every token published by the ending transaction.
func (e *Exchange) DropExporter(exporter *txn.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for token, entry := range e.tokens {
		if entry.exporter == exporter {
			delete(e.tokens, token)
		}
	}
}
