package txn

import (
	"context"

	"HelixDB/types"
)

/*
The registry is initialized at process start and torn down at shutdown; its
lifecycle is the server's, not any transaction's. All access goes through the
narrow interface below — register on first write, unregister at resolution,
point-in-time copies for snapshot construction — and every critical section
is short: nothing transaction-duration is ever held here.
*/

// NewRegistry creates the process-wide active transaction table.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[types.TxID]*registryEntry),
	}
}

// Register adds a newly promoted top-level transaction. Called under the same
// allocator critical section that assigned the id, so no snapshot can observe
// an allocated-but-unregistered id.
func (r *Registry) Register(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t.ID()] = &registryEntry{
		txn:  t,
		top:  t.ID(),
		done: make(chan struct{}),
	}
}

// RegisterSub adds a subtransaction id under its top-level transaction. The
// sub shares the top's done channel: writers blocked on any id of the tree
// wake when the top level resolves.
func (r *Registry) RegisterSub(subID types.TxID, t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	top, ok := r.entries[t.ID()]
	if !ok {
		return
	}
	top.subIDs = append(top.subIDs, subID)
	r.entries[subID] = &registryEntry{
		txn:  t,
		top:  t.ID(),
		done: top.done,
	}
}

// UnregisterSub removes a rolled-back subtransaction id. The shared done
// channel stays open; a writer blocked on the removed id re-checks when the
// top level ends, which is conservative but correct.
func (r *Registry) UnregisterSub(subID types.TxID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, subID)
}

// Unregister removes a resolved top-level transaction and all its
// subtransaction ids, waking every writer blocked on any of them. The status
// log entry must already be written: a waiter that wakes here immediately
// consults the log.
func (r *Registry) Unregister(topID types.TxID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	top, ok := r.entries[topID]
	if !ok {
		return
	}
	for _, sub := range top.subIDs {
		delete(r.entries, sub)
	}
	delete(r.entries, topID)
	close(top.done)
}

// ActiveSet returns a point-in-time copy of every registered real id,
// subtransactions included. This is the raw material of snapshot
// construction.
func (r *Registry) ActiveSet() []types.TxID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]types.TxID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// OldestActive returns the smallest registered id, or InvalidTxID when the
// registry is empty. Transactions holding no explicit snapshot still bound
// the horizon through this.
func (r *Registry) OldestActive() types.TxID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	oldest := types.InvalidTxID
	for id := range r.entries {
		if oldest == types.InvalidTxID || id.Precedes(oldest) {
			oldest = id
		}
	}
	return oldest
}

// IsActive reports whether the id (top-level or sub) is currently registered.
func (r *Registry) IsActive(id types.TxID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Get returns the transaction owning the id, or nil.
func (r *Registry) Get(id types.TxID) *Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.txn
	}
	return nil
}

// Active returns the distinct top-level transactions currently registered.
// The reaper scans this.
func (r *Registry) Active() []*Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	txns := make([]*Transaction, 0, len(r.entries))
	for id, e := range r.entries {
		if id == e.top {
			txns = append(txns, e.txn)
		}
	}
	return txns
}

// WaitForEnd blocks until the transaction tree owning id resolves (commit or
// abort), or ctx is done. Returns immediately if the id is not registered.
// This is the writer-blocks-on-writer primitive: the caller re-evaluates
// visibility afterwards in light of the now-known outcome.
func (r *Registry) WaitForEnd(ctx context.Context, id types.TxID) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
