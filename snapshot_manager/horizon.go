package snapshot

import (
	"sync"

	txn "HelixDB/txn_manager"
	"HelixDB/types"
)

// HorizonTracker aggregates the oldest boundary across all live snapshots.
// A dead version (committed xmax) is safe for the external reclaimer to
// erase only once its xmax precedes the horizon: every snapshot from that
// point forward has xmin >= horizon, so no live or future view can need it.
//
// Aggregation cost is proportional to the number of currently held snapshots
// plus active transactions, never to data volume. One idle-but-open
// transaction pins the horizon for the whole system; the reaper bounds how
// long that can last.
type HorizonTracker struct {
	mu   sync.RWMutex
	held map[types.VirtualTxID]types.TxID // snapshot owner -> snapshot xmin

	alloc    *txn.Allocator
	registry *txn.Registry
}

// NewHorizonTracker creates the tracker. Lifecycle is the server's.
func NewHorizonTracker(alloc *txn.Allocator, registry *txn.Registry) *HorizonTracker {
	return &HorizonTracker{
		held:     make(map[types.VirtualTxID]types.TxID),
		alloc:    alloc,
		registry: registry,
	}
}

// RegisterFloor records a conservative provisional boundary for owner: the
// horizon as it stands right now. Snapshot capture calls this before reading
// the active set, so a transaction that resolves mid-capture cannot let the
// horizon advance past an id the snapshot is about to include; the capture
// then replaces the floor with the snapshot's true xmin. The floor is always
// low enough: an id already active is covered by OldestActive, and an id not
// yet registered is not yet allocated either, so it sits at or above the
// allocator boundary the floor falls back to.
func (h *HorizonTracker) RegisterFloor(owner types.VirtualTxID) {
	h.Register(owner, h.ComputeHorizon())
}

// Register records (or replaces) the snapshot boundary held by owner.
func (h *HorizonTracker) Register(owner types.VirtualTxID, xmin types.TxID) {
	if !owner.IsSet() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.held[owner] = xmin
}

// Release drops owner's registration at transaction end.
func (h *HorizonTracker) Release(owner types.VirtualTxID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.held, owner)
}

// HeldCount returns the number of currently registered snapshots.
func (h *HorizonTracker) HeldCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.held)
}

// ComputeHorizon returns the minimum xmin across all held snapshots and all
// in-progress transactions (which bound the horizon through their own ids
// even without an explicit snapshot). With nothing live, the horizon is the
// next id the allocator would hand out.
func (h *HorizonTracker) ComputeHorizon() types.TxID {
	horizon := types.InvalidTxID

	h.mu.RLock()
	for _, xmin := range h.held {
		if horizon == types.InvalidTxID || xmin.Precedes(horizon) {
			horizon = xmin
		}
	}
	h.mu.RUnlock()

	if oldest := h.registry.OldestActive(); oldest.IsValid() {
		if horizon == types.InvalidTxID || oldest.Precedes(horizon) {
			horizon = oldest
		}
	}

	if horizon == types.InvalidTxID {
		return h.alloc.PeekNext()
	}
	return horizon
}
