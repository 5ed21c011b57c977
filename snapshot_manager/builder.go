package snapshot

import (
	"time"

	clog "HelixDB/clog_manager"
	txn "HelixDB/txn_manager"
	"HelixDB/types"
)

/*
Capturing a snapshot is a read of the two process-wide structures: the
allocator's boundary and the registry's active set. The read order is
load-bearing. The boundary is read first; any id allocated afterwards is >=
xmax and filtered by the boundary rule. Any id allocated before the boundary
read was registered inside the allocator's critical section, so the active
set read (which happens after) is guaranteed to include it unless it already
completed — in which case the status log has its final answer.

The horizon must never advance past an id the capture is about to include: a
transaction in the active-set copy can resolve and unregister before the
snapshot's xmin is registered, and in that window a reclamation sweep would
otherwise see neither the transaction nor the snapshot. Capture therefore
registers a provisional floor with the horizon tracker before reading the
active set, and replaces it with the true xmin at the end.
*/

// Manager builds snapshots and owns the visibility checker's collaborators.
type Manager struct {
	alloc    *txn.Allocator
	registry *txn.Registry
	subtrans *txn.SubtransMap
	statuses *clog.Manager
	horizon  *HorizonTracker
}

// NewManager wires the snapshot manager to the process-wide state.
func NewManager(alloc *txn.Allocator, registry *txn.Registry, subtrans *txn.SubtransMap, statuses *clog.Manager) *Manager {
	return &Manager{
		alloc:    alloc,
		registry: registry,
		subtrans: subtrans,
		statuses: statuses,
		horizon:  NewHorizonTracker(alloc, registry),
	}
}

// Horizon returns the tracker aggregating all held snapshot boundaries.
func (m *Manager) Horizon() *HorizonTracker { return m.horizon }

// Build captures a snapshot for owner and registers it with the horizon
// tracker. The caller decides the scope: under ReadCommitted it calls Build
// once per statement (re-registering overwrites the previous entry), under
// RepeatableRead/Serializable once per transaction.
func (m *Manager) Build(owner *txn.Transaction) *Snapshot {
	if owner != nil {
		m.horizon.RegisterFloor(owner.VirtualID())
	}

	xmax := m.alloc.PeekNext()
	active := m.registry.ActiveSet()

	xip := make(map[types.TxID]struct{}, len(active))
	xmin := xmax
	for _, id := range active {
		if !id.Precedes(xmax) {
			// Allocated between the two reads; the boundary rule covers it.
			continue
		}
		if id.Precedes(xmin) {
			xmin = id
		}
		if owner != nil && owner.IsSelf(id) {
			// Own writes resolve through the own-transaction rule.
			continue
		}
		xip[id] = struct{}{}
	}

	snap := &Snapshot{
		xmin:    xmin,
		xmax:    xmax,
		xip:     xip,
		takenAt: time.Now(),
	}
	if owner != nil {
		snap.owner = owner.VirtualID()
		snap.cutoff = owner.CurrentCommand()
	}
	m.horizon.Register(snap.owner, xmin)
	return snap
}

// Release drops the owner's snapshot registration at transaction end.
func (m *Manager) Release(owner types.VirtualTxID) {
	m.horizon.Release(owner)
}
