package snapshot

import (
	"sync"
	"time"

	"HelixDB/types"
)

// Snapshot is a point-in-time-consistent view of the data: the boundary and
// active-set information needed to classify any tuple version as visible or
// not. Invariant: xmin <= every id in xip < xmax.
type Snapshot struct {
	// xmin is the smallest id still active at capture time. Every id below it
	// had completed.
	xmin types.TxID
	// xmax is the smallest id not yet allocated at capture time — the
	// exclusive upper boundary. Ids at or above it started after the capture.
	xmax types.TxID
	// xip holds the ids active at capture time, excluding the capturing
	// transaction's own ids (own writes are resolved through the
	// own-transaction rule, not the snapshot).
	xip map[types.TxID]struct{}

	// cutoff is the command-counter boundary for own-transaction visibility.
	// A transaction-scoped snapshot keeps its xmin/xmax/xip for its whole
	// life but has the cutoff refreshed at each statement.
	cutoffMu sync.Mutex
	cutoff   types.CommandID

	owner   types.VirtualTxID
	takenAt time.Time
}

// Xmin returns the snapshot's lower boundary.
func (s *Snapshot) Xmin() types.TxID { return s.xmin }

// Xmax returns the snapshot's exclusive upper boundary.
func (s *Snapshot) Xmax() types.TxID { return s.xmax }

// Contains reports whether id was active when the snapshot was captured.
func (s *Snapshot) Contains(id types.TxID) bool {
	_, ok := s.xip[id]
	return ok
}

// ActiveCount returns the size of the active set.
func (s *Snapshot) ActiveCount() int { return len(s.xip) }

// Owner returns the virtual id of the transaction holding the snapshot.
func (s *Snapshot) Owner() types.VirtualTxID { return s.owner }

// TakenAt returns the capture instant, for snapshot age enforcement.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// CommandCutoff returns the current command-counter boundary.
func (s *Snapshot) CommandCutoff() types.CommandID {
	s.cutoffMu.Lock()
	defer s.cutoffMu.Unlock()
	return s.cutoff
}

// SetCommandCutoff refreshes the command boundary at statement start.
func (s *Snapshot) SetCommandCutoff(c types.CommandID) {
	s.cutoffMu.Lock()
	defer s.cutoffMu.Unlock()
	s.cutoff = c
}

// clone copies the identity (xmin/xmax/xip) for a new owner. Used by the
// exchange so two transactions can hold the same view independently.
func (s *Snapshot) clone(owner types.VirtualTxID, cutoff types.CommandID) *Snapshot {
	xip := make(map[types.TxID]struct{}, len(s.xip))
	for id := range s.xip {
		xip[id] = struct{}{}
	}
	return &Snapshot{
		xmin:    s.xmin,
		xmax:    s.xmax,
		xip:     xip,
		cutoff:  cutoff,
		owner:   owner,
		takenAt: s.takenAt,
	}
}
