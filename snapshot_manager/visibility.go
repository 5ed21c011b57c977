package snapshot

import (
	"fmt"

	clog "HelixDB/clog_manager"
	tuple "HelixDB/tuple_manager"
	txn "HelixDB/txn_manager"
	"HelixDB/types"
)

/*
The visibility decision has two genuinely different branches. The
own-transaction branch depends on command counters: the status log never says
"committed" for a transaction still running, so the viewer's own writes must
be resolved before any global status is consulted. The other-transaction
branch depends on the status log plus the snapshot's boundary and active set.
The evaluation order below is load-bearing for exactly that reason.
*/

// IsVisible decides whether one tuple version is visible under snap to the
// viewing transaction. viewer may be nil for a detached read (no
// own-transaction rule applies). At most one version per logical row can
// come out visible under any given snapshot.
func (m *Manager) IsVisible(v *tuple.Version, snap *Snapshot, viewer *txn.Transaction) (bool, error) {
	xmin := v.Xmin()

	// Step 1: the viewer created this version itself.
	if viewer != nil && viewer.IsSelf(xmin) {
		return m.ownVersionVisible(v, snap, viewer)
	}

	// Step 2: the creator's change must be committed at all.
	switch {
	case v.Hints()&tuple.FlagXminAborted != 0:
		return false, nil
	case v.Hints()&tuple.FlagXminCommitted != 0:
		// memoized, skip the status log
	default:
		st, err := m.resolveStatus(xmin)
		if err != nil {
			return false, err
		}
		switch st {
		case clog.StatusCommitted:
			v.SetXminCommitted()
		case clog.StatusAborted:
			v.SetXminAborted()
			return false, nil
		default:
			return false, nil
		}
	}

	// Step 3: committed, but not within this snapshot's view.
	if snap.Contains(xmin) || !xmin.Precedes(snap.Xmax()) {
		return false, nil
	}

	// Step 4: the creator is visible; the deleter decides.
	xmax := v.Xmax()
	if !xmax.IsValid() {
		return true, nil
	}
	if viewer != nil && viewer.IsSelf(xmax) {
		// Symmetric own-transaction deletion rule: deleted as of this command?
		cmax, err := m.ownCmax(v, viewer)
		if err != nil {
			return false, err
		}
		return cmax >= snap.CommandCutoff(), nil
	}

	switch {
	case v.Hints()&tuple.FlagXmaxAborted != 0:
		return true, nil
	case v.Hints()&tuple.FlagXmaxCommitted != 0:
		// memoized, fall through to the snapshot check
	default:
		st, err := m.resolveStatus(xmax)
		if err != nil {
			return false, err
		}
		switch st {
		case clog.StatusCommitted:
			v.SetXmaxCommitted()
		case clog.StatusAborted:
			v.SetXmaxAborted()
			return true, nil
		default:
			// Deleter still in progress: its delete is not visible.
			return true, nil
		}
	}

	// Deleter committed; is its commit visible under this snapshot?
	if snap.Contains(xmax) || !xmax.Precedes(snap.Xmax()) {
		return true, nil
	}
	return false, nil
}

// ownVersionVisible applies the own-transaction rule: created before the
// command cutoff, and not deleted by an earlier own command.
func (m *Manager) ownVersionVisible(v *tuple.Version, snap *Snapshot, viewer *txn.Transaction) (bool, error) {
	cutoff := snap.CommandCutoff()

	raw, combo := v.Command()
	cmin := raw
	if combo {
		lo, _, ok := viewer.Combo().Lookup(types.ComboID(raw))
		if !ok {
			// The raw field is a combo index; without its table entry there is
			// no command counter to compute visibility from.
			return false, fmt.Errorf("dangling combo command id %d", raw)
		}
		cmin = lo
	}
	if cmin >= cutoff {
		// Created by a later command; a cursor opened before the insert never
		// sees it.
		return false, nil
	}

	xmax := v.Xmax()
	if !xmax.IsValid() {
		return true, nil
	}
	if !viewer.IsSelf(xmax) {
		// Some other in-progress transaction claimed the version; its delete
		// cannot be visible to us yet.
		return true, nil
	}
	cmax, err := m.ownCmax(v, viewer)
	if err != nil {
		return false, err
	}
	return cmax >= cutoff, nil
}

// ownCmax resolves the deleting command of a version the viewer expired
// itself, through the combo table when the viewer also created it.
func (m *Manager) ownCmax(v *tuple.Version, viewer *txn.Transaction) (types.CommandID, error) {
	raw, combo := v.Command()
	if !combo {
		return raw, nil
	}
	_, hi, ok := viewer.Combo().Lookup(types.ComboID(raw))
	if !ok {
		return types.InvalidCommandID, fmt.Errorf("dangling combo command id %d", raw)
	}
	return hi, nil
}

// resolveStatus reads the status log and resolves the sub-committed
// intermediate state through the parent chain: a subtransaction logged
// committed is only as committed as its root.
func (m *Manager) resolveStatus(id types.TxID) (clog.Status, error) {
	for hops := 0; ; hops++ {
		if hops > 64 {
			return clog.StatusInProgress, fmt.Errorf("subtransaction parent chain too deep for %s", id)
		}
		st, err := m.statuses.GetStatus(id)
		if err != nil {
			return clog.StatusInProgress, fmt.Errorf("failed to resolve status of %s: %w", id, err)
		}
		if st != clog.StatusSubCommitted {
			return st, nil
		}
		parent, ok := m.subtrans.Parent(id)
		if !ok {
			// Parent link already gone means the tree resolved; the final
			// status write races us. Treat as still in progress, the next look
			// will see the final answer.
			return clog.StatusInProgress, nil
		}
		id = parent
	}
}

// ResolveOutcome adapts resolveStatus for the version store's pruning, which
// needs only final outcomes.
func (m *Manager) ResolveOutcome(id types.TxID) (tuple.Outcome, error) {
	st, err := m.resolveStatus(id)
	if err != nil {
		return tuple.OutcomeInProgress, err
	}
	switch st {
	case clog.StatusCommitted:
		return tuple.OutcomeCommitted, nil
	case clog.StatusAborted:
		return tuple.OutcomeAborted, nil
	default:
		return tuple.OutcomeInProgress, nil
	}
}
