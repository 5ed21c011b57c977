package storageengine

import (
	"fmt"
	"time"

	clog "HelixDB/clog_manager"
	snapshot "HelixDB/snapshot_manager"
	txn "HelixDB/txn_manager"
	"HelixDB/types"
)

// Begin starts a top-level transaction at the given isolation level. A second
// Begin while one is open is a usage error; savepoints are the only
// sanctioned nesting mechanism.
func (s *Session) Begin(isolation types.IsolationLevel) error {
	if s.txn != nil && s.txn.State() != txn.StateCommitted && s.txn.State() != txn.StateAborted {
		return types.ErrNestedTransaction
	}

	s.txn = txn.NewTransaction(s.eng.alloc.AssignVirtual(), isolation)
	s.txnSnap = nil
	s.eng.trackOpen(s.txn)
	return nil
}

// BeginReadOnly starts a transaction that rejects all writes. Read-only
// transactions never take a real id, so they cost nothing in the status log
// and show up in snapshots only through the horizon they pin.
func (s *Session) BeginReadOnly(isolation types.IsolationLevel) error {
	if err := s.Begin(isolation); err != nil {
		return err
	}
	s.txn.SetReadOnly()
	return nil
}

// AcquireSnapshot returns the snapshot the next statement would run under:
// a fresh one per call under ReadCommitted, the transaction's single
// snapshot under RepeatableRead/Serializable. Idempotent within a scope.
func (s *Session) AcquireSnapshot() (*snapshot.Snapshot, error) {
	if err := s.ensureActive(); err != nil {
		return nil, err
	}
	return s.statementSnapshot()
}

// Commit ends the transaction, making all its writes durable and visible to
// future snapshots at once. Committing a failed transaction aborts it
// instead and reports ErrTransactionAborted.
func (s *Session) Commit() error {
	if s.txn == nil {
		return types.ErrNoTransaction
	}

	switch s.txn.State() {
	case txn.StateCommitted, txn.StateAborted:
		s.txn = nil
		return types.ErrNoTransaction
	case txn.StateFailed:
		err := s.finish(txn.StateAborted)
		if err != nil {
			return err
		}
		return types.ErrTransactionAborted
	}

	if s.txn.Isolation() == types.Serializable {
		if err := s.eng.detector.PreCommit(s.txn.VirtualID()); err != nil {
			if ferr := s.finish(txn.StateAborted); ferr != nil {
				return ferr
			}
			return err
		}
	}
	return s.finish(txn.StateCommitted)
}

// Abort ends the transaction, discarding all its writes. The tuple versions
// it created remain physically present but permanently invisible.
func (s *Session) Abort() error {
	if s.txn == nil {
		return types.ErrNoTransaction
	}
	return s.finish(txn.StateAborted)
}

// Savepoint opens a subtransaction. The child id is allocated eagerly and is
// always greater than its parent's, both coming from the same monotonic
// allocator with the parent assigned first.
func (s *Session) Savepoint(name string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	s.txn.Touch()

	if err := s.ensureWriteID(); err != nil {
		return err
	}
	return s.beginSub(name)
}

// ReleaseSavepoint commits the named subtransaction (and everything nested
// inside it). Its writes stay contingent on the top-level commit: the status
// log records it sub-committed until the root resolves.
func (s *Session) ReleaseSavepoint(name string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	s.txn.Touch()

	released, ok := s.txn.ReleaseSubsTo(name)
	if !ok {
		return types.ErrNoSuchSavepoint
	}
	for _, id := range released {
		if err := s.eng.statuses.SetStatus(id, clog.StatusSubCommitted); err != nil {
			return fmt.Errorf("failed to sub-commit %s: %w", id, err)
		}
	}
	return nil
}

// RollbackTo aborts the named subtransaction and all of its descendants,
// then re-establishes the savepoint with a fresh subtransaction. Versions
// created under the aborted ids remain physically present but become
// permanently invisible, to every snapshot of every transaction including
// this one. RollbackTo also clears the failed state after a statement error.
func (s *Session) RollbackTo(name string) error {
	if s.txn == nil {
		return types.ErrNoTransaction
	}
	switch s.txn.State() {
	case txn.StateCommitted, txn.StateAborted:
		return types.ErrNoTransaction
	}
	s.txn.Touch()

	aborted, ok := s.txn.AbortSubsTo(name)
	if !ok {
		return types.ErrNoSuchSavepoint
	}
	for _, id := range aborted {
		if err := s.eng.statuses.SetStatus(id, clog.StatusAborted); err != nil {
			return fmt.Errorf("failed to abort subtransaction %s: %w", id, err)
		}
		s.eng.registry.UnregisterSub(id)
	}
	s.eng.subtrans.Remove(aborted...)

	s.txn.SetState(txn.StateActive)
	return s.beginSub(name)
}

// ExportSnapshot publishes the transaction's snapshot identity as an opaque
// token another transaction can import, so both observe an identical
// row-visibility view. Valid only while this transaction stays open.
func (s *Session) ExportSnapshot() (string, error) {
	if err := s.ensureActive(); err != nil {
		return "", err
	}
	if !s.txn.Isolation().UsesTransactionSnapshot() {
		return "", types.ErrIsolationMismatch
	}

	snap, err := s.statementSnapshot()
	if err != nil {
		return "", err
	}
	return s.eng.exchange.Export(s.txn, snap)
}

// ImportSnapshot adopts the identified snapshot as this transaction's view.
// Must run before the transaction captures its own snapshot.
func (s *Session) ImportSnapshot(token string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if s.txnSnap != nil {
		return fmt.Errorf("cannot import a snapshot after the transaction already holds one")
	}

	snap, err := s.eng.exchange.Import(s.txn, token)
	if err != nil {
		return err
	}
	s.txnSnap = snap
	s.eng.snapmgr.Horizon().Register(s.txn.VirtualID(), snap.Xmin())
	return nil
}

// ensureActive verifies a usable transaction is open.
func (s *Session) ensureActive() error {
	if s.txn == nil {
		return types.ErrNoTransaction
	}
	switch s.txn.State() {
	case txn.StateActive:
		return nil
	case txn.StateFailed:
		return types.ErrTransactionAborted
	default:
		return types.ErrNoTransaction
	}
}

// statementSnapshot returns the snapshot for the statement starting now,
// refreshing the command cutoff and enforcing the maximum snapshot age.
func (s *Session) statementSnapshot() (*snapshot.Snapshot, error) {
	if !s.txn.Isolation().UsesTransactionSnapshot() {
		return s.eng.snapmgr.Build(s.txn), nil
	}

	if s.txnSnap == nil {
		s.txnSnap = s.eng.snapmgr.Build(s.txn)
		if s.txn.Isolation() == types.Serializable {
			s.eng.detector.RegisterSnapshot(s.txn.VirtualID(), s.txnSnap)
		}
	}
	if age := time.Since(s.txnSnap.TakenAt()); age > s.eng.cfg.MaxSnapshotAge {
		s.txn.MarkFailed()
		return nil, fmt.Errorf("snapshot is %s old: %w", age.Round(time.Second), types.ErrSnapshotTooOld)
	}
	s.txnSnap.SetCommandCutoff(s.txn.CurrentCommand())
	return s.txnSnap, nil
}

// ensureWriteID lazily promotes the transaction with its real id, inside the
// allocator's critical section so no snapshot can see the id unregistered.
func (s *Session) ensureWriteID() error {
	if s.txn.ReadOnly() {
		return types.ErrReadOnlyTransaction
	}
	if s.txn.HasRealID() {
		return nil
	}
	_, err := s.eng.alloc.AssignRealWith(func(id types.TxID) {
		s.txn.AssignID(id)
		s.eng.registry.Register(s.txn)
	})
	if err != nil {
		return fmt.Errorf("failed to assign transaction id: %w", err)
	}
	return nil
}

// beginSub allocates and wires a subtransaction under the current stamp.
func (s *Session) beginSub(name string) error {
	parent := s.txn.CurrentStamp()
	_, err := s.eng.alloc.AssignRealWith(func(id types.TxID) {
		s.eng.subtrans.SetParent(id, parent)
		s.eng.registry.RegisterSub(id, s.txn)
		s.txn.BeginSub(name, id)
	})
	if err != nil {
		return fmt.Errorf("failed to begin subtransaction: %w", err)
	}
	return nil
}

// finish resolves the transaction one way or the other and releases every
// piece of process-wide state it holds.
func (s *Session) finish(target txn.State) error {
	t := s.txn
	s.txn = nil
	s.txnSnap = nil

	if !t.TryFinish(target) {
		// The reaper (or a racing path) already resolved it.
		return nil
	}
	return s.eng.resolve(t, target)
}

// resolve writes the outcome and tears down registrations. Shared by the
// session paths and the reaper's force-abort.
func (e *Engine) resolve(t *txn.Transaction, target txn.State) error {
	defer func() {
		e.snapmgr.Release(t.VirtualID())
		e.exchange.DropExporter(t)
		e.detector.Finish(t.VirtualID())
		e.untrackOpen(t)
	}()

	if !t.HasRealID() {
		// Read-only: nothing was written, nothing to log.
		return nil
	}

	subs := append(t.CompletedSubIDs(), t.OpenSubIDs()...)
	top := t.ID()

	if target == txn.StateCommitted {
		// Children first as sub-committed, then the root's commit point, then
		// the children's rewrite to committed. A reader catching the middle
		// state resolves sub-committed through the parent chain and lands on
		// the root's answer either way.
		for _, id := range subs {
			if err := e.statuses.SetStatus(id, clog.StatusSubCommitted); err != nil {
				return fmt.Errorf("commit failed for subtransaction %s: %w", id, err)
			}
		}
		if err := e.statuses.SetStatus(top, clog.StatusCommitted); err != nil {
			return fmt.Errorf("commit failed for transaction %s: %w", top, err)
		}
		for _, id := range subs {
			if err := e.statuses.SetStatus(id, clog.StatusCommitted); err != nil {
				return fmt.Errorf("commit rewrite failed for subtransaction %s: %w", id, err)
			}
		}
	} else {
		for _, id := range subs {
			if err := e.statuses.SetStatus(id, clog.StatusAborted); err != nil {
				return fmt.Errorf("abort failed for subtransaction %s: %w", id, err)
			}
		}
		if err := e.statuses.SetStatus(top, clog.StatusAborted); err != nil {
			return fmt.Errorf("abort failed for transaction %s: %w", top, err)
		}
	}

	e.registry.Unregister(top)
	e.subtrans.Remove(subs...)
	return nil
}
