package storageengine

import (
	"context"
	"fmt"

	snapshot "HelixDB/snapshot_manager"
	tuple "HelixDB/tuple_manager"
	"HelixDB/types"
)

/*
Each Insert/Update/Delete/Get call is one statement. Readers never block and
never lock: they walk the row's version chain and let the visibility checker
pick at most one version. Writers serialize only against writers touching
the same logical row — stamping xmax is the implicit row lock — and a
statement failure poisons the transaction (or the innermost open
subtransaction, once the client rolls back to its savepoint), because a
statement's writes are not atomic below the transaction boundary.
*/

// Get returns the single version of the row visible under the statement's
// snapshot, or found=false.
func (s *Session) Get(table, key string) (data []byte, found bool, err error) {
	snap, err := s.beginStatement()
	if err != nil {
		return nil, false, err
	}

	v, err := s.visibleVersion(s.eng.table(table), key, snap)
	if err != nil {
		return nil, false, s.failStatement(err)
	}
	s.endStatement()
	if v == nil {
		return nil, false, nil
	}
	return v.Data(), true, nil
}

// Insert produces a new tuple version stamped with the caller's id and
// current command counter. Key uniqueness is an index concern, not a
// visibility one: a second live version under the same key is the caller's
// problem to avoid.
func (s *Session) Insert(table, key string, data []byte) error {
	if _, err := s.beginStatement(); err != nil {
		return err
	}
	if err := s.ensureWriteID(); err != nil {
		return s.failStatement(err)
	}

	stamp := s.txn.CurrentStamp()
	s.eng.table(table).Insert(key, append([]byte(nil), data...), stamp, s.txn.CurrentCommand())
	s.endStatement()
	return nil
}

// Update expires the visible version of the row and chains a successor.
// Blocks (ctx-aware) while another writer holds the row; once the holder
// resolves, visibility is re-evaluated in light of the outcome, which may
// surface a serialization failure at the stricter isolation levels.
func (s *Session) Update(ctx context.Context, table, key string, data []byte) error {
	snap, err := s.beginStatement()
	if err != nil {
		return err
	}
	if err := s.ensureWriteID(); err != nil {
		return s.failStatement(err)
	}

	if _, _, err := s.lockVisibleVersion(ctx, table, key, snap); err != nil {
		return s.failStatement(err)
	}

	stamp := s.txn.CurrentStamp()
	s.eng.table(table).Insert(key, append([]byte(nil), data...), stamp, s.txn.CurrentCommand())
	s.endStatement()
	return nil
}

// Delete expires the visible version of the row. Same blocking and
// re-evaluation contract as Update.
func (s *Session) Delete(ctx context.Context, table, key string) error {
	snap, err := s.beginStatement()
	if err != nil {
		return err
	}
	if err := s.ensureWriteID(); err != nil {
		return s.failStatement(err)
	}

	if _, _, err := s.lockVisibleVersion(ctx, table, key, snap); err != nil {
		return s.failStatement(err)
	}
	s.endStatement()
	return nil
}

// beginStatement validates the transaction and captures the statement's
// snapshot.
func (s *Session) beginStatement() (*snapshot.Snapshot, error) {
	if err := s.ensureActive(); err != nil {
		return nil, err
	}
	s.txn.Touch()
	return s.statementSnapshot()
}

// endStatement advances the command counter, making this statement's writes
// visible to the transaction's later statements.
func (s *Session) endStatement() {
	s.txn.AdvanceCommand()
}

// failStatement poisons the transaction: partial effects of a failed
// statement must never surface, and MVCC has no sub-statement undo, so the
// whole transaction (or the innermost open subtransaction, via RollbackTo)
// has to go.
func (s *Session) failStatement(err error) error {
	s.txn.MarkFailed()
	return err
}

// visibleVersion walks the chain and returns the at-most-one version visible
// under snap.
func (s *Session) visibleVersion(store *tuple.Store, key string, snap *snapshot.Snapshot) (*tuple.Version, error) {
	for _, v := range store.Chain(key) {
		ok, err := s.eng.snapmgr.IsVisible(v, snap, s.txn)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}
	return nil, nil
}

// lockVisibleVersion finds the row's visible version and stamps it with the
// caller's id, waiting out any concurrent writer holding it. Returns the
// claimed version and the snapshot the final evaluation used (ReadCommitted
// re-captures after a wait; the stricter levels fail instead).
func (s *Session) lockVisibleVersion(ctx context.Context, table, key string, snap *snapshot.Snapshot) (*tuple.Version, *snapshot.Snapshot, error) {
	store := s.eng.table(table)

	for {
		v, err := s.visibleVersion(store, key, snap)
		if err != nil {
			return nil, nil, err
		}
		if v == nil {
			return nil, nil, fmt.Errorf("%s/%s: %w", table, key, types.ErrRowNotFound)
		}

		holder := v.Xmax()
		if holder.IsValid() && !s.txn.IsSelf(holder) {
			// Another transaction stamped this version.
			if s.eng.registry.IsActive(holder) {
				// WriteConflictWait: block until the holder resolves, then
				// re-evaluate with the outcome known.
				if err := s.eng.registry.WaitForEnd(ctx, holder); err != nil {
					return nil, nil, fmt.Errorf("canceled waiting for transaction %s: %w", holder, err)
				}
				continue
			}

			st, err := s.eng.snapmgr.ResolveOutcome(holder)
			if err != nil {
				return nil, nil, err
			}
			switch st {
			case tuple.OutcomeCommitted:
				// The conflicting delete/update committed. A fresh
				// ReadCommitted statement legitimately acts on the successor;
				// a transaction-scoped snapshot cannot, or the anomaly the
				// level promises to prevent would slip through.
				if s.txn.Isolation().UsesTransactionSnapshot() {
					return nil, nil, fmt.Errorf("%s/%s updated concurrently: %w", table, key, types.ErrSerializationFailure)
				}
				snap = s.eng.snapmgr.Build(s.txn)
				continue
			case tuple.OutcomeAborted:
				v.SetXmaxAborted()
				// Holder aborted: take over its claim below.
			default:
				// Resolved between our registry and status checks; go around.
				continue
			}
		}

		if claimed, err := s.claim(v, holder); err != nil {
			return nil, nil, err
		} else if claimed {
			return v, snap, nil
		}
		// Lost the stamping race; re-evaluate against the winner.
	}
}

// claim stamps v's xmax with the caller's current id, routing the command
// counter through the combo table when the caller also created the version.
func (s *Session) claim(v *tuple.Version, expectedOld types.TxID) (bool, error) {
	stamp := s.txn.CurrentStamp()
	cmax := s.txn.CurrentCommand()

	if s.txn.IsSelf(v.Xmin()) {
		cmin, err := s.ownCmin(v)
		if err != nil {
			return false, err
		}
		combo := s.txn.Combo().GetOrCreate(cmin, cmax)
		return v.TryClaimXmax(expectedOld, stamp, types.CommandID(combo), true), nil
	}
	return v.TryClaimXmax(expectedOld, stamp, cmax, false), nil
}

// ownCmin recovers the creating command of a version this transaction made,
// unwrapping an existing combo from an earlier (rolled-back) deletion.
func (s *Session) ownCmin(v *tuple.Version) (types.CommandID, error) {
	raw, combo := v.Command()
	if !combo {
		return raw, nil
	}
	cmin, _, ok := s.txn.Combo().Lookup(types.ComboID(raw))
	if !ok {
		return types.InvalidCommandID, fmt.Errorf("dangling combo command id %d", raw)
	}
	return cmin, nil
}
