package txn

import (
	"time"

	"HelixDB/types"
)

// NewTransaction starts a top-level transaction with only a virtual id.
func NewTransaction(vid types.VirtualTxID, isolation types.IsolationLevel) *Transaction {
	now := time.Now()
	return &Transaction{
		vid:         vid,
		isolation:   isolation,
		state:       StateActive,
		nextCommand: types.FirstCommandID,
		startedAt:   now,
		lastActive:  now,
		ownIDs:      make(map[types.TxID]struct{}),
		combo:       NewComboTable(),
	}
}

// VirtualID returns the transaction's virtual id. Always set.
func (t *Transaction) VirtualID() types.VirtualTxID { return t.vid }

// Isolation returns the isolation level the transaction was begun with.
func (t *Transaction) Isolation() types.IsolationLevel { return t.isolation }

// SetReadOnly marks the transaction read-only. Must be called before any
// statement runs.
func (t *Transaction) SetReadOnly() { t.readOnly = true }

// ReadOnly reports whether the transaction was begun read-only.
func (t *Transaction) ReadOnly() bool { return t.readOnly }

// ID returns the real id, or InvalidTxID while the transaction is read-only.
func (t *Transaction) ID() types.TxID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// HasRealID reports whether the transaction has performed a write yet.
func (t *Transaction) HasRealID() bool {
	return t.ID().IsValid()
}

// AssignID promotes the transaction with its permanent real id.
func (t *Transaction) AssignID(id types.TxID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = id
	t.ownIDs[id] = struct{}{}
}

// State returns the session-side lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState transitions the lifecycle state.
func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// TryFinish transitions an unfinished transaction to a terminal state,
// returning false if some other path (session or reaper) already finished it.
func (t *Transaction) TryFinish(target State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateCommitted || t.state == StateAborted {
		return false
	}
	t.state = target
	return true
}

// MarkFailed moves an active transaction to StateFailed. No-op otherwise.
func (t *Transaction) MarkFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateActive {
		t.state = StateFailed
	}
}

// CurrentCommand returns the command counter of the statement in progress.
func (t *Transaction) CurrentCommand() types.CommandID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextCommand
}

// AdvanceCommand increments the command counter at statement end, making the
// finished statement's writes visible to later statements of this transaction.
func (t *Transaction) AdvanceCommand() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextCommand++
}

// Touch records activity, resetting the idle clock the reaper watches.
func (t *Transaction) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastActive = time.Now()
}

// StartedAt returns when the transaction began.
func (t *Transaction) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// IdleSince returns the time of the last operation.
func (t *Transaction) IdleSince() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActive
}

// Combo returns the per-transaction combo command table.
func (t *Transaction) Combo() *ComboTable { return t.combo }

// IsSelf reports whether xid belongs to this transaction: the top-level id or
// any open or sub-committed subtransaction. Rolled-back subtransaction ids do
// not count; their tuples fall through to the status log, which records them
// aborted.
func (t *Transaction) IsSelf(xid types.TxID) bool {
	if !xid.IsValid() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ownIDs[xid]
	return ok
}

// OwnIDs returns every real id currently counting as this transaction: the
// top-level id plus open and sub-committed subtransaction ids.
func (t *Transaction) OwnIDs() []types.TxID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]types.TxID, 0, len(t.ownIDs))
	for id := range t.ownIDs {
		ids = append(ids, id)
	}
	return ids
}

// CurrentStamp returns the id writes are stamped with right now: the
// innermost open subtransaction's id, or the top-level id.
func (t *Transaction) CurrentStamp() types.TxID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.openSubs); n > 0 {
		return t.openSubs[n-1].id
	}
	return t.id
}

// BeginSub pushes a new open subtransaction. The caller has already
// allocated id and linked it to its parent in the SubtransMap.
func (t *Transaction) BeginSub(name string, id types.TxID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openSubs = append(t.openSubs, subEntry{name: name, id: id})
	t.ownIDs[id] = struct{}{}
}

// HasSavepoint reports whether an open subtransaction with the name exists.
func (t *Transaction) HasSavepoint(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findSub(name) >= 0
}

// OpenSubIDs returns the ids of all currently open subtransactions,
// outermost first.
func (t *Transaction) OpenSubIDs() []types.TxID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]types.TxID, 0, len(t.openSubs))
	for _, e := range t.openSubs {
		ids = append(ids, e.id)
	}
	return ids
}

// CompletedSubIDs returns every sub-committed id currently contingent on the
// top-level commit, including ones still parked under open subtransactions.
func (t *Transaction) CompletedSubIDs() []types.TxID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := append([]types.TxID(nil), t.completedSubs...)
	for _, e := range t.openSubs {
		ids = append(ids, e.completed...)
	}
	return ids
}

// ReleaseSubsTo pops the named subtransaction and everything opened after it,
// returning the popped ids. The ids stay in ownIDs: their fate is now tied to
// the enclosing level, which absorbs them into its completed list.
func (t *Transaction) ReleaseSubsTo(name string) ([]types.TxID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findSub(name)
	if idx < 0 {
		return nil, false
	}

	var released []types.TxID
	for i := idx; i < len(t.openSubs); i++ {
		released = append(released, t.openSubs[i].id)
		released = append(released, t.openSubs[i].completed...)
	}
	t.openSubs = t.openSubs[:idx]

	if n := len(t.openSubs); n > 0 {
		t.openSubs[n-1].completed = append(t.openSubs[n-1].completed, released...)
	} else {
		t.completedSubs = append(t.completedSubs, released...)
	}
	return released, true
}

// AbortSubsTo pops the named subtransaction and everything opened after it,
// removing all their ids (including sub-committed descendants) from ownIDs.
// The returned ids must be recorded aborted in the status log by the caller.
// The savepoint itself is re-established by the caller with a fresh id.
func (t *Transaction) AbortSubsTo(name string) ([]types.TxID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findSub(name)
	if idx < 0 {
		return nil, false
	}

	var aborted []types.TxID
	for i := idx; i < len(t.openSubs); i++ {
		aborted = append(aborted, t.openSubs[i].id)
		aborted = append(aborted, t.openSubs[i].completed...)
	}
	t.openSubs = t.openSubs[:idx]
	for _, id := range aborted {
		delete(t.ownIDs, id)
	}
	return aborted, true
}

// findSub returns the stack index of the named open subtransaction, or -1.
// Caller holds t.mu. Duplicate names resolve to the innermost occurrence.
func (t *Transaction) findSub(name string) int {
	for i := len(t.openSubs) - 1; i >= 0; i-- {
		if t.openSubs[i].name == name {
			return i
		}
	}
	return -1
}
