package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HelixDB/types"
)

func TestLazyRealID(t *testing.T) {
	tx := NewTransaction(types.VirtualTxID{BackendID: 1, LocalID: 1}, types.ReadCommitted)

	assert.False(t, tx.HasRealID())
	assert.Equal(t, types.InvalidTxID, tx.ID())
	assert.False(t, tx.IsSelf(types.InvalidTxID))

	tx.AssignID(50)
	assert.True(t, tx.HasRealID())
	assert.True(t, tx.IsSelf(50))
	assert.Equal(t, types.TxID(50), tx.CurrentStamp())
}

func TestCommandCounterAdvances(t *testing.T) {
	tx := NewTransaction(types.VirtualTxID{LocalID: 1}, types.ReadCommitted)

	assert.Equal(t, types.FirstCommandID, tx.CurrentCommand())
	tx.AdvanceCommand()
	tx.AdvanceCommand()
	assert.Equal(t, types.CommandID(2), tx.CurrentCommand())
}

func TestStampFollowsInnermostSavepoint(t *testing.T) {
	tx := newWriteTxn(t, 50)

	tx.BeginSub("a", 51)
	assert.Equal(t, types.TxID(51), tx.CurrentStamp())
	tx.BeginSub("b", 52)
	assert.Equal(t, types.TxID(52), tx.CurrentStamp())
	assert.True(t, tx.IsSelf(51))
	assert.True(t, tx.IsSelf(52))

	released, ok := tx.ReleaseSubsTo("b")
	require.True(t, ok)
	assert.Equal(t, []types.TxID{52}, released)
	assert.Equal(t, types.TxID(51), tx.CurrentStamp())
	// Released ids still count as own writes until the top resolves.
	assert.True(t, tx.IsSelf(52))
}

func TestReleaseAbsorbsNestedSavepoints(t *testing.T) {
	tx := newWriteTxn(t, 60)
	tx.BeginSub("outer", 61)
	tx.BeginSub("inner", 62)

	released, ok := tx.ReleaseSubsTo("outer")
	require.True(t, ok)
	assert.ElementsMatch(t, []types.TxID{61, 62}, released)
	assert.ElementsMatch(t, []types.TxID{61, 62}, tx.CompletedSubIDs())
	assert.Empty(t, tx.OpenSubIDs())
}

func TestAbortRemovesOwnership(t *testing.T) {
	tx := newWriteTxn(t, 70)
	tx.BeginSub("sp", 71)
	tx.BeginSub("nested", 72)
	_, ok := tx.ReleaseSubsTo("nested")
	require.True(t, ok)

	aborted, ok := tx.AbortSubsTo("sp")
	require.True(t, ok)
	// The rollback takes the sub-committed descendant down with it.
	assert.ElementsMatch(t, []types.TxID{71, 72}, aborted)
	assert.False(t, tx.IsSelf(71))
	assert.False(t, tx.IsSelf(72))
	assert.True(t, tx.IsSelf(70))
}

func TestUnknownSavepoint(t *testing.T) {
	tx := newWriteTxn(t, 80)
	_, ok := tx.ReleaseSubsTo("nope")
	assert.False(t, ok)
	_, ok = tx.AbortSubsTo("nope")
	assert.False(t, ok)
	assert.False(t, tx.HasSavepoint("nope"))
}

func TestDuplicateSavepointNameResolvesInnermost(t *testing.T) {
	tx := newWriteTxn(t, 90)
	tx.BeginSub("sp", 91)
	tx.BeginSub("sp", 92)

	released, ok := tx.ReleaseSubsTo("sp")
	require.True(t, ok)
	assert.Equal(t, []types.TxID{92}, released)
	assert.Equal(t, types.TxID(91), tx.CurrentStamp())
}

func TestTryFinishRacesSafely(t *testing.T) {
	tx := newWriteTxn(t, 100)

	assert.True(t, tx.TryFinish(StateCommitted))
	assert.False(t, tx.TryFinish(StateAborted), "second finisher must lose")
	assert.Equal(t, StateCommitted, tx.State())
}

func TestMarkFailedOnlyFromActive(t *testing.T) {
	tx := newWriteTxn(t, 110)
	tx.MarkFailed()
	assert.Equal(t, StateFailed, tx.State())

	require.True(t, tx.TryFinish(StateAborted))
	tx.MarkFailed()
	assert.Equal(t, StateAborted, tx.State())
}

func TestComboTable(t *testing.T) {
	c := NewComboTable()

	id1 := c.GetOrCreate(0, 3)
	id2 := c.GetOrCreate(1, 4)
	id3 := c.GetOrCreate(0, 3)
	assert.Equal(t, id1, id3, "same pair maps to same combo id")
	assert.NotEqual(t, id1, id2)

	cmin, cmax, ok := c.Lookup(id2)
	require.True(t, ok)
	assert.Equal(t, types.CommandID(1), cmin)
	assert.Equal(t, types.CommandID(4), cmax)

	_, _, ok = c.Lookup(types.ComboID(999))
	assert.False(t, ok)
}

func TestSubtransMap(t *testing.T) {
	m := NewSubtransMap()

	m.SetParent(11, 10)
	m.SetParent(12, 11)

	p, ok := m.Parent(12)
	require.True(t, ok)
	assert.Equal(t, types.TxID(11), p)
	assert.Equal(t, types.TxID(10), m.TopMost(12))
	assert.Equal(t, types.TxID(10), m.TopMost(10), "a top-level id is its own topmost")

	m.Remove(11, 12)
	_, ok = m.Parent(12)
	assert.False(t, ok)
}
