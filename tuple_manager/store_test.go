package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HelixDB/types"
)

func TestChainOrder(t *testing.T) {
	s := NewStore()

	v1 := s.Insert("k", []byte("a"), 10, 0)
	v2 := s.Insert("k", []byte("b"), 11, 0)
	v3 := s.Insert("k", []byte("c"), 12, 0)

	chain := s.Chain("k")
	require.Len(t, chain, 3)
	assert.Equal(t, []byte("a"), chain[0].Data())
	assert.Equal(t, []byte("b"), chain[1].Data())
	assert.Equal(t, []byte("c"), chain[2].Data())

	assert.Equal(t, v1, s.Get(v1.Self()))
	assert.Equal(t, v3.Self(), v3.Self())
	assert.Equal(t, v2.Self(), chain[1].Self())
}

func TestSeparateKeysSeparateChains(t *testing.T) {
	s := NewStore()
	s.Insert("a", []byte("1"), 10, 0)
	s.Insert("b", []byte("2"), 10, 0)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Keys())
	assert.Len(t, s.Chain("a"), 1)
	assert.Nil(t, s.Chain("missing"))
}

func TestTryClaimXmax(t *testing.T) {
	s := NewStore()
	v := s.Insert("k", []byte("x"), 10, 0)

	require.True(t, v.TryClaimXmax(types.InvalidTxID, 20, 1, false))
	assert.Equal(t, types.TxID(20), v.Xmax())

	// A second claimer that still thinks the slot is free must lose.
	assert.False(t, v.TryClaimXmax(types.InvalidTxID, 21, 1, false))
	assert.Equal(t, types.TxID(20), v.Xmax())

	// Taking over from a known-aborted holder succeeds.
	v.SetXmaxAborted()
	require.True(t, v.TryClaimXmax(20, 22, 2, false))
	assert.Equal(t, types.TxID(22), v.Xmax())
	assert.Zero(t, v.Hints()&(FlagXmaxCommitted|FlagXmaxAborted), "claim clears stale xmax hints")
}

func TestClaimWithComboCommand(t *testing.T) {
	s := NewStore()
	v := s.Insert("k", []byte("x"), 10, 3)

	cmd, combo := v.Command()
	assert.Equal(t, types.CommandID(3), cmd)
	assert.False(t, combo)

	require.True(t, v.TryClaimXmax(types.InvalidTxID, 10, types.CommandID(0), true))
	_, combo = v.Command()
	assert.True(t, combo)
}

func outcomes(m map[types.TxID]Outcome) OutcomeFn {
	return func(id types.TxID) (Outcome, error) {
		if o, ok := m[id]; ok {
			return o, nil
		}
		return OutcomeInProgress, nil
	}
}

func TestPruneRemovesAbortedCreations(t *testing.T) {
	s := NewStore()
	s.Insert("k", []byte("live"), 10, 0)
	s.Insert("k", []byte("dead"), 11, 0)

	n, err := s.Prune(types.TxID(100), outcomes(map[types.TxID]Outcome{
		10: OutcomeCommitted,
		11: OutcomeAborted,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	chain := s.Chain("k")
	require.Len(t, chain, 1)
	assert.Equal(t, []byte("live"), chain[0].Data())
}

func TestPruneRespectsHorizon(t *testing.T) {
	s := NewStore()
	old := s.Insert("k", []byte("old"), 10, 0)
	require.True(t, old.TryClaimXmax(types.InvalidTxID, 20, 0, false))
	s.Insert("k", []byte("new"), 20, 0)

	all := outcomes(map[types.TxID]Outcome{10: OutcomeCommitted, 20: OutcomeCommitted})

	// Horizon at or below the deleter: some snapshot may still need the old
	// version.
	n, err := s.Prune(types.TxID(20), all)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, s.Chain("k"), 2)

	// Horizon past the deleter: the closed window can never reopen.
	n, err = s.Prune(types.TxID(21), all)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	chain := s.Chain("k")
	require.Len(t, chain, 1)
	assert.Equal(t, []byte("new"), chain[0].Data())
}

func TestPruneDropsEmptiedChains(t *testing.T) {
	s := NewStore()
	s.Insert("k", []byte("x"), 11, 0)

	n, err := s.Prune(types.TxID(100), outcomes(map[types.TxID]Outcome{11: OutcomeAborted}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, s.Len())
	assert.Nil(t, s.Chain("k"))

	// The key is reusable afterwards.
	s.Insert("k", []byte("y"), 12, 0)
	assert.Len(t, s.Chain("k"), 1)
}

func TestPruneLeavesInProgressAlone(t *testing.T) {
	s := NewStore()
	v := s.Insert("k", []byte("x"), 10, 0)
	require.True(t, v.TryClaimXmax(types.InvalidTxID, 30, 0, false))

	// Deleter still running: nothing to remove no matter the horizon.
	n, err := s.Prune(types.TxID(1000), outcomes(map[types.TxID]Outcome{10: OutcomeCommitted}))
	require.NoError(t, err)
	assert.Zero(t, n)
}
