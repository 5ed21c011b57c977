package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxIDOrdering(t *testing.T) {
	assert.True(t, TxID(10).Follows(TxID(5)))
	assert.True(t, TxID(5).Precedes(TxID(10)))
	assert.False(t, TxID(5).Follows(TxID(5)))
	assert.False(t, TxID(5).Precedes(TxID(5)))
}

func TestTxIDOrderingAcrossWraparound(t *testing.T) {
	// An id allocated just before the 32-bit counter wraps must still precede
	// one allocated just after.
	old := TxID(0xFFFFFFF0)
	young := old
	for i := 0; i < 32; i++ {
		young = young.Next()
	}

	assert.True(t, old.Precedes(young))
	assert.True(t, young.Follows(old))
	assert.False(t, young.Precedes(old))
}

func TestNextSkipsReservedIDs(t *testing.T) {
	id := TxID(0xFFFFFFFF)
	next := id.Next()

	require.True(t, next.IsNormal())
	assert.Equal(t, FirstNormalTxID, next)
}

func TestReservedIDsSortBeforeNormal(t *testing.T) {
	assert.True(t, BootstrapTxID.Precedes(FirstNormalTxID))
	assert.True(t, FrozenTxID.Precedes(TxID(0xFFFFFFF0)))
	assert.False(t, InvalidTxID.IsValid())
	assert.False(t, FrozenTxID.IsNormal())
}

func TestVirtualTxID(t *testing.T) {
	var unset VirtualTxID
	assert.False(t, unset.IsSet())
	assert.True(t, VirtualTxID{BackendID: 7, LocalID: 1}.IsSet())
	assert.Equal(t, "7/1", VirtualTxID{BackendID: 7, LocalID: 1}.String())
}
