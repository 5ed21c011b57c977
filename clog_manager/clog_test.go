package clog

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HelixDB/types"
)

const testCacheBytes = 1 << 20

func openTestLog(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := Open(dir, testCacheBytes)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestUnknownIDReadsInProgress(t *testing.T) {
	m := openTestLog(t, t.TempDir())

	st, err := m.GetStatus(types.TxID(12345))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
}

func TestSetAndGetStatus(t *testing.T) {
	m := openTestLog(t, t.TempDir())

	require.NoError(t, m.SetStatus(types.TxID(3), StatusCommitted))
	require.NoError(t, m.SetStatus(types.TxID(4), StatusAborted))
	require.NoError(t, m.SetStatus(types.TxID(5), StatusSubCommitted))

	st, err := m.GetStatus(types.TxID(3))
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, st)

	st, err = m.GetStatus(types.TxID(4))
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, st)

	st, err = m.GetStatus(types.TxID(5))
	require.NoError(t, err)
	assert.Equal(t, StatusSubCommitted, st)
}

func TestFinalStatusCannotChange(t *testing.T) {
	m := openTestLog(t, t.TempDir())

	id := types.TxID(42)
	require.NoError(t, m.SetStatus(id, StatusCommitted))

	// Idempotent re-record is fine.
	require.NoError(t, m.SetStatus(id, StatusCommitted))

	// Flipping a final outcome is not.
	require.Error(t, m.SetStatus(id, StatusAborted))
	require.Error(t, m.SetStatus(id, StatusInProgress))
}

func TestSubCommittedMayResolveEitherWay(t *testing.T) {
	m := openTestLog(t, t.TempDir())

	require.NoError(t, m.SetStatus(types.TxID(10), StatusSubCommitted))
	require.NoError(t, m.SetStatus(types.TxID(10), StatusCommitted))

	require.NoError(t, m.SetStatus(types.TxID(11), StatusSubCommitted))
	require.NoError(t, m.SetStatus(types.TxID(11), StatusAborted))
}

func TestReservedIDs(t *testing.T) {
	m := openTestLog(t, t.TempDir())

	for _, id := range []types.TxID{types.BootstrapTxID, types.FrozenTxID} {
		st, err := m.GetStatus(id)
		require.NoError(t, err)
		assert.Equal(t, StatusCommitted, st)
		require.Error(t, m.SetStatus(id, StatusAborted))
	}

	st, err := m.GetStatus(types.InvalidTxID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
}

func TestStatusSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, testCacheBytes)
	require.NoError(t, err)
	require.NoError(t, m.SetStatus(types.TxID(7), StatusCommitted))
	// A status on a far page, to exercise file growth.
	far := types.TxID(StatusesPerPage*3 + 17)
	require.NoError(t, m.SetStatus(far, StatusAborted))
	require.NoError(t, m.Close())

	m2 := openTestLog(t, dir)
	st, err := m2.GetStatus(types.TxID(7))
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, st)

	st, err = m2.GetStatus(far)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, st)
}

func TestMarkCrashedAborted(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, testCacheBytes)
	require.NoError(t, err)
	require.NoError(t, m.SetStatus(types.TxID(3), StatusCommitted))
	require.NoError(t, m.SetStatus(types.TxID(5), StatusSubCommitted))
	// 4 and 6 never get an outcome: they were alive at "crash" time.
	require.NoError(t, m.Close())

	m2 := openTestLog(t, dir)
	marked, err := m2.MarkCrashedAborted(types.TxID(7))
	require.NoError(t, err)
	assert.Equal(t, 3, marked) // 4, 5 (sub-committed counts), 6

	for _, id := range []types.TxID{4, 5, 6} {
		st, err := m2.GetStatus(id)
		require.NoError(t, err)
		assert.Equal(t, StatusAborted, st, "id %s", id)
	}
	st, err := m2.GetStatus(types.TxID(3))
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, st)
}

func TestRecoveryScanResumesFromFloor(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, testCacheBytes)
	require.NoError(t, err)
	require.NoError(t, m.SetStatus(types.TxID(3), StatusCommitted))
	marked, err := m.MarkCrashedAborted(types.TxID(6))
	require.NoError(t, err)
	require.Equal(t, 2, marked) // 4, 5
	require.NoError(t, m.Close())

	// The floor persisted at 6: the next pass covers only [6, upTo).
	m2 := openTestLog(t, dir)
	require.NoError(t, m2.SetStatus(types.TxID(7), StatusCommitted))
	marked, err = m2.MarkCrashedAborted(types.TxID(10))
	require.NoError(t, err)
	assert.Equal(t, 3, marked) // 6, 8, 9
}

func TestRecoveryScanSkipsBelowFloor(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, testCacheBytes)
	require.NoError(t, err)
	// Id 4 has no status, but the floor says everything below 6 is settled.
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 6)
	require.NoError(t, os.WriteFile(filepath.Join(dir, floorFileName), buf[:], 0644))
	require.NoError(t, m.Close())

	m2 := openTestLog(t, dir)
	marked, err := m2.MarkCrashedAborted(types.TxID(8))
	require.NoError(t, err)
	assert.Equal(t, 2, marked) // 6, 7 only

	st, err := m2.GetStatus(types.TxID(4))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st, "ids below the floor are not rescanned")
}

func TestClosedLogRejectsWrites(t *testing.T) {
	m, err := Open(t.TempDir(), testCacheBytes)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent

	require.Error(t, m.SetStatus(types.TxID(3), StatusCommitted))
}
