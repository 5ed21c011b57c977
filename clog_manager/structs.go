package clog

import (
	"os"
	"sync"

	"HelixDB/types"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	// PageSize is the size of one status page on disk.
	PageSize = 4096
	// StatusesPerByte packs four 2-bit statuses into each byte.
	StatusesPerByte = 4
	// StatusesPerPage is the number of transaction statuses one page holds.
	StatusesPerPage = PageSize * StatusesPerByte

	statusMask = 0x03

	fileName = "txn_status.clog"
	// floorFileName persists the lowest id the next crash-recovery scan must
	// consider: everything below it already has a final status.
	floorFileName = "txn_status.floor"
)

// Status is the 2-bit outcome recorded for a real transaction id.
type Status uint8

const (
	// StatusInProgress doubles as "unknown": the transaction has not completed,
	// or its id was never used. Unknown is not an error.
	StatusInProgress Status = iota
	StatusCommitted
	StatusAborted
	// StatusSubCommitted is the intermediate state of a committed
	// subtransaction whose root has not yet committed. Readers must resolve it
	// through the parent chain; it is never a final answer by itself.
	StatusSubCommitted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in-progress"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	case StatusSubCommitted:
		return "sub-committed"
	}
	return "invalid"
}

// IsFinal reports whether the status can never change again. Only final
// statuses may be memoized as hint bits on tuples.
func (s Status) IsFinal() bool {
	return s == StatusCommitted || s == StatusAborted
}

// Manager is the durable transaction status log: an append-only array of
// 2-bit statuses indexed directly by transaction id, stored in fixed-size
// pages in a single file and cached in memory.
type Manager struct {
	mu       sync.Mutex // serializes page read-modify-write cycles
	file     *os.File
	filePath string
	numPages uint64 // pages currently on disk

	// floor is where the next recovery scan starts. Ids below it were given a
	// final status by an earlier recovery pass and, since ids never repeat,
	// can never become in-progress again.
	floor     types.TxID
	floorPath string

	// cache holds recently touched status pages. Purely an optimization: every
	// read falls back to the file, every write goes through to the file first.
	cache *ristretto.Cache[uint64, []byte]

	closed bool
}
