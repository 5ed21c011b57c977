package txn

import (
	"sync"
	"sync/atomic"
	"time"

	"HelixDB/types"
)

// State is the lifecycle state of a transaction as seen by its own session.
// The authoritative outcome lives in the status log; State exists so the
// session can reject work on a transaction that has failed mid-statement and
// is waiting for an explicit rollback.
type State uint8

const (
	StateActive State = iota
	// StateFailed means a statement failed; every operation except rollback
	// now returns ErrTransactionAborted.
	StateFailed
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Transaction is one top-level transaction and its savepoint tree. It starts
// life with only a virtual id; the first write promotes it with a real id.
//
// A Transaction is driven by a single session goroutine; the fields the
// registry and reaper read from other goroutines are guarded by mu.
type Transaction struct {
	mu sync.Mutex

	vid       types.VirtualTxID
	isolation types.IsolationLevel
	readOnly  bool
	id        types.TxID // InvalidTxID until the first write
	state     State

	nextCommand types.CommandID

	startedAt  time.Time
	lastActive time.Time

	// openSubs is the stack of currently open subtransactions, innermost
	// last. Each entry carries the ids of its already sub-committed
	// descendants so that aborting the entry aborts them too.
	openSubs []subEntry

	// completedSubs are sub-committed subtransactions released directly under
	// the top level. They become durably committed when the top level commits.
	completedSubs []types.TxID

	// ownIDs holds the top-level id plus every open or sub-committed
	// subtransaction id. Ids of rolled-back subtransactions are removed, so
	// membership here is exactly "counts as the current transaction" for
	// visibility purposes.
	ownIDs map[types.TxID]struct{}

	combo *ComboTable
}

type subEntry struct {
	name      string
	id        types.TxID
	completed []types.TxID // sub-committed descendants released under this entry
}

// Allocator issues transaction identifiers. Virtual ids are a process-local
// pair with no synchronization beyond an atomic counter; real ids are global,
// monotonic, and persisted with headroom so a crash can only skip ids, never
// reuse them.
type Allocator struct {
	mu       sync.Mutex
	next     types.TxID
	flushed  types.TxID // ids below this are covered by the on-disk watermark
	metaPath string

	backendID  uint32
	virtualSeq atomic.Uint64
}

// Registry is the process-wide table of active real transaction ids. It is
// the single shared mutable structure of the MVCC core: snapshot construction
// reads it, write-write waits block on it, and everything it needs for
// correctness is behind its own lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[types.TxID]*registryEntry
}

type registryEntry struct {
	txn *Transaction
	top types.TxID
	// done is shared by the top-level id and all its subtransaction ids and is
	// closed exactly once, when the top level resolves. Writers waiting on any
	// id of the tree wake at that point and re-evaluate.
	done chan struct{}
	// subIDs is only populated on the top-level entry.
	subIDs []types.TxID
}

// SubtransMap records parent links for subtransaction ids, so a reader that
// finds a sub-committed status can resolve it through to the root. Entries
// live only while the owning top-level transaction is active; the root's
// commit pass rewrites children to committed before the links are dropped.
type SubtransMap struct {
	mu      sync.RWMutex
	parents map[types.TxID]types.TxID
}
