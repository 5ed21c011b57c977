package txn

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"HelixDB/types"
)

/*
Real transaction ids must never repeat across restarts, but persisting the
counter on every allocation would put a file write on the hot path. The
allocator instead persists a watermark 1024 ids ahead of the last id handed
out; after a crash allocation resumes at the watermark, skipping at most the
unused headroom.
*/

const (
	allocBatch   = 1024
	metaFileName = "xid.meta"
)

// NewAllocator opens the allocator state under dir, resuming from the
// persisted watermark if one exists.
func NewAllocator(dir string) (*Allocator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create allocator dir: %w", err)
	}

	a := &Allocator{
		next:      types.FirstNormalTxID,
		metaPath:  filepath.Join(dir, metaFileName),
		backendID: uint32(os.Getpid()),
	}

	raw, err := os.ReadFile(a.metaPath)
	switch {
	case err == nil && len(raw) >= 4:
		a.next = types.TxID(binary.BigEndian.Uint32(raw))
		if !a.next.IsNormal() {
			a.next = types.FirstNormalTxID
		}
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read xid watermark: %w", err)
	}
	a.flushed = a.next

	return a, nil
}

// AssignVirtual returns the next virtual id: a (backend, sequence) pair with
// no cross-process synchronization. Virtual ids never appear in snapshots or
// tuple metadata.
func (a *Allocator) AssignVirtual() types.VirtualTxID {
	return types.VirtualTxID{
		BackendID: a.backendID,
		LocalID:   a.virtualSeq.Add(1),
	}
}

// AssignReal returns the next global transaction id. Called lazily the first
// time a transaction (or subtransaction) performs a write; the id is
// permanent for that transaction's lifetime.
func (a *Allocator) AssignReal() (types.TxID, error) {
	return a.AssignRealWith(func(types.TxID) {})
}

// AssignRealWith allocates like AssignReal but invokes register with the new
// id before releasing the allocator's critical section. Snapshot construction
// reads the boundary through the same lock, so no snapshot can ever observe
// an id that was allocated but not yet registered — the classic source of
// phantom-visible transactions.
func (a *Allocator) AssignRealWith(register func(types.TxID)) (types.TxID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == a.flushed {
		watermark := a.flushed
		for i := 0; i < allocBatch; i++ {
			watermark = watermark.Next()
		}
		if err := a.persist(watermark); err != nil {
			return types.InvalidTxID, err
		}
		a.flushed = watermark
	}

	id := a.next
	a.next = a.next.Next()
	register(id)
	return id, nil
}

// PeekNext returns the id the next AssignReal call would hand out, without
// advancing. Snapshot construction uses this as the exclusive upper boundary.
func (a *Allocator) PeekNext() types.TxID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

func (a *Allocator) persist(watermark types.TxID) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(watermark))
	if err := os.WriteFile(a.metaPath, buf[:], 0644); err != nil {
		return fmt.Errorf("failed to persist xid watermark: %w", err)
	}
	return nil
}
