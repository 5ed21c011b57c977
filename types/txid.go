package types

import "fmt"

// TxID is a real transaction identifier. Real ids are allocated lazily on a
// transaction's first write, are globally monotonic and are the only ids ever
// stamped into tuple metadata or the status log.
//
// TxID is a uint32 and can wrap around, so ordering comparisons must go
// through Precedes/Follows rather than < and >.
type TxID uint32

const (
	// InvalidTxID marks an unset field (e.g. a tuple with no expiring transaction).
	InvalidTxID TxID = 0
	// BootstrapTxID is reserved for engine-internal bootstrap writes.
	BootstrapTxID TxID = 1
	// FrozenTxID is reserved for versions old enough to be visible to everyone.
	FrozenTxID TxID = 2
	// FirstNormalTxID is the first id the allocator hands out.
	FirstNormalTxID TxID = 3
)

// IsValid reports whether the id is set at all.
func (id TxID) IsValid() bool {
	return id != InvalidTxID
}

// IsNormal reports whether the id is a regular allocated id (not one of the
// reserved low ids).
func (id TxID) IsNormal() bool {
	return id >= FirstNormalTxID
}

// Follows reports whether id comes strictly after other in allocation order.
// Reserved ids always sort before normal ids; normal ids compare modulo 2^32
// so the comparison stays correct across a wraparound.
func (id TxID) Follows(other TxID) bool {
	if !id.IsNormal() || !other.IsNormal() {
		return id > other
	}
	return int32(id-other) > 0
}

// Precedes reports whether id comes strictly before other in allocation order.
func (id TxID) Precedes(other TxID) bool {
	return other.Follows(id)
}

// Next returns the id following this one, skipping the reserved range on wraparound.
func (id TxID) Next() TxID {
	id++
	if !id.IsNormal() {
		return FirstNormalTxID
	}
	return id
}

func (id TxID) String() string {
	return fmt.Sprintf("%d", uint32(id))
}

// VirtualTxID identifies a transaction that has not (or will never) perform a
// write. Virtual ids are a process-local (backend, sequence) pair: cheap to
// hand out, never persisted, never part of a snapshot.
type VirtualTxID struct {
	BackendID uint32
	LocalID   uint64
}

// IsSet reports whether the virtual id was assigned.
func (v VirtualTxID) IsSet() bool {
	return v.LocalID != 0
}

func (v VirtualTxID) String() string {
	return fmt.Sprintf("%d/%d", v.BackendID, v.LocalID)
}
