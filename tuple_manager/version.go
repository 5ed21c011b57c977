package tuple

import (
	"sync"

	"HelixDB/types"
)

// Flags carries the hint bits of one version plus the combo-command marker.
// Hint bits memoize a status-log answer on the tuple itself; they are set
// once, only after the status is final, and are never authoritative — every
// reader must produce correct results with all hints absent.
type Flags uint8

const (
	FlagXminCommitted Flags = 1 << iota
	FlagXminAborted
	FlagXmaxCommitted
	FlagXmaxAborted
	// FlagComboCommand means the command field holds a ComboID instead of a
	// plain command counter.
	FlagComboCommand
)

// Version is one physical version of a logical row. The creating and
// expiring transaction ids are its entire visibility metadata: no physical
// copies, no read locks.
type Version struct {
	mu sync.Mutex

	data []byte

	xmin    types.TxID
	xmax    types.TxID // InvalidTxID = not yet deleted
	command types.CommandID
	flags   Flags

	self types.TupleID
	// next links to the newer version of the same logical row, and points at
	// self while this version is the newest. Links are ids resolved through
	// the store, never raw pointers, so versions stay relocatable.
	next types.TupleID
}

// Data returns the version's payload.
func (v *Version) Data() []byte { return v.data }

// Self returns the version's own locator.
func (v *Version) Self() types.TupleID { return v.self }

// Xmin returns the creating transaction id. Immutable once written.
func (v *Version) Xmin() types.TxID { return v.xmin }

// Xmax returns the expiring transaction id, or InvalidTxID.
func (v *Version) Xmax() types.TxID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.xmax
}

// Command returns the raw command field and whether it is a combo id.
// For a never-deleted version the field is cmin; after deletion by another
// transaction it is cmax (the creator has necessarily finished, so its cmin
// no longer matters); with the combo flag it indexes the owner's side table.
func (v *Version) Command() (types.CommandID, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.command, v.flags&FlagComboCommand != 0
}

// Hints returns the current hint bits.
func (v *Version) Hints() Flags {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flags & (FlagXminCommitted | FlagXminAborted | FlagXmaxCommitted | FlagXmaxAborted)
}

// SetXminCommitted memoizes that xmin's commit is final.
func (v *Version) SetXminCommitted() { v.setFlag(FlagXminCommitted) }

// SetXminAborted memoizes that xmin's abort is final.
func (v *Version) SetXminAborted() { v.setFlag(FlagXminAborted) }

// SetXmaxCommitted memoizes that xmax's commit is final.
func (v *Version) SetXmaxCommitted() { v.setFlag(FlagXmaxCommitted) }

// SetXmaxAborted memoizes that xmax's abort is final.
func (v *Version) SetXmaxAborted() { v.setFlag(FlagXmaxAborted) }

func (v *Version) setFlag(f Flags) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flags |= f
}

// TryClaimXmax stamps the version as expired by `by`, acting as the implicit
// row write lock. expectedOld is what the caller last observed in the xmax
// field (InvalidTxID, or an id it resolved as aborted); the claim fails if a
// concurrent writer got there first, in which case the caller blocks on the
// new holder and re-evaluates.
func (v *Version) TryClaimXmax(expectedOld, by types.TxID, cmd types.CommandID, combo bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.xmax != expectedOld {
		return false
	}
	v.xmax = by
	v.command = cmd
	v.flags &^= FlagXmaxCommitted | FlagXmaxAborted
	if combo {
		v.flags |= FlagComboCommand
	} else {
		v.flags &^= FlagComboCommand
	}
	return true
}
