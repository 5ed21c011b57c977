package types

// CommandID is the intra-transaction command counter. Every statement a
// transaction executes gets the next CommandID; tuples record the command
// that created (cmin) and deleted (cmax) them so a cursor opened before a
// later statement never sees that statement's effects.
type CommandID uint32

const (
	// FirstCommandID is the counter value of a transaction's first statement.
	FirstCommandID CommandID = 0
	// InvalidCommandID marks an unset command field.
	InvalidCommandID CommandID = 0xFFFFFFFF
)

// ComboID indexes a per-transaction side table mapping to a (cmin, cmax)
// pair. It replaces the single command field on a tuple that was both created
// and deleted by the same transaction, where one slot cannot hold both
// counters. Combo ids are only ever meaningful to the owning transaction.
type ComboID uint32
