package txn

import "HelixDB/types"

/*
A tuple carries a single command field. When one transaction both creates and
deletes the same tuple, that field has to say two things at once — the
creating command (cmin) and the deleting command (cmax) — so it is replaced
with a combo id resolved through this side table. Command ids are meaningless
to every other transaction, so the table is transaction-local and dies with
its owner; it is only ever touched from the owning session's goroutine.
*/

type comboPair struct {
	cmin types.CommandID
	cmax types.CommandID
}

// ComboTable maps combo ids to (cmin, cmax) pairs for one transaction.
type ComboTable struct {
	pairs []comboPair
	index map[comboPair]types.ComboID
}

// NewComboTable creates an empty table.
func NewComboTable() *ComboTable {
	return &ComboTable{
		index: make(map[comboPair]types.ComboID),
	}
}

// GetOrCreate returns the combo id for the pair, allocating one if needed.
// Pairs are deduplicated: a statement deleting many rows it inserted earlier
// produces a single entry.
func (c *ComboTable) GetOrCreate(cmin, cmax types.CommandID) types.ComboID {
	key := comboPair{cmin: cmin, cmax: cmax}
	if id, ok := c.index[key]; ok {
		return id
	}
	id := types.ComboID(len(c.pairs))
	c.pairs = append(c.pairs, key)
	c.index[key] = id
	return id
}

// Lookup resolves a combo id back to its (cmin, cmax) pair.
func (c *ComboTable) Lookup(id types.ComboID) (cmin, cmax types.CommandID, ok bool) {
	if int(id) >= len(c.pairs) {
		return types.InvalidCommandID, types.InvalidCommandID, false
	}
	p := c.pairs[id]
	return p.cmin, p.cmax, true
}
