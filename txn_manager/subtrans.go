package txn

import "HelixDB/types"

// NewSubtransMap creates the process-wide parent-link table.
func NewSubtransMap() *SubtransMap {
	return &SubtransMap{
		parents: make(map[types.TxID]types.TxID),
	}
}

// SetParent links a newly allocated subtransaction id to its parent. The
// invariant child > parent holds because both come from the same monotonic
// allocator and the child is always allocated after.
func (s *SubtransMap) SetParent(child, parent types.TxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents[child] = parent
}

// Parent returns the recorded parent of id, if any.
func (s *SubtransMap) Parent(id types.TxID) (types.TxID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parents[id]
	return p, ok
}

// TopMost follows parent links to the root of id's transaction tree.
func (s *SubtransMap) TopMost(id types.TxID) types.TxID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		p, ok := s.parents[id]
		if !ok {
			return id
		}
		id = p
	}
}

// Remove drops the links for the given ids. Called when the owning top-level
// transaction ends: by then the commit pass has rewritten every sub-committed
// child to its final status, so nobody needs the links anymore.
func (s *SubtransMap) Remove(ids ...types.TxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.parents, id)
	}
}
