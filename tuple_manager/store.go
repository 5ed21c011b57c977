package tuple

import (
	"sync"

	"HelixDB/types"

	"github.com/tidwall/btree"
)

/*
The version store holds every physical version of every logical row of one
table, chains included. Chains are singly linked in creation order, oldest
first, through TupleIDs resolved against an arena; the newest version links
to itself. Index structures are assumed to sit on top of this and hand back
candidate keys — the store itself is visibility-agnostic.
*/

type chain struct {
	key  string
	head types.TupleID
}

// Store is one table's version store.
type Store struct {
	mu     sync.RWMutex
	chains *btree.BTreeG[*chain]
	arena  []*Version // TupleID = index+1; pruned slots are nil
}

// NewStore creates an empty version store.
func NewStore() *Store {
	return &Store{
		chains: btree.NewBTreeG(func(a, b *chain) bool { return a.key < b.key }),
	}
}

// Insert appends a new version for key, stamped with the creating
// transaction and command, and links it as the newest version of the chain.
func (s *Store) Insert(key string, data []byte, xmin types.TxID, cmin types.CommandID) *Version {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &Version{
		data:    data,
		xmin:    xmin,
		command: cmin,
		self:    types.TupleID(len(s.arena) + 1),
	}
	v.next = v.self
	s.arena = append(s.arena, v)

	if c, ok := s.chains.Get(&chain{key: key}); ok {
		newest := s.newestLocked(c)
		newest.next = v.self
	} else {
		s.chains.Set(&chain{key: key, head: v.self})
	}
	return v
}

// Get resolves a locator. Returns nil for pruned or invalid ids.
func (s *Store) Get(id types.TupleID) *Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

// Chain returns the versions of key in creation order, oldest first.
func (s *Store) Chain(key string) []*Version {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains.Get(&chain{key: key})
	if !ok {
		return nil
	}
	var out []*Version
	for v := s.getLocked(c.head); v != nil; {
		out = append(out, v)
		if v.next == v.self {
			break
		}
		v = s.getLocked(v.next)
	}
	return out
}

// Keys returns every row key with at least one version, in order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, s.chains.Len())
	s.chains.Scan(func(c *chain) bool {
		keys = append(keys, c.key)
		return true
	})
	return keys
}

// Len returns the number of logical rows (chains).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chains.Len()
}

// Outcome is the resolved final status of a transaction id, as pruning needs
// it. OutcomeInProgress covers everything not yet final.
type Outcome uint8

const (
	OutcomeInProgress Outcome = iota
	OutcomeCommitted
	OutcomeAborted
)

// OutcomeFn resolves a transaction id's outcome against the status log.
type OutcomeFn func(types.TxID) (Outcome, error)

// Prune erases versions that no live or future snapshot can ever need: those
// whose creator aborted, and those whose committed expiration precedes the
// horizon — every snapshot from now on has xmin >= horizon, so the closed
// visibility window can never reopen. Returns the number of versions removed.
func (s *Store) Prune(horizon types.TxID, outcome OutcomeFn) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	var emptied []string

	var iterErr error
	s.chains.Scan(func(c *chain) bool {
		var keep []*Version
		for v := s.getLocked(c.head); v != nil; {
			next := v.next
			dead, err := s.isDeadLocked(v, horizon, outcome)
			if err != nil {
				iterErr = err
				return false
			}
			if dead {
				s.arena[v.self-1] = nil
				removed++
			} else {
				keep = append(keep, v)
			}
			if next == v.self {
				break
			}
			v = s.getLocked(next)
		}

		if len(keep) == 0 {
			emptied = append(emptied, c.key)
			return true
		}
		c.head = keep[0].self
		for i, v := range keep {
			if i+1 < len(keep) {
				v.next = keep[i+1].self
			} else {
				v.next = v.self
			}
		}
		return true
	})
	if iterErr != nil {
		return removed, iterErr
	}

	for _, key := range emptied {
		s.chains.Delete(&chain{key: key})
	}
	return removed, nil
}

func (s *Store) isDeadLocked(v *Version, horizon types.TxID, outcome OutcomeFn) (bool, error) {
	created, err := outcome(v.xmin)
	if err != nil {
		return false, err
	}
	if created == OutcomeAborted {
		return true, nil
	}

	xmax := v.Xmax()
	if !xmax.IsValid() || !xmax.Precedes(horizon) {
		return false, nil
	}
	expired, err := outcome(xmax)
	if err != nil {
		return false, err
	}
	return expired == OutcomeCommitted, nil
}

// newestLocked walks to the chain's newest version. Caller holds s.mu.
func (s *Store) newestLocked(c *chain) *Version {
	v := s.getLocked(c.head)
	for v != nil && v.next != v.self {
		v = s.getLocked(v.next)
	}
	return v
}

func (s *Store) getLocked(id types.TupleID) *Version {
	if !id.IsValid() || int(id) > len(s.arena) {
		return nil
	}
	return s.arena[id-1]
}
