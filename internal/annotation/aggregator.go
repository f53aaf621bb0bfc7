package annotation

import "sync"

// Aggregator holds per-parent annotation state for one algorithm instance.
// It is safe for concurrent use; the CRDT layer's own store lock still
// serializes add()/export() pairs, so Aggregator's lock only protects
// against Export running during a concurrent Dispatch.
type Aggregator struct {
	mu     sync.Mutex
	states map[[32]byte]*state
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{states: make(map[[32]byte]*state)}
}

// Dispatch applies child to parentID1's annotation state, given the
// parent's owner (for the edit-ownership check). It reports whether the
// parent's exported image changed, so the caller can add parentID1 to its
// transientlyChanged set (spec §4.C).
func (a *Aggregator) Dispatch(parentID1 [32]byte, parentOwner []byte, child ChildFact) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.states[parentID1]
	if !ok {
		s = newState()
		a.states[parentID1] = s
	}
	return s.apply(parentOwner, child)
}

// Forget discards a parent's annotation state, called when the parent
// record itself is deleted.
func (a *Aggregator) Forget(parentID1 [32]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, parentID1)
}

// Export condenses parentID1's current annotation state into a bounded
// snapshot, putting targetPublicKey first in each reaction's publicKeys
// list when present. It returns (nil, nil) when the parent has no
// annotation state at all.
func (a *Aggregator) Export(parentID1 [32]byte, targetPublicKey []byte) (*Export, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.states[parentID1]
	if !ok {
		return nil, nil
	}
	return condense(s, targetPublicKey)
}
