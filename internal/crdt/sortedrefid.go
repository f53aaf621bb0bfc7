package crdt

import (
	"sort"
	"sync"

	"github.com/meshfabric/fabricd/internal/record"
)

// SortedRefID implements AlgoSortedRefId (spec §4.C): start from the
// AlgoSorted ordering, then relocate every entry whose refId points at a
// later entry to the earliest position strictly after its referent,
// repeating until a full tail-to-head scan finds no violator.
type SortedRefID struct {
	mu    sync.RWMutex
	store *store
	opts  Options
	less  func(a, b NodeValues) bool

	order [][32]byte
}

// NewSortedRefID returns an empty AlgoSortedRefId instance.
func NewSortedRefID(opts Options) *SortedRefID {
	return &SortedRefID{store: newStore(opts), opts: opts, less: lessFor(opts)}
}

// Add implements add(records) (spec §4.C).
func (a *SortedRefID) Add(records []*record.Packed) (AddResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res AddResult
	dirty := false
	for _, p := range records {
		nv, isChild, changedParents, err := a.store.routeOrExtract(p, a.opts)
		if err != nil {
			return AddResult{}, err
		}
		res.TransientlyChanged = append(res.TransientlyChanged, changedParents...)
		if isChild {
			continue
		}

		isNew, changed := a.store.upsert(nv)
		a.store.observeAdd(nv.ID1)
		switch {
		case isNew:
			res.NewlyAdded = append(res.NewlyAdded, nv.ID1)
			a.order = append(a.order, nv.ID1)
			dirty = true
		case changed:
			res.TransientlyChanged = append(res.TransientlyChanged, nv.ID1)
			dirty = true
		}
	}
	if dirty {
		a.resort()
		a.relocateViolators()
	}
	return res, nil
}

func (a *SortedRefID) resort() {
	sort.Slice(a.order, func(i, j int) bool {
		return a.less(a.store.byID1[a.order[i]], a.store.byID1[a.order[j]])
	})
}

func (a *SortedRefID) indexOf(id1 [32]byte) (int, bool) {
	for i, existing := range a.order {
		if existing == id1 {
			return i, true
		}
	}
	return 0, false
}

// relocateViolators implements the tail-to-head relocation scan (spec
// §4.C): repeatedly find the last entry whose refId's position is greater
// than its own, move it to just after that referent, and restart until a
// full scan finds none.
func (a *SortedRefID) relocateViolators() {
	for {
		violator, referentPos := -1, -1
		for i := len(a.order) - 1; i >= 0; i-- {
			nv := a.store.byID1[a.order[i]]
			if nv.RefID == nil {
				continue
			}
			refIdx, ok := a.indexOf(*nv.RefID)
			if !ok {
				continue
			}
			if refIdx > i {
				violator, referentPos = i, refIdx
				break
			}
		}
		if violator == -1 {
			return
		}
		a.order = relocateAfter(a.order, violator, referentPos)
	}
}

// relocateAfter removes the element at from and reinserts it immediately
// after the element that was at afterIdx before removal. afterIdx must be
// greater than from.
func relocateAfter(order [][32]byte, from, afterIdx int) [][32]byte {
	id := order[from]
	rest := make([][32]byte, 0, len(order)-1)
	rest = append(rest, order[:from]...)
	rest = append(rest, order[from+1:]...)

	insertPos := afterIdx // afterIdx shifts down by one after removal, then +1 to land strictly after it
	if insertPos > len(rest) {
		insertPos = len(rest)
	}
	out := make([][32]byte, 0, len(order))
	out = append(out, rest[:insertPos]...)
	out = append(out, id)
	out = append(out, rest[insertPos:]...)
	return out
}

// Delete removes the entries at the given indexes into the current order.
func (a *SortedRefID) Delete(indexes []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleteIndexes(indexes)
}

func (a *SortedRefID) deleteIndexes(indexes []int) {
	drop := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		drop[i] = struct{}{}
	}
	kept := a.order[:0:0]
	for i, id1 := range a.order {
		if _, gone := drop[i]; gone {
			a.store.delete(id1)
			continue
		}
		kept = append(kept, id1)
	}
	a.order = kept
}

// Get implements get() (spec §4.C).
func (a *SortedRefID) Get(cursorID1 *[32]byte, head, tail int, reverse bool) GetResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, idxs, found := window(a.order, cursorID1, head, tail, reverse)
	return GetResult{Entries: entries, Indexes: idxs, Found: found}
}

// GetAllNodes returns every live entry keyed by its id1 hex string.
func (a *SortedRefID) GetAllNodes() map[string]NodeValues {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.allNodes()
}

// GetIndexes resolves each id1 to its current position in order, -1 when
// absent.
func (a *SortedRefID) GetIndexes(entries [][32]byte) []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pos := make(map[[32]byte]int, len(a.order))
	for i, id1 := range a.order {
		pos[id1] = i
	}
	out := make([]int, len(entries))
	for i, id1 := range entries {
		if idx, ok := pos[id1]; ok {
			out[i] = idx
		} else {
			out[i] = -1
		}
	}
	return out
}

// BeginDeletionTracking snapshots the current id1 set (spec §4.C).
func (a *SortedRefID) BeginDeletionTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.beginDeletionTracking()
}

// CommitDeletionTracking deletes every id1 not observed since
// BeginDeletionTracking and returns them.
func (a *SortedRefID) CommitDeletionTracking() [][32]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	deleted := a.store.commitDeletionTracking()
	if len(deleted) == 0 {
		return nil
	}
	gone := make(map[[32]byte]struct{}, len(deleted))
	for _, id1 := range deleted {
		gone[id1] = struct{}{}
		a.store.delete(id1)
	}
	kept := a.order[:0:0]
	for _, id1 := range a.order {
		if _, gone := gone[id1]; gone {
			continue
		}
		kept = append(kept, id1)
	}
	a.order = kept
	return deleted
}

// Close releases this instance.
func (a *SortedRefID) Close() {}
