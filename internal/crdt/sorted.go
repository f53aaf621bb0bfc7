package crdt

import (
	"sort"
	"sync"

	"github.com/meshfabric/fabricd/internal/record"
)

// Sorted implements AlgoSorted (spec §4.C): a flat ordering by
// (creationTime, id1), or (transientStorageTime, creationTime, id1) when
// opts.OrderByStorageTime is set.
type Sorted struct {
	mu    sync.RWMutex
	store *store
	opts  Options
	less  func(a, b NodeValues) bool

	order [][32]byte
}

// NewSorted returns an empty AlgoSorted instance.
func NewSorted(opts Options) *Sorted {
	return &Sorted{store: newStore(opts), opts: opts, less: lessFor(opts)}
}

// Add implements add(records) (spec §4.C).
func (a *Sorted) Add(records []*record.Packed) (AddResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res AddResult
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
			a.insert(nv)
		case changed:
			res.TransientlyChanged = append(res.TransientlyChanged, nv.ID1)
			a.resort()
		}
	}
	return res, nil
}

// insert appends a newly-added entry to order and re-sorts the whole list
// to keep behavior simple and obviously correct; the list sizes this
// algorithm targets (spec's "leaves first" components) don't warrant a
// more surgical splice.
func (a *Sorted) insert(nv NodeValues) {
	a.order = append(a.order, nv.ID1)
	a.resort()
}

func (a *Sorted) resort() {
	sort.Slice(a.order, func(i, j int) bool {
		ni := a.store.byID1[a.order[i]]
		nj := a.store.byID1[a.order[j]]
		return a.less(ni, nj)
	})
}

// Delete removes the entries at the given indexes into the current order.
func (a *Sorted) Delete(indexes []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleteIndexes(indexes)
}

func (a *Sorted) deleteIndexes(indexes []int) {
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
func (a *Sorted) Get(cursorID1 *[32]byte, head, tail int, reverse bool) GetResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, idxs, found := window(a.order, cursorID1, head, tail, reverse)
	return GetResult{Entries: entries, Indexes: idxs, Found: found}
}

// GetAllNodes returns every live entry keyed by its id1 hex string.
func (a *Sorted) GetAllNodes() map[string]NodeValues {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.allNodes()
}

// GetIndexes resolves each id1 to its current position in order, -1 when
// absent.
func (a *Sorted) GetIndexes(entries [][32]byte) []int {
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
func (a *Sorted) BeginDeletionTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.beginDeletionTracking()
}

// CommitDeletionTracking deletes every id1 not observed since
// BeginDeletionTracking and returns them.
func (a *Sorted) CommitDeletionTracking() [][32]byte {
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

// Close releases this instance. Sorted holds no external resources, so
// Close does nothing; the instance stays usable afterwards.
func (a *Sorted) Close() {}
