package crdt

import (
	"sort"
	"sync"

	"github.com/meshfabric/fabricd/internal/record"
)

// RefID implements AlgoRefId (spec §4.C): refId is treated as a parent
// pointer into a virtual tree. Each entry's level is the length of its
// refId chain; within a level, entries sort by the same key as Sorted.
// The flattened list is levels concatenated top-down (level 0 first).
type RefID struct {
	mu    sync.RWMutex
	store *store
	opts  Options
	less  func(a, b NodeValues) bool

	levels  map[int][][32]byte
	levelOf map[[32]byte]int
	order   [][32]byte
}

// NewRefID returns an empty AlgoRefId instance.
func NewRefID(opts Options) *RefID {
	return &RefID{
		store:   newStore(opts),
		opts:    opts,
		less:    lessFor(opts),
		levels:  make(map[int][][32]byte),
		levelOf: make(map[[32]byte]int),
	}
}

// Add implements add(records) (spec §4.C).
func (a *RefID) Add(records []*record.Packed) (AddResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res AddResult
	needsReindex := false
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
			if a.isReferencedByExisting(nv.ID1) {
				needsReindex = true
			} else {
				a.insertLeaf(nv)
			}
		case changed:
			res.TransientlyChanged = append(res.TransientlyChanged, nv.ID1)
			if lvl, ok := a.levelOf[nv.ID1]; ok {
				a.resortLevel(lvl)
				a.rebuildOrder()
			}
		}
	}
	if needsReindex {
		a.fullReindex()
	}
	return res, nil
}

// isReferencedByExisting reports whether some already-placed entry's
// refId points at id1 — meaning id1 is a previously-missing parent that
// just arrived, which forces a full re-index (spec §4.C).
func (a *RefID) isReferencedByExisting(id1 [32]byte) bool {
	for existing := range a.levelOf {
		if existing == id1 {
			continue
		}
		nv := a.store.byID1[existing]
		if nv.RefID != nil && *nv.RefID == id1 {
			return true
		}
	}
	return false
}

// levelForNewNode computes a leaf's level from its already-placed parent.
// A refId pointing at an unknown node is treated as level 0 (no
// resolvable parent yet); this is corrected by the full re-index that
// runs once that parent actually arrives.
func (a *RefID) levelForNewNode(nv NodeValues) int {
	if nv.RefID == nil {
		return 0
	}
	parentLevel, ok := a.levelOf[*nv.RefID]
	if !ok {
		return 0
	}
	return parentLevel + 1
}

func (a *RefID) insertLeaf(nv NodeValues) {
	lvl := a.levelForNewNode(nv)
	a.levelOf[nv.ID1] = lvl
	a.levels[lvl] = append(a.levels[lvl], nv.ID1)
	a.resortLevel(lvl)
	a.rebuildOrder()
}

func (a *RefID) resortLevel(lvl int) {
	ids := a.levels[lvl]
	sort.Slice(ids, func(i, j int) bool {
		return a.less(a.store.byID1[ids[i]], a.store.byID1[ids[j]])
	})
}

// rebuildOrder flattens a.levels top-down (level 0 first) into a.order.
func (a *RefID) rebuildOrder() {
	lvlKeys := make([]int, 0, len(a.levels))
	for lvl := range a.levels {
		lvlKeys = append(lvlKeys, lvl)
	}
	sort.Ints(lvlKeys)
	order := make([][32]byte, 0, len(a.levelOf))
	for _, lvl := range lvlKeys {
		order = append(order, a.levels[lvl]...)
	}
	a.order = order
}

// fullReindex recomputes every entry's level from its refId chain and
// rebuilds the flattened order (spec §4.C: "inserting a previously-missing
// parent forces a full re-index").
func (a *RefID) fullReindex() {
	memo := make(map[[32]byte]int, len(a.store.byID1))
	for id1 := range a.store.byID1 {
		a.computeLevel(id1, memo, make(map[[32]byte]bool))
	}
	newLevels := make(map[int][][32]byte, len(a.levels))
	for id1, lvl := range memo {
		newLevels[lvl] = append(newLevels[lvl], id1)
	}
	a.levels = newLevels
	a.levelOf = memo
	for lvl := range a.levels {
		a.resortLevel(lvl)
	}
	a.rebuildOrder()
}

func (a *RefID) computeLevel(id1 [32]byte, memo map[[32]byte]int, visiting map[[32]byte]bool) int {
	if lvl, ok := memo[id1]; ok {
		return lvl
	}
	nv := a.store.byID1[id1]
	if nv.RefID == nil || visiting[id1] {
		memo[id1] = 0
		return 0
	}
	parentID := *nv.RefID
	if _, ok := a.store.byID1[parentID]; !ok {
		memo[id1] = 0
		return 0
	}
	visiting[id1] = true
	lvl := a.computeLevel(parentID, memo, visiting) + 1
	delete(visiting, id1)
	memo[id1] = lvl
	return lvl
}

// Delete removes the entries at the given indexes into the current order.
func (a *RefID) Delete(indexes []int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	drop := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		drop[i] = struct{}{}
	}
	for i, id1 := range a.order {
		if _, gone := drop[i]; !gone {
			continue
		}
		a.removeID(id1)
	}
	a.rebuildOrder()
}

func (a *RefID) removeID(id1 [32]byte) {
	lvl, ok := a.levelOf[id1]
	if !ok {
		a.store.delete(id1)
		return
	}
	ids := a.levels[lvl]
	for i, existing := range ids {
		if existing == id1 {
			a.levels[lvl] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(a.levelOf, id1)
	a.store.delete(id1)
}

// Get implements get() (spec §4.C).
func (a *RefID) Get(cursorID1 *[32]byte, head, tail int, reverse bool) GetResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, idxs, found := window(a.order, cursorID1, head, tail, reverse)
	return GetResult{Entries: entries, Indexes: idxs, Found: found}
}

// GetAllNodes returns every live entry keyed by its id1 hex string.
func (a *RefID) GetAllNodes() map[string]NodeValues {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.allNodes()
}

// GetIndexes resolves each id1 to its current position in order, -1 when
// absent.
func (a *RefID) GetIndexes(entries [][32]byte) []int {
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
func (a *RefID) BeginDeletionTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.beginDeletionTracking()
}

// CommitDeletionTracking deletes every id1 not observed since
// BeginDeletionTracking and returns them.
func (a *RefID) CommitDeletionTracking() [][32]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	deleted := a.store.commitDeletionTracking()
	for _, id1 := range deleted {
		a.removeID(id1)
	}
	if len(deleted) > 0 {
		a.rebuildOrder()
	}
	return deleted
}

// Close releases this instance.
func (a *RefID) Close() {}
