package crdt

import (
	"github.com/meshfabric/fabricd/internal/annotation"
	"github.com/meshfabric/fabricd/internal/record"
)

// Options configures an algorithm instance (spec §4.C).
type Options struct {
	// OrderByStorageTime switches the sort key from (creationTime, id1) to
	// (transientStorageTime, creationTime, id1).
	OrderByStorageTime bool
	// Annotations, when "messages", routes child records whose parentId
	// matches an existing entry's id1/id2 to the annotation aggregator
	// instead of adding them to the ordered list (spec §4.C).
	Annotations string
}

// store holds the state shared by all three ordering algorithms: the
// id1-keyed node map, deletion tracking, and (optionally) the annotation
// aggregator. It does not hold display order — each algorithm keeps its
// own, since RefID's is a leveled tree and Sorted/SortedRefID's is a flat
// slice. It has no lock of its own; each algorithm guards it with its own
// mutex alongside its own display-order state.
type store struct {
	byID1 map[[32]byte]NodeValues

	tracking bool
	snapshot map[[32]byte]struct{} // id1 -> present, mutated as add() removes entries

	annot *annotation.Aggregator
}

func newStore(opts Options) *store {
	s := &store{byID1: make(map[[32]byte]NodeValues)}
	if opts.Annotations == "messages" {
		s.annot = annotation.NewAggregator()
	}
	return s
}

// upsert adds nv if its id1 is unseen, or replaces it in place if its
// transientHash changed (spec §4.C). It reports (isNew, changed).
func (s *store) upsert(nv NodeValues) (isNew, changed bool) {
	existing, ok := s.byID1[nv.ID1]
	if !ok {
		s.byID1[nv.ID1] = nv
		return true, false
	}
	if existing.TransientHash != nv.TransientHash {
		s.byID1[nv.ID1] = nv
		return false, true
	}
	return false, false
}

func (s *store) get(id1 [32]byte) (NodeValues, bool) {
	nv, ok := s.byID1[id1]
	return nv, ok
}

func (s *store) delete(id1 [32]byte) {
	delete(s.byID1, id1)
}

func (s *store) allNodes() map[string]NodeValues {
	out := make(map[string]NodeValues, len(s.byID1))
	for _, nv := range s.byID1 {
		out[nv.IDHex()] = nv
	}
	return out
}

// beginDeletionTracking snapshots the current id1 set (spec §4.C).
func (s *store) beginDeletionTracking() {
	s.tracking = true
	s.snapshot = make(map[[32]byte]struct{}, len(s.byID1))
	for id1 := range s.byID1 {
		s.snapshot[id1] = struct{}{}
	}
}

// observeAdd removes id1 from the tracking snapshot, marking it as still
// present as of this add() call.
func (s *store) observeAdd(id1 [32]byte) {
	if s.tracking {
		delete(s.snapshot, id1)
	}
}

// commitDeletionTracking returns every id1 remaining in the snapshot (i.e.
// not observed by any add() since beginDeletionTracking) and stops
// tracking.
func (s *store) commitDeletionTracking() [][32]byte {
	var deleted [][32]byte
	for id1 := range s.snapshot {
		deleted = append(deleted, id1)
	}
	s.tracking = false
	s.snapshot = nil
	return deleted
}

// parentIDOf reads the parentId field directly from the incoming packed
// record (not from the stored NodeValues, which has no parentId of its
// own) for the annotation-mode dispatch check.
func parentIDOf(p *record.Packed) *[32]byte {
	f, ok := p.Field(record.FieldParentID)
	if !ok || len(f.Data) != 32 {
		return nil
	}
	var id [32]byte
	copy(id[:], f.Data)
	return &id
}

func lessFor(opts Options) func(a, b NodeValues) bool {
	if opts.OrderByStorageTime {
		return storageTimeKeyLess
	}
	return timeKeyLess
}
