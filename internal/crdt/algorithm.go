package crdt

import (
	"github.com/meshfabric/fabricd/internal/annotation"
	"github.com/meshfabric/fabricd/internal/record"
)

// AddResult reports the outcome of an add() call (spec §4.C).
type AddResult struct {
	NewlyAdded         [][32]byte
	TransientlyChanged [][32]byte
}

// GetResult is the outcome of a get() call. Found is false when a
// non-empty cursor was supplied but not located in the list ("None" in
// the spec — the caller must refetch from scratch).
type GetResult struct {
	Entries [][32]byte
	Indexes []int
	Found   bool
}

func childFactFrom(p *record.Packed, nv NodeValues) annotation.ChildFact {
	fact := annotation.ChildFact{ID1: nv.ID1, Owner: nv.Owner, CreationTime: nv.CreationTime}
	if f, ok := p.Field(record.FieldIsAnnotationEdit); ok && len(f.Data) == 1 && f.Data[0] != 0 {
		fact.IsAnnotationEdit = true
	}
	if f, ok := p.Field(record.FieldIsAnnotationReaction); ok && len(f.Data) == 1 && f.Data[0] != 0 {
		fact.IsAnnotationReaction = true
	}
	if f, ok := p.Field(record.FieldAnnotationData); ok {
		fact.Data = append([]byte(nil), f.Data...)
	}
	return fact
}

// routeOrExtract extracts nv from p and, in annotation mode, checks
// whether p's parentId matches an existing entry's id1/id2. When it does,
// the record is dispatched to the annotation aggregator instead of being
// added to the ordered list; wasAnnotationChild reports this, and
// transientlyChanged carries the ids of parents whose exported annotation
// image actually changed (spec §4.C, §4.G).
func (s *store) routeOrExtract(p *record.Packed, opts Options) (nv NodeValues, wasAnnotationChild bool, transientlyChanged [][32]byte, err error) {
	nv, err = ExtractNodeValues(p)
	if err != nil {
		return NodeValues{}, false, nil, err
	}
	if opts.Annotations != "messages" {
		return nv, false, nil, nil
	}
	parentID := parentIDOf(p)
	if parentID == nil {
		return nv, false, nil, nil
	}

	var matched [][32]byte
	for id1, existing := range s.byID1 {
		if matchesParent(parentID, existing) {
			matched = append(matched, id1)
		}
	}
	if len(matched) == 0 {
		return nv, false, nil, nil
	}

	child := childFactFrom(p, nv)
	for _, pid := range matched {
		parent := s.byID1[pid]
		if !s.annot.Dispatch(pid, parent.Owner, child) {
			continue
		}
		exp, expErr := s.annot.Export(pid, nil)
		if expErr != nil {
			return nv, true, transientlyChanged, expErr
		}
		parent.Annotations = exp
		s.byID1[pid] = parent
		transientlyChanged = append(transientlyChanged, pid)
	}
	return nv, true, transientlyChanged, nil
}
