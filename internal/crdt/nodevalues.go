// Package crdt implements the deterministic, mergeable ordering algorithms
// (Sorted, RefID, SortedRefID) and the view/delta engine that sit on top of
// them (spec §4.C, §4.D).
package crdt

import (
	"bytes"
	"fmt"

	"github.com/meshfabric/fabricd/internal/annotation"
	"github.com/meshfabric/fabricd/internal/record"
)

// NodeValues is the CRDT model entry owned by an algorithm instance (spec
// §3): everything about a record the ordering/view layers need without
// holding onto the full packed image.
type NodeValues struct {
	ID1                  [32]byte
	ID2                  *[32]byte
	Owner                []byte
	TransientHash         [32]byte
	CreationTime          int64
	TransientStorageTime  int64
	RefID                 *[32]byte
	Annotations           *annotation.Export
}

// IDHex returns the id1 as a lowercase hex string, the key used by
// GetAllNodes (spec §4.C).
func (nv NodeValues) IDHex() string { return fmt.Sprintf("%x", nv.ID1[:]) }

func idOf(b []byte) (*[32]byte, error) {
	if b == nil {
		return nil, nil
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("crdt: expected a 32-byte identifier, got %d bytes", len(b))
	}
	var id [32]byte
	copy(id[:], b)
	return &id, nil
}

// ExtractNodeValues reads the CRDT-relevant fields out of a fully signed
// packed record.
func ExtractNodeValues(p *record.Packed) (NodeValues, error) {
	var nv NodeValues

	id1Field, ok := p.Field(record.FieldID1)
	if !ok || len(id1Field.Data) != 32 {
		return nv, fmt.Errorf("crdt: record has no 32-byte id1")
	}
	copy(nv.ID1[:], id1Field.Data)

	if f, ok := p.Field(record.FieldID2); ok {
		id2, err := idOf(f.Data)
		if err != nil {
			return nv, err
		}
		nv.ID2 = id2
	}

	nv.Owner = append([]byte(nil), p.Owner()...)

	if f, ok := p.Field(record.FieldTransientHash); ok && len(f.Data) == 32 {
		copy(nv.TransientHash[:], f.Data)
	}

	ctField, ok := p.Field(record.FieldCreationTime)
	if !ok {
		return nv, fmt.Errorf("crdt: record has no creationTime")
	}
	ct, err := record.DecodeTime48(ctField.Data)
	if err != nil {
		return nv, err
	}
	nv.CreationTime = ct

	if f, ok := p.Field(record.FieldTransientStorageTime); ok {
		tst, err := record.DecodeTime48(f.Data)
		if err != nil {
			return nv, err
		}
		nv.TransientStorageTime = tst
	}

	if f, ok := p.Field(record.FieldRefID); ok {
		refID, err := idOf(f.Data)
		if err != nil {
			return nv, err
		}
		nv.RefID = refID
	}

	return nv, nil
}

// matchesParent reports whether parentID matches candidate's id1 or id2
// (spec §4.C's annotation-mode dispatch rule). parentID is nil when the
// record carries no parentId field.
func matchesParent(parentID *[32]byte, candidate NodeValues) bool {
	if parentID == nil {
		return false
	}
	if bytes.Equal(parentID[:], candidate.ID1[:]) {
		return true
	}
	if candidate.ID2 != nil && bytes.Equal(parentID[:], candidate.ID2[:]) {
		return true
	}
	return false
}

// timeKeyLess orders two entries by the fixed (creationTime, id1) tie-break
// (spec §9: a single deterministic tie-break is used by every algorithm,
// not the source's per-variant quirks).
func timeKeyLess(a, b NodeValues) bool {
	if a.CreationTime != b.CreationTime {
		return a.CreationTime < b.CreationTime
	}
	return bytes.Compare(a.ID1[:], b.ID1[:]) < 0
}

// storageTimeKeyLess orders by (transientStorageTime, creationTime, id1),
// used when an algorithm is configured with orderByStorageTime.
func storageTimeKeyLess(a, b NodeValues) bool {
	if a.TransientStorageTime != b.TransientStorageTime {
		return a.TransientStorageTime < b.TransientStorageTime
	}
	return timeKeyLess(a, b)
}
