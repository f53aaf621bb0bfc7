package crdt

import (
	"fmt"

	"github.com/meshfabric/fabricd/internal/record"
)

// Algorithm is the shared interface implemented by Sorted, RefID, and
// SortedRefID (spec §4.C). internal/p2pclient depends only on this
// interface so the request router can select an ordering algorithm by
// name without importing the concrete types directly.
type Algorithm interface {
	Add(records []*record.Packed) (AddResult, error)
	Delete(indexes []int)
	Get(cursorID1 *[32]byte, head, tail int, reverse bool) GetResult
	GetAllNodes() map[string]NodeValues
	GetIndexes(entries [][32]byte) []int
	BeginDeletionTracking()
	CommitDeletionTracking() [][32]byte
	Close()
}

var (
	_ Algorithm = (*Sorted)(nil)
	_ Algorithm = (*RefID)(nil)
	_ Algorithm = (*SortedRefID)(nil)
)

// Name identifies one of the three ordering algorithms by the string used
// in the wire protocol's requested/allowed-algorithm lists (spec §4.E).
type Name string

const (
	NameSorted       Name = "Sorted"
	NameRefID        Name = "RefId"
	NameSortedRefID  Name = "SortedRefId"
)

// New constructs the named algorithm instance. It is the one place that
// maps the wire-level algorithm name onto a concrete implementation.
func New(name Name, opts Options) (Algorithm, error) {
	switch name {
	case NameSorted:
		return NewSorted(opts), nil
	case NameRefID:
		return NewRefID(opts), nil
	case NameSortedRefID:
		return NewSortedRefID(opts), nil
	default:
		return nil, fmt.Errorf("crdt: unknown algorithm %q", name)
	}
}
