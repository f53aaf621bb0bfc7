package crdt

import (
	"testing"

	"github.com/meshfabric/fabricd/internal/record"
)

func buildNode(t *testing.T, id1 byte, owner []byte, creationTime int64, refID *byte, parentID *byte) *record.Packed {
	t.Helper()
	b := record.NewBuilder()
	b.Set(record.FieldOwner, 0, owner)
	b.Set(record.FieldCreationTime, 0, record.EncodeTime48(creationTime))
	var idBuf [32]byte
	idBuf[31] = id1
	b.Set(record.FieldID1, 0, idBuf[:])
	if refID != nil {
		var rb [32]byte
		rb[31] = *refID
		b.Set(record.FieldRefID, 0, rb[:])
	}
	if parentID != nil {
		var pb [32]byte
		pb[31] = *parentID
		b.Set(record.FieldParentID, 0, pb[:])
	}
	p, err := b.Parse()
	if err != nil {
		t.Fatalf("build node %d: %v", id1, err)
	}
	return p
}

func idFor(b byte) [32]byte {
	var id [32]byte
	id[31] = b
	return id
}

func TestSortedOrdersByCreationTimeThenID1(t *testing.T) {
	algo := NewSorted(Options{})
	r1 := buildNode(t, 1, []byte("owner-a"), 200, nil, nil)
	r2 := buildNode(t, 2, []byte("owner-a"), 100, nil, nil)
	r3 := buildNode(t, 3, []byte("owner-a"), 100, nil, nil)

	res, err := algo.Add([]*record.Packed{r1, r2, r3})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(res.NewlyAdded) != 3 {
		t.Fatalf("expected 3 newly added, got %d", len(res.NewlyAdded))
	}

	got := algo.Get(nil, -1, 0, false)
	want := [][32]byte{idFor(2), idFor(3), idFor(1)}
	assertIDSeq(t, want, got.Entries)
}

func TestSortedDuplicateAddIsNoOpUnlessTransientHashChanges(t *testing.T) {
	algo := NewSorted(Options{})
	r1 := buildNode(t, 1, []byte("owner-a"), 100, nil, nil)
	if _, err := algo.Add([]*record.Packed{r1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := algo.Add([]*record.Packed{r1})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(res.NewlyAdded) != 0 || len(res.TransientlyChanged) != 0 {
		t.Fatalf("expected no-op re-add, got %+v", res)
	}

	b := record.NewBuilder()
	b.Set(record.FieldOwner, 0, []byte("owner-a"))
	b.Set(record.FieldCreationTime, 0, record.EncodeTime48(100))
	var idBuf [32]byte
	idBuf[31] = 1
	b.Set(record.FieldID1, 0, idBuf[:])
	b.Set(record.FieldTransientHash, 0, bytes32(9))
	changed, err := b.Parse()
	if err != nil {
		t.Fatal(err)
	}
	res, err = algo.Add([]*record.Packed{changed})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(res.TransientlyChanged) != 1 {
		t.Fatalf("expected transient change, got %+v", res)
	}
}

func bytes32(b byte) []byte {
	buf := make([]byte, 32)
	buf[31] = b
	return buf
}

func TestGetHeadTailCursorAndReverse(t *testing.T) {
	algo := NewSorted(Options{})
	var records []*record.Packed
	for i := byte(1); i <= 5; i++ {
		records = append(records, buildNode(t, i, []byte("owner"), int64(i), nil, nil))
	}
	if _, err := algo.Add(records); err != nil {
		t.Fatalf("Add: %v", err)
	}

	headRes := algo.Get(nil, 2, 0, false)
	assertIDSeq(t, [][32]byte{idFor(1), idFor(2)}, headRes.Entries)

	tailRes := algo.Get(nil, 0, 2, false)
	assertIDSeq(t, [][32]byte{idFor(4), idFor(5)}, tailRes.Entries)

	cursor := idFor(2)
	afterCursor := algo.Get(&cursor, 2, 0, false)
	assertIDSeq(t, [][32]byte{idFor(3), idFor(4)}, afterCursor.Entries)

	reversed := algo.Get(nil, 0, 2, true)
	assertIDSeq(t, [][32]byte{idFor(2), idFor(1)}, reversed.Entries)

	missing := idFor(99)
	notFound := algo.Get(&missing, 2, 0, false)
	if notFound.Found {
		t.Fatalf("expected Found=false for unknown cursor")
	}

	empty := algo.Get(nil, 0, 0, false)
	if len(empty.Entries) != 0 {
		t.Fatalf("expected empty result when neither head nor tail set, got %v", empty.Entries)
	}
}

func TestDeletionTrackingRemovesUnobservedEntries(t *testing.T) {
	algo := NewSorted(Options{})
	r1 := buildNode(t, 1, []byte("owner"), 10, nil, nil)
	r2 := buildNode(t, 2, []byte("owner"), 20, nil, nil)
	if _, err := algo.Add([]*record.Packed{r1, r2}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	algo.BeginDeletionTracking()
	if _, err := algo.Add([]*record.Packed{r1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	deleted := algo.CommitDeletionTracking()
	if len(deleted) != 1 || deleted[0] != idFor(2) {
		t.Fatalf("expected id 2 deleted, got %v", deleted)
	}
	if len(algo.GetAllNodes()) != 1 {
		t.Fatalf("expected 1 node left")
	}
}

func TestRefIDLevelsConcatenateTopDown(t *testing.T) {
	algo := NewRefID(Options{})
	root := byte(1)
	r1 := buildNode(t, 1, []byte("owner"), 10, nil, nil)
	r2 := buildNode(t, 2, []byte("owner"), 20, &root, nil)
	r3 := buildNode(t, 3, []byte("owner"), 5, &root, nil)

	if _, err := algo.Add([]*record.Packed{r1, r2, r3}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := algo.Get(nil, -1, 0, false)
	want := [][32]byte{idFor(1), idFor(3), idFor(2)}
	assertIDSeq(t, want, got.Entries)
}

func TestRefIDReindexesOnLateParent(t *testing.T) {
	algo := NewRefID(Options{})
	root := byte(1)
	child := buildNode(t, 2, []byte("owner"), 20, &root, nil)
	if _, err := algo.Add([]*record.Packed{child}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	parent := buildNode(t, 1, []byte("owner"), 10, nil, nil)
	if _, err := algo.Add([]*record.Packed{parent}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := algo.Get(nil, -1, 0, false)
	assertIDSeq(t, [][32]byte{idFor(1), idFor(2)}, got.Entries)
}

func TestSortedRefIDRelocatesChildAfterReferent(t *testing.T) {
	algo := NewSortedRefID(Options{})
	referent := byte(2)
	early := buildNode(t, 1, []byte("owner"), 5, &referent, nil)
	late := buildNode(t, 2, []byte("owner"), 50, nil, nil)

	if _, err := algo.Add([]*record.Packed{early, late}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := algo.Get(nil, -1, 0, false)
	assertIDSeq(t, [][32]byte{idFor(2), idFor(1)}, got.Entries)
}

func TestAnnotationModeRoutesChildToParent(t *testing.T) {
	algo := NewSorted(Options{Annotations: "messages"})
	parentOwner := []byte("owner-parent")
	parent := buildNode(t, 1, parentOwner, 10, nil, nil)
	if _, err := algo.Add([]*record.Packed{parent}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	parentIdx := byte(1)
	b := record.NewBuilder()
	b.Set(record.FieldOwner, 0, parentOwner)
	b.Set(record.FieldCreationTime, 0, record.EncodeTime48(20))
	var childID [32]byte
	childID[31] = 2
	b.Set(record.FieldID1, 0, childID[:])
	var parentIDBuf [32]byte
	parentIDBuf[31] = parentIdx
	b.Set(record.FieldParentID, 0, parentIDBuf[:])
	b.Set(record.FieldIsAnnotationEdit, 0, []byte{1})
	b.Set(record.FieldAnnotationData, 0, []byte("edited text"))
	child, err := b.Parse()
	if err != nil {
		t.Fatal(err)
	}

	res, err := algo.Add([]*record.Packed{child})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(res.NewlyAdded) != 0 {
		t.Fatalf("expected annotation child not added to ordered list, got %+v", res.NewlyAdded)
	}
	if len(res.TransientlyChanged) != 1 || res.TransientlyChanged[0] != idFor(1) {
		t.Fatalf("expected parent reported transiently changed, got %v", res.TransientlyChanged)
	}

	nodes := algo.GetAllNodes()
	for _, nv := range nodes {
		if nv.ID1 == idFor(1) {
			if nv.Annotations == nil || nv.Annotations.Edit == nil {
				t.Fatalf("expected edit annotation on parent")
			}
			if string(nv.Annotations.Edit.Data) != "edited text" {
				t.Fatalf("unexpected edit data: %s", nv.Annotations.Edit.Data)
			}
		}
	}
}

func assertIDSeq(t *testing.T, want, got [][32]byte) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length mismatch: want %d got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("index %d: want %x got %x", i, want[i], got[i])
		}
	}
}
