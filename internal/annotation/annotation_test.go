package annotation

import "testing"

func id1(b byte) [32]byte {
	var id [32]byte
	id[31] = b
	return id
}

func TestEditNewerCreationTimeWins(t *testing.T) {
	a := NewAggregator()
	parent := id1(1)
	owner := []byte("owner-a")

	a.Dispatch(parent, owner, ChildFact{ID1: id1(2), Owner: owner, CreationTime: 10, IsAnnotationEdit: true, Data: []byte("v1")})
	a.Dispatch(parent, owner, ChildFact{ID1: id1(3), Owner: owner, CreationTime: 20, IsAnnotationEdit: true, Data: []byte("v2")})
	a.Dispatch(parent, owner, ChildFact{ID1: id1(4), Owner: owner, CreationTime: 15, IsAnnotationEdit: true, Data: []byte("stale")})

	exp, err := a.Export(parent, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exp.Edit == nil || string(exp.Edit.Data) != "v2" {
		t.Fatalf("expected edit v2 to win, got %+v", exp.Edit)
	}
}

func TestEditIgnoredWhenOwnerMismatch(t *testing.T) {
	a := NewAggregator()
	parent := id1(1)

	a.Dispatch(parent, []byte("parent-owner"), ChildFact{ID1: id1(2), Owner: []byte("someone-else"), CreationTime: 10, IsAnnotationEdit: true, Data: []byte("v1")})

	exp, err := a.Export(parent, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exp.Edit != nil {
		t.Fatalf("expected no edit, got %+v", exp.Edit)
	}
}

func TestReactionUnreactDropsEntry(t *testing.T) {
	a := NewAggregator()
	parent := id1(1)
	owner := []byte("reactor")

	a.Dispatch(parent, []byte("p"), ChildFact{ID1: id1(2), Owner: owner, CreationTime: 10, IsAnnotationReaction: true, Data: []byte("react/fire")})
	exp, _ := a.Export(parent, nil)
	if _, ok := exp.Reactions.Reactions["fire"]; !ok {
		t.Fatalf("expected fire reaction present")
	}

	a.Dispatch(parent, []byte("p"), ChildFact{ID1: id1(3), Owner: owner, CreationTime: 20, IsAnnotationReaction: true, Data: []byte("unreact/fire")})
	exp, _ = a.Export(parent, nil)
	if _, ok := exp.Reactions.Reactions["fire"]; ok {
		t.Fatalf("expected fire reaction removed after unreact")
	}
}

func TestNestedConversationFlag(t *testing.T) {
	a := NewAggregator()
	parent := id1(1)

	a.Dispatch(parent, []byte("p"), ChildFact{ID1: id1(2), Owner: []byte("someone"), CreationTime: 10})

	exp, _ := a.Export(parent, nil)
	if !exp.HasNestedConversation {
		t.Fatalf("expected hasNestedConversation to be set")
	}
}

func TestCondenseOverflowProducesHasMore(t *testing.T) {
	a := NewAggregator()
	parent := id1(1)

	for i := 0; i < 400; i++ {
		owner := make([]byte, 33)
		owner[0] = byte(i)
		owner[1] = byte(i >> 8)
		a.Dispatch(parent, []byte("p"), ChildFact{
			ID1: id1(byte(i)), Owner: owner, CreationTime: int64(i),
			IsAnnotationReaction: true, Data: []byte("react/fire"),
		})
	}

	exp, err := a.Export(parent, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !exp.Reactions.HasMore {
		t.Fatalf("expected hasMore after condensation")
	}
	if exp.Reactions.Reactions["fire"].Count != 400 {
		t.Fatalf("expected true count preserved, got %d", exp.Reactions.Reactions["fire"].Count)
	}
	if len(exp.Reactions.Reactions["fire"].PublicKeys) >= 400 {
		t.Fatalf("expected truncated publicKeys list")
	}
}

func TestExportNilWhenNoState(t *testing.T) {
	a := NewAggregator()
	exp, err := a.Export(id1(9), nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exp != nil {
		t.Fatalf("expected nil export for untouched parent")
	}
}
