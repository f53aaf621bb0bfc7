package crdt

import "testing"

func list(bs ...byte) [][32]byte {
	out := make([][32]byte, len(bs))
	for i, b := range bs {
		out[i] = idFor(b)
	}
	return out
}

func TestDiffApplyRoundTrip(t *testing.T) {
	old := list(1, 2, 3, 4)
	next := list(1, 3, 5, 4)

	patch := Diff(old, next)
	got, err := Apply(old, patch)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertIDSeq(t, next, got)
}

func TestEncodeDecodeDeltaRoundTrip(t *testing.T) {
	patch := Diff(list(1, 2), list(2, 3))
	buf, err := EncodeDelta(patch)
	if err != nil {
		t.Fatalf("EncodeDelta: %v", err)
	}
	if buf[0] != DeltaVersion {
		t.Fatalf("expected version tag 0x00, got %#x", buf[0])
	}
	decoded, err := DecodeDelta(buf)
	if err != nil {
		t.Fatalf("DecodeDelta: %v", err)
	}
	if len(decoded.Ops) != len(patch.Ops) {
		t.Fatalf("round-trip op count mismatch: %d vs %d", len(decoded.Ops), len(patch.Ops))
	}
}

func TestDecodeDeltaRejectsUnknownVersion(t *testing.T) {
	if _, err := DecodeDelta([]byte{0x01, '{', '}'}); err == nil {
		t.Fatalf("expected error for unknown version tag")
	}
}

func TestConsumerViewMarksAndPurgesDeletions(t *testing.T) {
	v := NewConsumerView()
	firstNodes := map[[32]byte]NodeValues{
		idFor(1): {ID1: idFor(1), CreationTime: 1},
		idFor(2): {ID1: idFor(2), CreationTime: 2},
	}
	if err := v.ApplyDelta(Diff(nil, list(1, 2)), firstNodes, nil, 1000); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	if err := v.ApplyDelta(Diff(list(1, 2), list(1)), nil, nil, 2000); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if _, ok := v.Node(idFor(2)); !ok {
		t.Fatalf("expected id 2 still cached during grace period")
	}

	purged := v.Purge(2000, 5000)
	if len(purged) != 0 {
		t.Fatalf("expected no purge before grace period elapses, got %v", purged)
	}

	purged = v.Purge(7001, 5000)
	if len(purged) != 1 || purged[0] != idFor(2) {
		t.Fatalf("expected id 2 purged, got %v", purged)
	}
	if _, ok := v.Node(idFor(2)); ok {
		t.Fatalf("expected id 2 evicted after purge")
	}
}

func TestMissingNodesUnionsNewAndChanged(t *testing.T) {
	oldNodes := map[[32]byte]NodeValues{
		idFor(1): {ID1: idFor(1), TransientHash: idFor(9)},
	}
	newNodes := map[[32]byte]NodeValues{
		idFor(1): {ID1: idFor(1), TransientHash: idFor(10)}, // changed
		idFor(2): {ID1: idFor(2), TransientHash: idFor(0)},  // new
	}
	missing := MissingNodes(oldNodes, list(1, 2), newNodes)
	if len(missing) != 2 {
		t.Fatalf("expected both ids reported missing, got %v", missing)
	}
}

func TestRegistrySharesModelAcrossIdenticalKeys(t *testing.T) {
	reg, err := NewRegistry(8)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	key := DeepHash([]byte("nodeType:chat"), nil, []byte("algo:sorted"))

	m1 := reg.GetOrCreate(key)
	m2 := reg.GetOrCreate(key)
	if m1 != m2 {
		t.Fatalf("expected identical query key to share one model")
	}

	other := DeepHash([]byte("nodeType:file"), nil, []byte("algo:sorted"))
	m3 := reg.GetOrCreate(other)
	if m3 == m1 {
		t.Fatalf("expected distinct query key to get its own model")
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 cached models, got %d", reg.Len())
	}
}
