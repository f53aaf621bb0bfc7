package memstore

import (
	"context"
	"testing"

	"github.com/meshfabric/fabricd/internal/p2pclient"
)

func TestNodesPutGetQuery(t *testing.T) {
	n := NewNodes()
	ctx := context.Background()
	id1 := [32]byte{1}
	if err := n.Put(ctx, id1, []byte("packed-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok, err := n.Get(ctx, id1)
	if err != nil || !ok || string(data) != "packed-bytes" {
		t.Fatalf("Get returned (%q, %v, %v)", data, ok, err)
	}
	all, err := n.Query(ctx, p2pclient.FetchQuery{})
	if err != nil || len(all) != 1 {
		t.Fatalf("Query returned (%v, %v)", all, err)
	}
}

func TestNodesGetMissing(t *testing.T) {
	n := NewNodes()
	if _, ok, err := n.Get(context.Background(), [32]byte{9}); ok || err != nil {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}
}

func TestBlobsWriteReadSize(t *testing.T) {
	b := NewBlobs()
	ctx := context.Background()
	id := [32]byte{2}

	if err := b.WriteAt(ctx, id, 0, []byte("hello")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := b.WriteAt(ctx, id, 5, []byte(" world")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	data, pos, size, err := b.ReadAt(ctx, id, 0, 100)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(data) != "hello world" || pos != 0 || size != 11 {
		t.Fatalf("unexpected read: data=%q pos=%d size=%d", data, pos, size)
	}

	sz, ok, err := b.Size(ctx, id)
	if err != nil || !ok || sz != 11 {
		t.Fatalf("Size returned (%d, %v, %v)", sz, ok, err)
	}
}

func TestBlobsReadAtUnknownBlob(t *testing.T) {
	b := NewBlobs()
	if _, _, _, err := b.ReadAt(context.Background(), [32]byte{7}, 0, 10); err == nil {
		t.Fatal("expected an error reading an unknown blob")
	}
}

func TestBlobsReadPastEnd(t *testing.T) {
	b := NewBlobs()
	ctx := context.Background()
	id := [32]byte{3}
	if err := b.WriteAt(ctx, id, 0, []byte("abc")); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	data, pos, size, err := b.ReadAt(ctx, id, 10, 5)
	if err != nil || len(data) != 0 || pos != 10 || size != 3 {
		t.Fatalf("unexpected read past end: data=%q pos=%d size=%d err=%v", data, pos, size, err)
	}
}
