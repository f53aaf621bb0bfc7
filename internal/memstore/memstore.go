// Package memstore is a mutex-guarded, in-memory NodeStore/BlobStore
// (internal/p2pclient's storage collaborator interfaces), grounded on the
// teacher's core/access_control.go cache: a plain map behind a sync.Mutex,
// no background eviction. It exists so cmd/fabricd has something to run
// against out of the box; a production deployment supplies its own
// durable implementation (spec §1 leaves storage out of scope).
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshfabric/fabricd/internal/p2pclient"
)

// Nodes is an in-memory NodeStore keyed by id1.
type Nodes struct {
	mu    sync.Mutex
	byID1 map[[32]byte][]byte
	order [][32]byte
}

// NewNodes returns an empty Nodes store.
func NewNodes() *Nodes {
	return &Nodes{byID1: make(map[[32]byte][]byte)}
}

var _ p2pclient.NodeStore = (*Nodes)(nil)

// Put stores packed under id1, overwriting any prior value.
func (n *Nodes) Put(_ context.Context, id1 [32]byte, packed []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.byID1[id1]; !exists {
		n.order = append(n.order, id1)
	}
	n.byID1[id1] = append([]byte(nil), packed...)
	return nil
}

// Get returns the packed bytes stored under id1, if any.
func (n *Nodes) Get(_ context.Context, id1 [32]byte) ([]byte, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.byID1[id1]
	return d, ok, nil
}

// Query returns every stored record in insertion order. It ignores the
// filter fields on FetchQuery: narrowing by node type, embed, region, and
// jurisdiction is the responsibility of a real storage backend's index;
// this in-memory store exists only to exercise the Router end to end.
func (n *Nodes) Query(_ context.Context, _ p2pclient.FetchQuery) ([][]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]byte, 0, len(n.order))
	for _, id1 := range n.order {
		out = append(out, n.byID1[id1])
	}
	return out, nil
}

// Blobs is an in-memory BlobStore keyed by blob ID, growing a byte slice
// on WriteAt the way a sparse file would.
type Blobs struct {
	mu   sync.Mutex
	data map[[32]byte][]byte
}

// NewBlobs returns an empty Blobs store.
func NewBlobs() *Blobs {
	return &Blobs{data: make(map[[32]byte][]byte)}
}

var _ p2pclient.BlobStore = (*Blobs)(nil)

// ReadAt returns up to chunkSize bytes starting at offset, plus the blob's
// total size.
func (b *Blobs) ReadAt(_ context.Context, id [32]byte, offset int64, chunkSize int) ([]byte, int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.data[id]
	if !ok {
		return nil, offset, 0, fmt.Errorf("memstore: unknown blob")
	}
	size := int64(len(buf))
	if offset >= size {
		return nil, offset, size, nil
	}
	end := offset + int64(chunkSize)
	if end > size {
		end = size
	}
	return append([]byte(nil), buf[offset:end]...), offset, size, nil
}

// WriteAt writes data at offset, extending the blob if necessary.
func (b *Blobs) WriteAt(_ context.Context, id [32]byte, offset int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.data[id]
	need := offset + int64(len(data))
	if int64(len(buf)) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	b.data[id] = buf
	return nil
}

// Size reports a blob's current length.
func (b *Blobs) Size(_ context.Context, id [32]byte) (int64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.data[id]
	return int64(len(buf)), ok, nil
}
