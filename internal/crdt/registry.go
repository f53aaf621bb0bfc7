package crdt

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meshfabric/fabricd/internal/record"
)

// DeepHash computes the deterministic fingerprint of a canonical fetch
// query (spec §4.D's keying rule): every part is hashed in order, with a
// nil part acting as a reset/reseed boundary between logically distinct
// sub-components of the query, exactly HashList's composite-hash
// convention (spec §6).
func DeepHash(parts ...[]byte) [32]byte {
	return record.HashList(parts)
}

// ServerModel is the authoritative per-query view state (spec §4.D):
// {list, nodesById1, dataById1}. Multiple concurrent identical queries
// share one ServerModel via the Registry.
type ServerModel struct {
	mu sync.Mutex

	list       [][32]byte
	nodesByID1 map[[32]byte]NodeValues
	dataByID1  map[[32]byte][]byte
}

func newServerModel() *ServerModel {
	return &ServerModel{
		nodesByID1: make(map[[32]byte]NodeValues),
		dataByID1:  make(map[[32]byte][]byte),
	}
}

// Snapshot returns copies of the model's current list and node images, for
// use as the "old" side of a subsequent diff.
func (m *ServerModel) Snapshot() ([][32]byte, map[[32]byte]NodeValues) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([][32]byte(nil), m.list...)
	nodes := make(map[[32]byte]NodeValues, len(m.nodesByID1))
	for k, v := range m.nodesByID1 {
		nodes[k] = v
	}
	return list, nodes
}

// Update advances the model to newList/newNodes/newData and returns the
// delta and missingNodesId1s relative to the model's previous state (spec
// §4.D's diff operation).
func (m *ServerModel) Update(newList [][32]byte, newNodes map[[32]byte]NodeValues, newData map[[32]byte][]byte) (Patch, [][32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	patch, missing := ServerDiff(m.list, m.nodesByID1, newList, newNodes)
	m.list = append([][32]byte(nil), newList...)
	for id1, nv := range newNodes {
		m.nodesByID1[id1] = nv
	}
	for id1, data := range newData {
		m.dataByID1[id1] = data
	}
	return patch, missing
}

// RawData returns the cached raw packed bytes for id1, if present.
func (m *ServerModel) RawData(id1 [32]byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dataByID1[id1]
	return d, ok
}

// Registry maps DeepHash query fingerprints to ServerModels, with
// configurable GC of cold (least-recently-used) keys (spec §5).
type Registry struct {
	cache *lru.Cache[[32]byte, *ServerModel]
}

// NewRegistry returns a Registry that evicts the least-recently-used
// query model once more than maxColdKeys are held.
func NewRegistry(maxColdKeys int) (*Registry, error) {
	cache, err := lru.New[[32]byte, *ServerModel](maxColdKeys)
	if err != nil {
		return nil, err
	}
	return &Registry{cache: cache}, nil
}

// GetOrCreate returns the existing model for key, or creates and caches a
// fresh one.
func (r *Registry) GetOrCreate(key [32]byte) *ServerModel {
	if m, ok := r.cache.Get(key); ok {
		return m
	}
	m := newServerModel()
	r.cache.Add(key, m)
	return m
}

// Evict removes key's model from the registry, e.g. when its last
// subscriber unsubscribes.
func (r *Registry) Evict(key [32]byte) {
	r.cache.Remove(key)
}

// Len reports how many query models are currently cached.
func (r *Registry) Len() int {
	return r.cache.Len()
}
