package crdt

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/meshfabric/fabricd/internal/annotation"
)

// ConsumerView is the consumer-side half of the view/delta engine (spec
// §4.D): it holds the last-known list and node images, applies incoming
// deltas, and tracks pending deletions until their grace period elapses.
type ConsumerView struct {
	mu sync.Mutex

	list           [][32]byte
	nodesByID1     map[[32]byte]NodeValues
	dataByID1      map[[32]byte][]byte
	pendingDeletes map[[32]byte]int64 // id1 -> deletion-observed-at (millis)
}

// NewConsumerView returns an empty view, as when a client first subscribes
// with no prior snapshot.
func NewConsumerView() *ConsumerView {
	return &ConsumerView{
		nodesByID1:     make(map[[32]byte]NodeValues),
		dataByID1:      make(map[[32]byte][]byte),
		pendingDeletes: make(map[[32]byte]int64),
	}
}

// ApplyDelta replays patch against the current list, merges in the node
// images and raw payloads that accompanied the delta (spec's
// missingNodesId1s records), and marks any id1 that dropped out of the
// list as pending deletion (spec §4.D).
func (v *ConsumerView) ApplyDelta(patch Patch, newNodes map[[32]byte]NodeValues, newData map[[32]byte][]byte, nowMillis int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	newList, err := Apply(v.list, patch)
	if err != nil {
		return err
	}

	present := make(map[[32]byte]bool, len(newList))
	for _, id1 := range newList {
		present[id1] = true
	}
	for id1 := range v.nodesByID1 {
		if present[id1] {
			delete(v.pendingDeletes, id1)
			continue
		}
		if _, already := v.pendingDeletes[id1]; !already {
			v.pendingDeletes[id1] = nowMillis
		}
	}

	for id1, nv := range newNodes {
		v.nodesByID1[id1] = nv
	}
	for id1, data := range newData {
		v.dataByID1[id1] = data
	}
	v.list = newList
	return nil
}

// Purge deletes every id1 whose pending-deletion grace period (graceMillis)
// has elapsed as of nowMillis, and reports which ids were purged.
func (v *ConsumerView) Purge(nowMillis, graceMillis int64) [][32]byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	var purged [][32]byte
	for id1, deletedAt := range v.pendingDeletes {
		if nowMillis-deletedAt < graceMillis {
			continue
		}
		delete(v.pendingDeletes, id1)
		delete(v.nodesByID1, id1)
		delete(v.dataByID1, id1)
		purged = append(purged, id1)
	}
	return purged
}

// List returns a copy of the current ordered id1 list.
func (v *ConsumerView) List() [][32]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([][32]byte(nil), v.list...)
}

// Node returns the cached NodeValues for id1, if known.
func (v *ConsumerView) Node(id1 [32]byte) (NodeValues, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	nv, ok := v.nodesByID1[id1]
	return nv, ok
}

// ServerDiff computes the authoritative delta and the set of records that
// must accompany it (spec §4.D's diff operation): newly-appearing ids,
// ids whose transientHash changed, and ids whose annotations image
// changed.
func ServerDiff(oldList [][32]byte, oldNodes map[[32]byte]NodeValues, newList [][32]byte, newNodes map[[32]byte]NodeValues) (Patch, [][32]byte) {
	patch := Diff(oldList, newList)
	return patch, MissingNodes(oldNodes, newList, newNodes)
}

// MissingNodes computes the union of ids newly present in newList and ids
// whose transientHash or annotations image changed relative to oldNodes.
func MissingNodes(oldNodes map[[32]byte]NodeValues, newList [][32]byte, newNodes map[[32]byte]NodeValues) [][32]byte {
	var out [][32]byte
	for _, id1 := range newList {
		nvNew, ok := newNodes[id1]
		if !ok {
			continue
		}
		nvOld, existed := oldNodes[id1]
		if !existed || nvOld.TransientHash != nvNew.TransientHash || annotationsDiffer(nvOld.Annotations, nvNew.Annotations) {
			out = append(out, id1)
		}
	}
	return out
}

func annotationsDiffer(a, b *annotation.Export) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	if a == nil {
		return false
	}
	aBuf, _ := json.Marshal(a)
	bBuf, _ := json.Marshal(b)
	return !bytes.Equal(aBuf, bBuf)
}
