package p2pclient

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/meshfabric/fabricd/internal/crdt"
	"github.com/meshfabric/fabricd/internal/record"
)

// PeerContext identifies the remote peer a request arrived from and the
// local identity it was addressed to (spec §4.E's source/target checks).
type PeerContext struct {
	PeerID          string
	RemotePublicKey []byte
	LocalPublicKey  []byte
}

// Router is the server-side half of spec §4.E: it deserializes incoming
// requests (the caller hands it already-decoded request structs, since the
// record schema packer is out of scope per spec §1), applies the
// permission filter per action, and dispatches to the storage/view layer.
type Router struct {
	Perms      *PermissionStore
	LocalPerms Permissions
	Nodes      NodeStore
	Blobs      BlobStore
	Views      *crdt.Registry

	// Triggers, when set, is used to publish newly stored id1s on the
	// topic for any view a subscriber is watching. Left nil, HandleStore
	// simply skips publication — a deployment without live subscription
	// delivery still works, it just never satisfies a pending trigger.
	Triggers *TriggerBus

	Log *logrus.Entry
}

func (r *Router) logger() *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// HandleStore implements spec §4.E's store route: permission check, then
// defaulting/asserting source=remote, target=remote, then persisting.
func (r *Router) HandleStore(ctx context.Context, peer PeerContext, req StoreRequest, packed *record.Packed) StoreResponse {
	perms, err := r.Perms.Get(peer.PeerID)
	if err != nil {
		return StoreResponse{Status: StatusNotAllowed}
	}
	source, target, err := CheckStore(perms, peer.RemotePublicKey)
	if err != nil {
		r.logger().WithField("peer", peer.PeerID).Warn("store not allowed")
		return StoreResponse{Status: StatusNotAllowed}
	}
	req.SourcePublicKey, req.TargetPublicKey = source, target

	id1 := record.IdentityHash(packed)
	if err := r.Nodes.Put(ctx, id1, req.Packed); err != nil {
		return StoreResponse{Status: StatusError}
	}
	r.publishChange(ctx, packed, id1)
	return StoreResponse{Status: StatusResult, ID1: id1}
}

// publishChange notifies any subscriber watching the record's id2 — the
// spec's "alternate identity... allows multiple records to share a
// logical id" (spec.md §3) is the natural grouping a trigger subscription
// watches, so a newly stored record's id2 doubles as its view key. Records
// with no id2 have no shared logical id to notify subscribers of, and are
// skipped.
func (r *Router) publishChange(ctx context.Context, packed *record.Packed, id1 [32]byte) {
	if r.Triggers == nil {
		return
	}
	f, ok := packed.Field(record.FieldID2)
	if !ok || len(f.Data) == 0 {
		return
	}
	viewKey := deepHashBytes([][]byte{f.Data})
	if err := r.Triggers.Publish(ctx, viewKey, [][32]byte{id1}); err != nil {
		r.logger().WithError(err).Warn("publish trigger")
	}
}

// HandleWriteBlob implements spec §4.E's write-blob route.
func (r *Router) HandleWriteBlob(ctx context.Context, peer PeerContext, req WriteBlobRequest) WriteBlobResponse {
	perms, err := r.Perms.Get(peer.PeerID)
	if err != nil {
		return WriteBlobResponse{Status: StatusNotAllowed}
	}
	source, target, err := CheckWriteBlob(perms, peer.RemotePublicKey, peer.LocalPublicKey)
	if err != nil {
		return WriteBlobResponse{Status: StatusNotAllowed}
	}
	req.SourcePublicKey, req.TargetPublicKey = source, target

	if len(req.Data) > MaxBlobWriteChunk {
		return WriteBlobResponse{Status: StatusUnrecoverable}
	}
	if err := r.Blobs.WriteAt(ctx, req.BlobID, req.Offset, req.Data); err != nil {
		if errors.Is(err, ErrMismatch) {
			return WriteBlobResponse{Status: StatusMismatch}
		}
		return WriteBlobResponse{Status: StatusError}
	}
	return WriteBlobResponse{Status: StatusResult}
}

// HandleReadBlob implements spec §4.E's read-blob route.
func (r *Router) HandleReadBlob(ctx context.Context, peer PeerContext, req ReadBlobRequest) ReadBlobResponse {
	perms, err := r.Perms.Get(peer.PeerID)
	if err != nil {
		return ReadBlobResponse{Status: StatusNotAllowed}
	}
	source, target, err := CheckReadBlob(perms, peer.RemotePublicKey, peer.LocalPublicKey)
	if err != nil {
		return ReadBlobResponse{Status: StatusNotAllowed}
	}
	req.SourcePublicKey, req.TargetPublicKey = source, target

	chunk := req.ChunkSize
	if chunk <= 0 || chunk > MaxBlobReadChunk {
		chunk = MaxBlobReadChunk
	}
	data, pos, size, err := r.Blobs.ReadAt(ctx, req.BlobID, req.Offset, chunk)
	if err != nil {
		return ReadBlobResponse{Status: StatusNotAvailable}
	}
	status := StatusResult
	if pos+int64(len(data)) >= size {
		status = StatusEOF
	}
	return ReadBlobResponse{Status: status, Data: data, Pos: pos, Size: size}
}

// HandleUnsubscribe implements spec §4.E's unsubscribe route.
func (r *Router) HandleUnsubscribe(peer PeerContext, req UnsubscribeRequest) UnsubscribeResponse {
	req.TargetPublicKey = CheckUnsubscribe(peer.RemotePublicKey)
	return UnsubscribeResponse{Status: StatusResult}
}

// HandleMessage implements spec §4.E's generic message route.
func (r *Router) HandleMessage(peer PeerContext, req MessageRequest) MessageResponse {
	req.SourcePublicKey = CheckMessage(peer.RemotePublicKey)
	return MessageResponse{Status: StatusResult, Payload: req.Payload}
}

// HandleFetch implements spec §4.E's fetch route: permission check
// (including the prefix-match, allowAlgos, trigger, embed-intersection,
// and license-clamp rules), then resolves the query via the CRDT
// view/delta engine.
func (r *Router) HandleFetch(ctx context.Context, peer PeerContext, req FetchRequest) FetchResponse {
	perms, err := r.Perms.Get(peer.PeerID)
	if err != nil {
		return FetchResponse{Status: StatusNotAllowed}
	}
	clamped, err := CheckFetch(perms, r.LocalPerms, FetchQuery{
		NodeTypes:       req.NodeTypes,
		Algo:            string(req.Algo),
		TriggerNodeID:   req.TriggerNodeID,
		TriggerInterval: req.TriggerInterval,
		Embed:           req.Embed,
		IncludeLicenses: req.IncludeLicenses,
	})
	if err != nil {
		return FetchResponse{Status: StatusNotAllowed}
	}
	req.Embed = clamped.Embed
	req.IncludeLicenses = clamped.IncludeLicenses
	req.Region = clamped.Region
	req.Jurisdiction = clamped.Jurisdiction

	raw, err := r.Nodes.Query(ctx, FetchQuery{
		NodeTypes:       req.NodeTypes,
		Algo:            string(req.Algo),
		Embed:           req.Embed,
		IncludeLicenses: req.IncludeLicenses,
		Region:          req.Region,
		Jurisdiction:    req.Jurisdiction,
	})
	if err != nil {
		return FetchResponse{Status: StatusFetchFailed}
	}

	algo, err := crdt.New(req.Algo, crdt.Options{})
	if err != nil {
		return FetchResponse{Status: StatusMalformed}
	}
	defer algo.Close()

	var packedRecords []*record.Packed
	rawByID1 := make(map[[32]byte][]byte, len(raw))
	for _, buf := range raw {
		p, err := record.Parse(buf)
		if err != nil {
			continue
		}
		packedRecords = append(packedRecords, p)
		rawByID1[record.IdentityHash(p)] = buf
	}
	if _, err := algo.Add(packedRecords); err != nil {
		return FetchResponse{Status: StatusError}
	}

	get := algo.Get(req.CursorID1, req.Head, req.Tail, req.Reverse)
	if !get.Found {
		return FetchResponse{Status: StatusMissingCursor}
	}

	newNodes := algo.GetAllNodes()
	byID1 := make(map[[32]byte]crdt.NodeValues, len(newNodes))
	for _, nv := range newNodes {
		byID1[nv.ID1] = nv
	}

	model := r.Views.GetOrCreate(req.ViewKey)
	patch, missing := model.Update(get.Entries, byID1, nil)

	rawNodes := make(map[[32]byte][]byte, len(missing))
	for _, id1 := range missing {
		if d, ok := rawByID1[id1]; ok {
			rawNodes[id1] = d
		}
	}

	return FetchResponse{Status: StatusResult, Patch: patch, MissingNodesID1s: missing, RawNodes: rawNodes}
}
