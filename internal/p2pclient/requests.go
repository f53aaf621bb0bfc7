package p2pclient

import "github.com/meshfabric/fabricd/internal/crdt"

// FetchRequest is the body of a RouteFetch request (spec §4.E).
type FetchRequest struct {
	ViewKey         [32]byte
	Algo            crdt.Name
	NodeTypes       [][]byte
	CursorID1       *[32]byte
	Head, Tail      int
	Reverse         bool
	TriggerNodeID   []byte
	TriggerInterval int
	Embed           []EmbedFilter
	IncludeLicenses IncludeLicenses
	Region          string
	Jurisdiction    string
}

// FetchResponse is one (possibly partial) reply to a fetch request.
type FetchResponse struct {
	Status           Status
	Patch            crdt.Patch
	MissingNodesID1s [][32]byte
	RawNodes         map[[32]byte][]byte
}

// StoreRequest is the body of a RouteStore request.
type StoreRequest struct {
	SourcePublicKey []byte
	TargetPublicKey []byte
	Packed          []byte
}

// StoreResponse is the reply to a store request.
type StoreResponse struct {
	Status Status
	ID1    [32]byte
}

// ReadBlobRequest is the body of a RouteReadBlob request.
type ReadBlobRequest struct {
	SourcePublicKey []byte
	TargetPublicKey []byte
	BlobID          [32]byte
	Offset          int64
	ChunkSize       int
}

// ReadBlobResponse is one (possibly partial) reply to a read-blob request.
type ReadBlobResponse struct {
	Status Status
	Data   []byte
	Pos    int64
	Size   int64
}

// WriteBlobRequest is the body of a RouteWriteBlob request.
type WriteBlobRequest struct {
	SourcePublicKey []byte
	TargetPublicKey []byte
	BlobID          [32]byte
	Offset          int64
	Data            []byte
	Final           bool
}

// WriteBlobResponse is the reply to a write-blob request. FSeek, when
// non-nil, asks the sender to seek its reader to that offset and resend
// (spec §4.F resume semantics, surfaced through the write-blob exchange).
type WriteBlobResponse struct {
	Status Status
	FSeek  *int64
}

// UnsubscribeRequest is the body of a RouteUnsubscribe request.
type UnsubscribeRequest struct {
	TargetPublicKey []byte
	MsgID           MsgID // the original subscription's msgId
}

// UnsubscribeResponse is the reply to an unsubscribe request.
type UnsubscribeResponse struct {
	Status Status
}

// MessageRequest is the body of a RouteMessage (generic) request.
type MessageRequest struct {
	SourcePublicKey []byte
	Payload         []byte
}

// MessageResponse is the reply to a generic message request.
type MessageResponse struct {
	Status  Status
	Payload []byte
}
