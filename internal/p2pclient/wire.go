package p2pclient

import "github.com/google/uuid"

// Size limits (spec §5, §6).
const (
	// MaxEnvelopeBytes is the maximum size of a single wire envelope;
	// larger responses are split into seq/endSeq sequences.
	MaxEnvelopeBytes = 70 * 1024
	// MaxBlobWriteChunk is the maximum chunk size for write-blob payloads
	// (67 KiB envelope budget minus 3 KiB of envelope overhead).
	MaxBlobWriteChunk = 64 * 1024
	// MaxBlobReadChunk is the maximum chunk size for file/blob reads.
	MaxBlobReadChunk = 1024 * 1024
)

// MsgID uniquely identifies one request/response exchange (spec §9:
// "one per-call unique identifier" replacing string-keyed dispatch).
type MsgID = uuid.UUID

// NewMsgID returns a fresh random MsgID.
func NewMsgID() MsgID { return uuid.New() }

// Envelope is the typed frame every request and response travels in (spec
// §6): {routeAction, msgId, expectingReply, data}.
type Envelope struct {
	Action         RouteAction
	MsgID          MsgID
	ExpectingReply bool
	Seq            int // 1-based; 0 for non-streamed single-part messages
	EndSeq         int
	Data           []byte // body, serialized per the negotiated Format
}

// IsFinal reports whether this envelope is the last part of its stream.
func (e Envelope) IsFinal() bool {
	return e.Seq == 0 || e.Seq == e.EndSeq
}
