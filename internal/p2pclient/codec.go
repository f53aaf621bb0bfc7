package p2pclient

import (
	"bytes"
	"encoding/gob"
)

// Codec serializes request/response bodies for one negotiated Format.
// Swapping codecs on a format mismatch (spec §4.E) never touches the
// record schema packer itself (out of scope per spec §1) — only the RPC
// envelope body.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// gobCodec backs Format 0, the canonical binary format.
type gobCodec struct{}

func (gobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Codecs maps a negotiated Format ID to the Codec that serializes it.
// Format 0 (CanonicalFormat) is always present.
var Codecs = map[int]Codec{
	0: gobCodec{},
}
