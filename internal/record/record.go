// Package record implements the canonical hashing and signature-extraction
// rules for packed nodes and certs (spec §4.A, §6).
//
// A packed record is a sparse, ascending sequence of
// (fieldIndex uint8, fieldType uint8, length varint, bytes) entries. Index
// ranges are reserved by convention:
//
//	0-99    base fields (owner, creation/expire time, signature slots, signCert)
//	100-199 subclass fields (id1, id2, refId, parentId)
//	200-239 embedded sub-schema records (nested certs/records)
//	240-255 transient fields (transientStorageTime, transientHash)
package record

import "errors"

// Reserved field indexes. Signature slots and signCert sit at fixed
// positions so extraction never has to guess where they are.
const (
	FieldModelType    uint8 = 0
	FieldOwner        uint8 = 1
	FieldCreationTime uint8 = 2
	FieldSignature1   uint8 = 3
	FieldSignature2   uint8 = 4
	FieldSignature3   uint8 = 5
	FieldSignCert     uint8 = 6
	FieldExpireTime   uint8 = 7

	FieldID1     uint8 = 100
	FieldID2     uint8 = 101
	FieldRefID   uint8 = 102
	FieldParentID uint8 = 103

	FieldEmbeddedMin uint8 = 200
	FieldEmbeddedMax uint8 = 239

	FieldTransientStorageTime uint8 = 240
	FieldTransientHash        uint8 = 241

	// Annotation-mode flags (spec §4.G), read by the CRDT layer when a
	// child's parentId matches an existing entry. These sit alongside the
	// other transient fields since they describe how this record should be
	// applied rather than being part of its content-addressed identity.
	FieldIsAnnotationEdit     uint8 = 242
	FieldIsAnnotationReaction uint8 = 243
	FieldAnnotationData       uint8 = 244

	// IdentityHashUpperBound is the inclusive upper field index covered by
	// the id1 hash ("fields [0..127] of the fully signed packed image").
	IdentityHashUpperBound uint8 = 127
)

// signatureSlots lists the three reserved signature field indexes in order.
var signatureSlots = [3]uint8{FieldSignature1, FieldSignature2, FieldSignature3}

// KeyAlgo identifies the signature scheme used for a slot.
type KeyAlgo uint8

const (
	AlgoEd25519 KeyAlgo = iota
	AlgoSecp256k1
)

func (a KeyAlgo) String() string {
	switch a {
	case AlgoEd25519:
		return "ed25519"
	case AlgoSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

// Sentinel errors, matching spec §7's abstract error kinds.
var (
	ErrMalformedSignature = errors.New("record: malformed signature")
	ErrValidation          = errors.New("record: validation failed")
	ErrUnknownAlgorithm    = errors.New("record: unknown signature algorithm")
)

// Signature is one extracted {message, signature, publicKey, algoType} tuple.
type Signature struct {
	Slot      uint8
	Algo      KeyAlgo
	PublicKey []byte
	Message   []byte
	Bytes     []byte
}
