package record

import "golang.org/x/crypto/blake2b"

// Hash returns the blake2b-256 digest of the raw concatenation of the field
// images whose index falls in [fromIndex, toIndex] (spec §4.A).
func Hash(p *Packed, fromIndex, toIndex uint8) [32]byte {
	return blake2b.Sum256(p.RangeBytes(fromIndex, toIndex))
}

// IdentityHash returns id1: the hash over fields [0, IdentityHashUpperBound]
// of the fully signed packed image (spec §3).
func IdentityHash(p *Packed) [32]byte {
	return Hash(p, 0, IdentityHashUpperBound)
}

// HashList implements the "start fresh; for each buffer, if present,
// update; if nil, finalize/reset/reseed with the digest so far" convention
// from spec §6, used to bind a composite key over optional components
// (e.g. a CRDT view's DeepHash over a sparse query).
func HashList(buffers [][]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, b := range buffers {
		if b == nil {
			sum := h.Sum(nil)
			h.Reset()
			h.Write(sum)
			continue
		}
		h.Write(b)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
