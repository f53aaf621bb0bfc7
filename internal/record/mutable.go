package record

import "fmt"

// MutableRecord wraps a Builder with a cached Packed view, giving the
// signature offloader (internal/sigpool) a single in-place-mutable handle
// per record: compute hashToSign, apply the resulting signature, and
// recompute id1, all against the same object (spec §4.B).
type MutableRecord struct {
	b      *Builder
	cached *Packed
}

// NewMutableRecord wraps an existing packed image for in-place signing.
func NewMutableRecord(p *Packed) (*MutableRecord, error) {
	b := NewBuilder()
	for _, f := range p.Fields() {
		b.Set(f.Index, f.Type, f.Data)
	}
	return &MutableRecord{b: b, cached: p}, nil
}

// Packed returns the current parsed view, reparsing if a mutation is
// pending.
func (m *MutableRecord) Packed() (*Packed, error) {
	if m.cached == nil {
		p, err := m.b.Parse()
		if err != nil {
			return nil, err
		}
		m.cached = p
	}
	return m.cached, nil
}

// HashToSign returns the message and slot for the next open signature
// slot, per record.HashToSign.
func (m *MutableRecord) HashToSign() ([32]byte, uint8, error) {
	p, err := m.Packed()
	if err != nil {
		return [32]byte{}, 0, err
	}
	return HashToSign(p)
}

// ApplySignature writes a signature into slot and invalidates the cached
// Packed view so the next Packed() call reparses the new image (and ID1()
// hashes it).
func (m *MutableRecord) ApplySignature(slot uint8, keyIndex int, algo KeyAlgo, sig []byte) error {
	if keyIndex < 0 || keyIndex > 255 {
		return fmt.Errorf("%w: key index %d out of byte range", ErrValidation, keyIndex)
	}
	data := append([]byte{byte(keyIndex), byte(algo)}, sig...)
	m.b.Set(slot, 0, data)
	m.cached = nil
	return nil
}

// ID1 returns id1 for the record's current (fully signed) image.
func (m *MutableRecord) ID1() ([32]byte, error) {
	p, err := m.Packed()
	if err != nil {
		return [32]byte{}, err
	}
	return IdentityHash(p), nil
}
