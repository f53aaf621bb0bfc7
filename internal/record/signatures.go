package record

import "fmt"

// ExtractSignatures iterates signature slots 1..3 (field indexes 3,4,5),
// recovering {signature, publicKey, message, algoType} for each filled
// slot. It fails with ErrMalformedSignature on gaps, out-of-range slot
// key-indexes, or a filled-signature count exceeding multisigThreshold.
// When allowUnsigned is false, it also fails if the filled count is below
// threshold (spec §4.A).
func ExtractSignatures(p *Packed, allowUnsigned bool) ([]Signature, error) {
	eligible, err := EligibleSigningKeys(p)
	if err != nil {
		return nil, err
	}
	threshold, err := Threshold(p)
	if err != nil {
		return nil, err
	}

	var filled []int // indexes into signatureSlots that are present
	seenGap := false
	for i, idx := range signatureSlots {
		_, ok := p.Field(idx)
		if ok {
			if seenGap {
				return nil, fmt.Errorf("%w: signature slot %d filled after a gap", ErrMalformedSignature, idx)
			}
			filled = append(filled, i)
		} else if len(filled) > 0 {
			seenGap = true
		}
	}
	if len(filled) > threshold {
		return nil, fmt.Errorf("%w: %d signatures present exceeds multisigThreshold %d", ErrMalformedSignature, len(filled), threshold)
	}
	if !allowUnsigned && len(filled) < threshold {
		return nil, fmt.Errorf("%w: %d signatures present, multisigThreshold %d requires more", ErrMalformedSignature, len(filled), threshold)
	}

	out := make([]Signature, 0, len(filled))
	for _, i := range filled {
		slotIdx := signatureSlots[i]
		f, _ := p.Field(slotIdx)
		if len(f.Data) < 2 {
			return nil, fmt.Errorf("%w: signature slot %d too short", ErrMalformedSignature, slotIdx)
		}
		keyIndex := int(f.Data[0])
		algo := KeyAlgo(f.Data[1])
		sigBytes := f.Data[2:]
		if keyIndex < 0 || keyIndex >= len(eligible) {
			return nil, fmt.Errorf("%w: signature slot %d references key index %d out of range (%d eligible)", ErrMalformedSignature, slotIdx, keyIndex, len(eligible))
		}
		message := Hash(p, 0, slotIdx-1)
		out = append(out, Signature{
			Slot:      slotIdx,
			Algo:      algo,
			PublicKey: eligible[keyIndex],
			Message:   message[:],
			Bytes:     sigBytes,
		})
	}
	return out, nil
}

// ExtractSignaturesRecursive extends ExtractSignatures with signatures
// pulled from embedded sub-schema records (field indexes 200-239). The
// outer allowUnsigned applies only to the root record; every embedded
// record must be fully signed regardless (spec §4.A).
func ExtractSignaturesRecursive(p *Packed, allowUnsigned bool) ([]Signature, error) {
	sigs, err := ExtractSignatures(p, allowUnsigned)
	if err != nil {
		return nil, err
	}
	for _, ef := range p.Embedded() {
		sub, err := Parse(ef.Data)
		if err != nil {
			return nil, fmt.Errorf("record: embedded field %d: %w", ef.Index, err)
		}
		subSigs, err := ExtractSignaturesRecursive(sub, false)
		if err != nil {
			return nil, fmt.Errorf("record: embedded field %d: %w", ef.Index, err)
		}
		sigs = append(sigs, subSigs...)
	}
	return sigs, nil
}

// HashToSign returns the message a signer must sign in order to fill the
// next open signature slot, i.e. the hash up to (but excluding) the lowest
// empty slot among 1..3. It returns an error once the filled slots already
// number multisigThreshold, and so whenever all three slots are filled.
func HashToSign(p *Packed) ([32]byte, uint8, error) {
	threshold, err := Threshold(p)
	if err != nil {
		return [32]byte{}, 0, err
	}
	for i, idx := range signatureSlots {
		if _, ok := p.Field(idx); !ok {
			if i >= threshold {
				return [32]byte{}, 0, fmt.Errorf("%w: multisigThreshold %d already reached", ErrValidation, threshold)
			}
			return Hash(p, 0, idx-1), idx, nil
		}
	}
	return [32]byte{}, 0, fmt.Errorf("%w: all signature slots filled", ErrValidation)
}
