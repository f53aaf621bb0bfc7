package record

import "fmt"

// SignCert is the optional embedded certificate granting one or more
// targetPublicKeys the authority to sign as another owner (spec §3).
type SignCert struct {
	TargetPublicKeys [][]byte
	MultisigThreshold uint8
}

// DecodeSignCert parses the signCert field's embedded bytes. The encoding
// is a simple count-prefixed list of length-prefixed keys followed by the
// threshold byte: [count][len,key]*count[threshold].
func DecodeSignCert(data []byte) (*SignCert, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: signCert too short", ErrMalformedSignature)
	}
	count := int(data[0])
	pos := 1
	cert := &SignCert{}
	for i := 0; i < count; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("%w: signCert truncated", ErrMalformedSignature)
		}
		klen := int(data[pos])
		pos++
		if pos+klen > len(data) {
			return nil, fmt.Errorf("%w: signCert key overruns buffer", ErrMalformedSignature)
		}
		if klen > 32 {
			return nil, fmt.Errorf("%w: signCert target key exceeds 32 bytes", ErrMalformedSignature)
		}
		cert.TargetPublicKeys = append(cert.TargetPublicKeys, data[pos:pos+klen])
		pos += klen
	}
	if pos >= len(data) {
		return nil, fmt.Errorf("%w: signCert missing threshold", ErrMalformedSignature)
	}
	cert.MultisigThreshold = data[pos]
	if cert.MultisigThreshold < 1 || int(cert.MultisigThreshold) > 3 {
		return nil, fmt.Errorf("%w: multisigThreshold %d out of range", ErrMalformedSignature, cert.MultisigThreshold)
	}
	if int(cert.MultisigThreshold) > len(cert.TargetPublicKeys) {
		return nil, fmt.Errorf("%w: multisigThreshold exceeds target key count", ErrMalformedSignature)
	}
	return cert, nil
}

// Encode serializes the cert back to its embedded-field form, for tests and
// for building fixtures.
func (c *SignCert) Encode() []byte {
	out := []byte{byte(len(c.TargetPublicKeys))}
	for _, k := range c.TargetPublicKeys {
		out = append(out, byte(len(k)))
		out = append(out, k...)
	}
	out = append(out, c.MultisigThreshold)
	return out
}

// EligibleSigningKeys returns signCert.targetPublicKeys if a signCert is
// present on p, else [owner] (spec §4.A).
func EligibleSigningKeys(p *Packed) ([][]byte, error) {
	if f, ok := p.Field(FieldSignCert); ok {
		cert, err := DecodeSignCert(f.Data)
		if err != nil {
			return nil, err
		}
		return cert.TargetPublicKeys, nil
	}
	owner := p.Owner()
	if owner == nil {
		return nil, fmt.Errorf("%w: record has neither signCert nor owner", ErrValidation)
	}
	return [][]byte{owner}, nil
}

// Threshold returns the number of signatures required for p to be fully
// signed: signCert.multisigThreshold if a cert is present, else 1.
func Threshold(p *Packed) (int, error) {
	f, ok := p.Field(FieldSignCert)
	if !ok {
		return 1, nil
	}
	cert, err := DecodeSignCert(f.Data)
	if err != nil {
		return 0, err
	}
	return int(cert.MultisigThreshold), nil
}
