package record

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"
)

// buildUnsigned builds a minimal packed image with an owner, creation time
// and, optionally, a signCert, leaving all signature slots empty.
func buildUnsigned(t *testing.T, owner []byte, cert *SignCert) *Builder {
	t.Helper()
	b := NewBuilder().
		Set(FieldModelType, 0, []byte{0, 0, 1}).
		Set(FieldOwner, 0, owner).
		Set(FieldCreationTime, 0, []byte{0, 0, 0, 0, 0, 1})
	if cert != nil {
		b.Set(FieldSignCert, 0, cert.Encode())
	}
	return b
}

// applySignature signs the record's next open slot with priv (whose index
// within the eligible-signing-keys array is keyIndex) and returns the
// rebuilt Packed.
func applySignature(t *testing.T, b *Builder, keyIndex int, algo KeyAlgo, priv []byte) *Packed {
	t.Helper()
	p, err := b.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msg, slot, err := HashToSign(p)
	if err != nil {
		t.Fatalf("hashToSign: %v", err)
	}
	sig, err := Sign(algo, priv, msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	data := append([]byte{byte(keyIndex), byte(algo)}, sig...)
	b.Set(slot, 0, data)
	p2, err := b.Parse()
	if err != nil {
		t.Fatalf("reparse after signing: %v", err)
	}
	return p2
}

func TestSignThenVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	b := buildUnsigned(t, pub, nil)
	p := applySignature(t, b, 0, AlgoEd25519, priv)

	sigs, err := ExtractSignatures(p, false)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigs))
	}
	ok, err := Verify(sigs[0].Algo, sigs[0].PublicKey, sigs[0].Message, sigs[0].Bytes)
	if err != nil || !ok {
		t.Fatalf("verify failed: ok=%v err=%v", ok, err)
	}

	// Flip one byte of the signature: verification must fail, extraction
	// must still succeed (structurally the record is still well formed).
	sigs[0].Bytes[0] ^= 0xFF
	ok, err = Verify(sigs[0].Algo, sigs[0].PublicKey, sigs[0].Message, sigs[0].Bytes)
	if err != nil {
		t.Fatalf("verify returned error instead of false: %v", err)
	}
	if ok {
		t.Fatalf("expected verify to fail after bit flip")
	}
}

func TestMultisigCertThreshold(t *testing.T) {
	pubA, privA, _ := ed25519.GenerateKey(nil)
	pubB, privB, _ := ed25519.GenerateKey(nil)
	pubC, _, _ := ed25519.GenerateKey(nil)

	cert := &SignCert{TargetPublicKeys: [][]byte{pubA, pubB, pubC}, MultisigThreshold: 2}
	b := buildUnsigned(t, pubA, cert) // owner unrelated once a signCert is present

	// One signature from A: not yet fully signed.
	p1 := applySignature(t, b, 0, AlgoEd25519, privA)
	if _, err := ExtractSignatures(p1, false); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("expected malformed-signature (below threshold), got %v", err)
	}
	if sigs, err := ExtractSignatures(p1, true); err != nil || len(sigs) != 1 {
		t.Fatalf("allowUnsigned=true should return the partial set: sigs=%v err=%v", sigs, err)
	}

	// Second signature from B: now fully signed.
	p2 := applySignature(t, b, 1, AlgoEd25519, privB)
	sigs, err := ExtractSignatures(p2, false)
	if err != nil {
		t.Fatalf("expected success at threshold, got %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(sigs))
	}
	for _, s := range sigs {
		if ok, err := Verify(s.Algo, s.PublicKey, s.Message, s.Bytes); err != nil || !ok {
			t.Fatalf("signature from slot %d failed to verify: ok=%v err=%v", s.Slot, ok, err)
		}
	}

	// A third signature is refused: one slot remains, but filling it would
	// exceed the threshold.
	if _, _, err := HashToSign(p2); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected a third signature to be refused at threshold 2, got %v", err)
	}
}

func TestZeroSignaturesRequiresAllowUnsigned(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	b := buildUnsigned(t, pub, nil)
	p, err := b.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractSignatures(p, false); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("expected ErrMalformedSignature, got %v", err)
	}
	if sigs, err := ExtractSignatures(p, true); err != nil || len(sigs) != 0 {
		t.Fatalf("expected empty signature set with allowUnsigned=true, got %v / %v", sigs, err)
	}
}

func TestRangeBytesExcludesOwnSlot(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	b := buildUnsigned(t, pub, nil)
	p, _ := b.Parse()
	msg, slot, err := HashToSign(p)
	if err != nil {
		t.Fatal(err)
	}
	if slot != FieldSignature1 {
		t.Fatalf("expected first open slot to be %d, got %d", FieldSignature1, slot)
	}
	direct := Hash(p, 0, FieldSignature1-1)
	if !bytes.Equal(msg[:], direct[:]) {
		t.Fatalf("hashToSign mismatch with direct range hash")
	}
	_ = priv
}
