package record

import (
	"crypto/ed25519"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Sign produces a signature over msg using the given algorithm. For
// AlgoEd25519, priv must be an ed25519.PrivateKey. For AlgoSecp256k1, priv
// must be a 32-byte secp256k1 scalar (an Ethereum-style private key) and
// msg must be exactly 32 bytes (a digest, not the raw message).
func Sign(algo KeyAlgo, priv []byte, msg []byte) ([]byte, error) {
	switch algo {
	case AlgoEd25519:
		if len(priv) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes", ErrValidation, ed25519.PrivateKeySize)
		}
		return ed25519.Sign(ed25519.PrivateKey(priv), msg), nil
	case AlgoSecp256k1:
		if len(msg) != 32 {
			return nil, fmt.Errorf("%w: secp256k1 signing requires a 32-byte digest", ErrValidation)
		}
		pk, err := gethcrypto.ToECDSA(priv)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid secp256k1 private key: %v", ErrValidation, err)
		}
		sig, err := gethcrypto.Sign(msg, pk)
		if err != nil {
			return nil, fmt.Errorf("record: secp256k1 sign: %w", err)
		}
		// Drop the recovery id; the public key is carried separately on the
		// slot, matching the fixed {index, algoType, signature} tuple shape.
		return sig[:64], nil
	default:
		return nil, fmt.Errorf("%w: algo %d", ErrUnknownAlgorithm, algo)
	}
}

// Verify reports whether sig is a valid signature over msg by pub under the
// given algorithm.
func Verify(algo KeyAlgo, pub []byte, msg, sig []byte) (bool, error) {
	switch algo {
	case AlgoEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrValidation, ed25519.PublicKeySize)
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
	case AlgoSecp256k1:
		if len(msg) != 32 || len(sig) != 64 {
			return false, fmt.Errorf("%w: secp256k1 verify requires a 32-byte digest and 64-byte signature", ErrValidation)
		}
		if _, err := secp256k1.ParsePubKey(pub); err != nil {
			return false, fmt.Errorf("%w: invalid secp256k1 public key: %v", ErrValidation, err)
		}
		return gethcrypto.VerifySignature(pub, msg, sig), nil
	default:
		return false, fmt.Errorf("%w: algo %d", ErrUnknownAlgorithm, algo)
	}
}
