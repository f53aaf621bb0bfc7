package sigpool

import (
	"encoding/hex"

	"github.com/meshfabric/fabricd/internal/record"
)

// KeyPair is a signing identity broadcast to every worker via AddKeyPair.
// In the single-process layout the private key never leaves worker address
// space after that broadcast; a sandboxed key-manager layout would instead
// keep PrivateKey behind an RPC boundary the worker calls into (spec §4.B).
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
	Algo       record.KeyAlgo
}

func keyringKey(pub []byte, algo record.KeyAlgo) string {
	return hex.EncodeToString(pub) + ":" + algo.String()
}

// keyring is a single worker's private registry of keypairs, written only
// by the AddKeyPair broadcast and read only by that same worker's goroutine
// (spec §5: "per-worker, write via addKeyPair broadcast, read by workers
// only").
type keyring struct {
	byKey map[string]KeyPair
}

func newKeyring() *keyring {
	return &keyring{byKey: make(map[string]KeyPair)}
}

func (k *keyring) add(kp KeyPair) {
	k.byKey[keyringKey(kp.PublicKey, kp.Algo)] = kp
}

func (k *keyring) lookup(pub []byte, algo record.KeyAlgo) (KeyPair, bool) {
	kp, ok := k.byKey[keyringKey(pub, algo)]
	return kp, ok
}
