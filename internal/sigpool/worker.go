package sigpool

import (
	"github.com/meshfabric/fabricd/internal/record"
)

// signItem is one unit of sign work: a precomputed digest to sign with the
// given public key/algorithm. The coordinator computes the digest (via
// record.HashToSign) so the worker never needs the record itself.
type signItem struct {
	index     int // position within the caller's original record list
	publicKey []byte
	algo      record.KeyAlgo
	message   []byte
}

type signOutcome struct {
	index     int
	signature []byte
	err       error
}

// verifyItem is one unit of verify work: a record index plus the
// signatures already extracted for it by the coordinator.
type verifyItem struct {
	index      int
	signatures []record.Signature
}

type verifyOutcome struct {
	index int
	ok    bool
}

type signJob struct {
	items []signItem
	reply chan []signOutcome
}

type verifyJob struct {
	items []verifyItem
	reply chan []verifyOutcome
}

type addKeyJob struct {
	kp    KeyPair
	reply chan struct{}
}

// worker is a single parallel isolate: message processing within a worker
// is strictly sequential (spec §5), matching the source's single-threaded
// true-parallel-isolate model as closely as one address space allows.
type worker struct {
	inbox chan any
	keys  *keyring
	done  chan struct{}
}

func newWorker() *worker {
	w := &worker{inbox: make(chan any, 32), keys: newKeyring(), done: make(chan struct{})}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for msg := range w.inbox {
		switch j := msg.(type) {
		case addKeyJob:
			w.keys.add(j.kp)
			j.reply <- struct{}{}
		case signJob:
			out := make([]signOutcome, 0, len(j.items))
			for _, it := range j.items {
				kp, ok := w.keys.lookup(it.publicKey, it.algo)
				if !ok {
					out = append(out, signOutcome{index: it.index, err: ErrKeyNotFound})
					continue
				}
				sig, err := record.Sign(it.algo, kp.PrivateKey, it.message)
				out = append(out, signOutcome{index: it.index, signature: sig, err: err})
			}
			j.reply <- out
		case verifyJob:
			out := make([]verifyOutcome, 0, len(j.items))
			for _, it := range j.items {
				out = append(out, verifyOutcome{index: it.index, ok: w.verifyOne(it.signatures)})
			}
			j.reply <- out
		}
	}
}

// verifyOne reports whether every signature in the collection verifies and
// uses no unknown algorithm; "no partial credit" (spec §4.B failure model).
func (w *worker) verifyOne(sigs []record.Signature) bool {
	if len(sigs) == 0 {
		return false
	}
	for _, s := range sigs {
		switch s.Algo {
		case record.AlgoEd25519, record.AlgoSecp256k1:
		default:
			return false
		}
		ok, err := record.Verify(s.Algo, s.PublicKey, s.Message, s.Bytes)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (w *worker) close() {
	close(w.inbox)
	<-w.done
}
