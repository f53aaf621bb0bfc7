// Package sigpool distributes record signing and verification across a
// fixed pool of worker goroutines (spec §4.B). Workers are modeled as
// independent, sequential message processors — the closest a single Go
// process can come to the source's "true parallel isolates" — coordinated
// by a round-robin placement counter and gathered with
// golang.org/x/sync/errgroup so a single failure cancels its siblings
// before any record is mutated.
package sigpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meshfabric/fabricd/internal/record"
)

// Offloader is the signature-offloader coordinator.
type Offloader struct {
	workers []*worker
	counter uint64

	mu     sync.RWMutex
	closed bool
}

// New spawns workers goroutines capable of Ed25519 and secp256k1 sign/verify.
func New(workers int) (*Offloader, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("sigpool: workers must be > 0, got %d", workers)
	}
	o := &Offloader{workers: make([]*worker, workers)}
	for i := range o.workers {
		o.workers[i] = newWorker()
	}
	return o, nil
}

// AddKeyPair broadcasts kp to every worker and returns only once all of
// them have acknowledged it — fixing the un-awaited broadcast flagged in
// spec §9 as a likely source bug.
func (o *Offloader) AddKeyPair(ctx context.Context, kp KeyPair) error {
	if o.isClosed() {
		return ErrClosed
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range o.workers {
		w := w
		g.Go(func() error {
			reply := make(chan struct{}, 1)
			select {
			case w.inbox <- addKeyJob{kp: kp, reply: reply}:
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrThreadingFailure, ctx.Err())
			}
			select {
			case <-reply:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrThreadingFailure, ctx.Err())
			}
		})
	}
	return g.Wait()
}

// shard splits n items into at most len(workers) contiguous chunks of size
// ceil(n/workers); workerFor hands successive chunks to workers off a
// round-robin counter so repeated calls spread load evenly (spec §4.B).
func (o *Offloader) shard(n int) [][2]int {
	w := len(o.workers)
	if n == 0 {
		return nil
	}
	chunkSize := (n + w - 1) / w
	var bounds [][2]int
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}

func (o *Offloader) workerFor(_ int) *worker {
	counter := atomic.AddUint64(&o.counter, 1) - 1
	idx := counter % uint64(len(o.workers))
	return o.workers[idx]
}

// Sign validates every record, computes the digest for its next open
// signature slot, shards that work round-robin across workers, awaits all
// partial results, and only then applies the signatures and recomputes
// id1. If any worker returns an error or a short result list, the whole
// call fails and no record is mutated (spec §4.B atomicity).
func (o *Offloader) Sign(ctx context.Context, records []*record.MutableRecord, publicKey []byte, algo record.KeyAlgo, deepValidate bool) error {
	if o.isClosed() {
		return ErrClosed
	}
	level := record.Shallow
	if deepValidate {
		level = record.Deep
	}

	type plan struct {
		keyIndex int
		algo     record.KeyAlgo
		message  [32]byte
		slot     uint8
	}
	plans := make([]plan, len(records))
	for i, r := range records {
		p, err := r.Packed()
		if err != nil {
			return err
		}
		if err := record.Validate(p, level); err != nil {
			return err
		}
		eligible, err := record.EligibleSigningKeys(p)
		if err != nil {
			return err
		}
		keyIndex := -1
		for idx, k := range eligible {
			if string(k) == string(publicKey) {
				keyIndex = idx
				break
			}
		}
		if keyIndex < 0 {
			return fmt.Errorf("%w: public key is not eligible to sign this record", record.ErrValidation)
		}
		msg, slot, err := r.HashToSign()
		if err != nil {
			return err
		}
		plans[i] = plan{keyIndex: keyIndex, algo: algo, message: msg, slot: slot}
	}

	bounds := o.shard(len(records))
	results := make([]signOutcome, 0, len(records))
	var resultsMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		i, b := i, b
		w := o.workerFor(i)
		g.Go(func() error {
			items := make([]signItem, 0, b[1]-b[0])
			for idx := b[0]; idx < b[1]; idx++ {
				items = append(items, signItem{index: idx, publicKey: publicKey, algo: plans[idx].algo, message: plans[idx].message[:]})
			}
			reply := make(chan []signOutcome, 1)
			select {
			case w.inbox <- signJob{items: items, reply: reply}:
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrThreadingFailure, ctx.Err())
			}
			select {
			case out := <-reply:
				if len(out) != len(items) {
					return fmt.Errorf("%w: worker returned %d results for %d items", ErrThreadingFailure, len(out), len(items))
				}
				resultsMu.Lock()
				results = append(results, out...)
				resultsMu.Unlock()
				return nil
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrThreadingFailure, ctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}

	byIndex := make(map[int]signOutcome, len(results))
	for _, r := range results {
		byIndex[r.index] = r
	}
	for i, r := range records {
		out := byIndex[i]
		if err := r.ApplySignature(plans[i].slot, plans[i].keyIndex, plans[i].algo, out.signature); err != nil {
			return err
		}
	}
	return nil
}

// Verify extracts all signatures (recursively) for each record, shards
// that across workers, reduces the worker results into a single list of
// verified indexes, and then runs a shallow validity check on each before
// including it in the output. Records that fail extraction, signature
// verification, or the shallow check are silently excluded — no partial
// credit within a record (spec §4.B).
func (o *Offloader) Verify(ctx context.Context, records []*record.Packed) ([]*record.Packed, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	var items []verifyItem
	for i, p := range records {
		sigs, err := record.ExtractSignaturesRecursive(p, false)
		if err != nil {
			continue // excluded, no partial credit
		}
		items = append(items, verifyItem{index: i, signatures: sigs})
	}

	bounds := o.shard(len(items))
	var okIndexes []int
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		i, b := i, b
		w := o.workerFor(i)
		g.Go(func() error {
			chunk := items[b[0]:b[1]]
			reply := make(chan []verifyOutcome, 1)
			select {
			case w.inbox <- verifyJob{items: chunk, reply: reply}:
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrThreadingFailure, ctx.Err())
			}
			select {
			case out := <-reply:
				if len(out) != len(chunk) {
					return fmt.Errorf("%w: worker returned %d results for %d items", ErrThreadingFailure, len(out), len(chunk))
				}
				mu.Lock()
				for _, o := range out {
					if o.ok {
						okIndexes = append(okIndexes, o.index)
					}
				}
				mu.Unlock()
				return nil
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrThreadingFailure, ctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Ints(okIndexes)
	out := make([]*record.Packed, 0, len(okIndexes))
	for _, idx := range okIndexes {
		if err := record.Validate(records[idx], record.Shallow); err != nil {
			continue
		}
		out = append(out, records[idx])
	}
	return out, nil
}

// Close terminates every worker. Subsequent calls on o fail with ErrClosed.
func (o *Offloader) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.closed = true
	o.mu.Unlock()
	for _, w := range o.workers {
		w.close()
	}
	return nil
}

func (o *Offloader) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}
