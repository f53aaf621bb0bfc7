// Trigger delivery for fetch subscriptions (spec §4.E): an indefinite
// stream seeded by a triggerNodeId or triggerInterval is carried over a
// libp2p pubsub topic per view key, adapting the teacher's
// core/network.go Node.Broadcast/Node.Subscribe pair from a generic gossip
// layer into CRDT-trigger delivery.
package p2pclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/sirupsen/logrus"
)

// TriggerBus publishes and delivers trigger notifications for active fetch
// subscriptions, one pubsub topic per view key.
type TriggerBus struct {
	ps *pubsub.PubSub

	mu     sync.Mutex
	topics map[[32]byte]*pubsub.Topic
	log    *logrus.Entry
}

// NewTriggerBus wraps an already-joined libp2p pubsub instance (the host
// and its join to the network are out of scope per spec §1).
func NewTriggerBus(ps *pubsub.PubSub, log *logrus.Entry) *TriggerBus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TriggerBus{ps: ps, topics: make(map[[32]byte]*pubsub.Topic), log: log}
}

func topicName(viewKey [32]byte) string {
	return "fabricd/view/" + hex.EncodeToString(viewKey[:])
}

func (b *TriggerBus) topicFor(viewKey [32]byte) (*pubsub.Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[viewKey]; ok {
		return t, nil
	}
	t, err := b.ps.Join(topicName(viewKey))
	if err != nil {
		return nil, fmt.Errorf("p2pclient: join trigger topic: %w", err)
	}
	b.topics[viewKey] = t
	return t, nil
}

// Publish announces that viewKey's underlying model changed, carrying the
// ids of the records that triggered the delivery (the Router publishes
// the id1 of each newly stored record).
func (b *TriggerBus) Publish(ctx context.Context, viewKey [32]byte, changedID1s [][32]byte) error {
	t, err := b.topicFor(viewKey)
	if err != nil {
		return err
	}
	payload := make([]byte, 0, len(changedID1s)*32)
	for _, id := range changedID1s {
		payload = append(payload, id[:]...)
	}
	if err := t.Publish(ctx, payload); err != nil {
		b.log.WithError(err).WithField("viewKey", hex.EncodeToString(viewKey[:])).Warn("trigger publish dropped")
		return err
	}
	return nil
}

// Subscribe returns a channel of changed-id1 batches for viewKey. The
// returned cancel func must be called to leave the topic and stop the
// background read loop once the consumer unsubscribes (spec §4.E).
func (b *TriggerBus) Subscribe(ctx context.Context, viewKey [32]byte) (<-chan [][32]byte, func(), error) {
	t, err := b.topicFor(viewKey)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, fmt.Errorf("p2pclient: subscribe trigger topic: %w", err)
	}

	out := make(chan [][32]byte, 8)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			if len(msg.Data)%32 != 0 {
				continue
			}
			ids := make([][32]byte, len(msg.Data)/32)
			for i := range ids {
				copy(ids[i][:], msg.Data[i*32:(i+1)*32])
			}
			select {
			case out <- ids:
			case <-subCtx.Done():
				return
			default:
				// Backpressure: drop this batch silently; no
				// DroppedTrigger status is sent to the consumer.
			}
		}
	}()

	return out, func() {
		cancel()
		sub.Cancel()
	}, nil
}
