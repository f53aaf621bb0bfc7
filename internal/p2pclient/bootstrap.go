package p2pclient

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/sirupsen/logrus"
)

// NewHost bootstraps a libp2p host and its gossip pubsub, the substrate
// TriggerBus runs on. Grounded directly on the teacher's core/network.go
// NewNode: a libp2p.New host, a pubsub.NewGossipSub over it, then a
// best-effort dial of the configured bootstrap peers.
func NewHost(ctx context.Context, listenAddr string, bootstrapPeers []string, log *logrus.Entry) (host.Host, *pubsub.PubSub, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, nil, fmt.Errorf("p2pclient: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, nil, fmt.Errorf("p2pclient: create pubsub: %w", err)
	}

	for _, addr := range bootstrapPeers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.WithField("addr", addr).WithError(err).Warn("skipping malformed bootstrap peer")
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			log.WithField("peer", info.ID).WithError(err).Warn("bootstrap dial failed")
		}
	}

	return h, ps, nil
}
