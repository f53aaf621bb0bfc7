// Package p2pclient implements the bidirectional request/response RPC layer
// over a framed, encrypted transport (spec §4.E): fetch, store, blob
// read/write, unsubscribe, and generic-message exchanges, with per-peer
// permission enforcement, serialization-format negotiation, and streaming
// and subscription semantics.
//
// The socket and handshake transport themselves are out of scope (spec
// §1): Client is constructed over an already-connected Conn, the
// same way the teacher's network layer is handed an already-dialed
// libp2p host.
package p2pclient

import "errors"

// Sentinel errors (spec §7).
var (
	ErrClosed         = errors.New("p2pclient: handle used after close")
	ErrExpiredFormat  = errors.New("p2pclient: negotiated serialization format has expired")
	ErrClockSkew      = errors.New("p2pclient: clock skew exceeds the configured maximum")
	ErrUnrecoverable  = errors.New("p2pclient: unrecoverable protocol error")
	ErrNotAllowed     = errors.New("p2pclient: not allowed")
	ErrLimitExceeded  = errors.New("p2pclient: response exceeded the declared byte limit")
	ErrMismatch       = errors.New("p2pclient: integrity check failed")
)
