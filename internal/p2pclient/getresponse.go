package p2pclient

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Handlers is the exhaustive set of callbacks a caller registers on a
// GetResponse, replacing the source's onAny catch-all with typed,
// exhaustive handling per spec §9.
type Handlers struct {
	OnReply   func(Envelope)
	OnCancel  func()
	OnTimeout func()
	OnError   func(error)
}

// GetResponse is the handle a caller holds for one outstanding
// request/response exchange (spec §4.E). It enforces the declared byte
// limit, the time-to-first-reply and idle-between-replies timeouts, and
// turns Cancel into a fire-and-forget unsubscribe plus local handler
// teardown (spec §5).
type GetResponse struct {
	msgID MsgID
	send  func(Envelope) error // fire-and-forget send of the unsubscribe envelope
	clk   clock.Clock

	limit     int // 0 means unlimited
	delivered int

	timeout       time.Duration
	timeoutStream time.Duration
	timer         *clock.Timer

	mu       sync.Mutex
	handlers Handlers
	done     bool
}

func newGetResponse(msgID MsgID, clk clock.Clock, send func(Envelope) error, h Handlers, limit int, timeout, timeoutStream time.Duration) *GetResponse {
	g := &GetResponse{msgID: msgID, clk: clk, send: send, handlers: h, limit: limit, timeout: timeout, timeoutStream: timeoutStream}
	if timeout > 0 {
		g.timer = clk.AfterFunc(timeout, g.fireTimeout)
	}
	return g
}

func (g *GetResponse) fireTimeout() {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	h := g.handlers.OnTimeout
	g.mu.Unlock()
	if h != nil {
		h()
	}
}

// deliver is called by the Client's read loop for every envelope matching
// this handle's msgId. It resets the idle timer on each message (spec
// §4.E: "timer resets on each message") and enforces the declared byte
// limit by canceling the stream once exceeded.
func (g *GetResponse) deliver(env Envelope) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return // late reply after cancel/timeout: discarded (spec §5)
	}
	g.delivered += len(env.Data)
	exceeded := g.limit > 0 && g.delivered > g.limit
	if g.timer != nil {
		g.timer.Stop()
	}
	var next time.Duration
	if !env.IsFinal() && g.timeoutStream > 0 {
		next = g.timeoutStream
	}
	final := env.IsFinal() || exceeded
	if final {
		g.done = true
	} else if next > 0 {
		g.timer = g.clk.AfterFunc(next, g.fireTimeout)
	}
	h := g.handlers
	g.mu.Unlock()

	if exceeded {
		if h.OnError != nil {
			h.OnError(ErrLimitExceeded)
		}
		g.cancelLocked()
		return
	}
	if h.OnReply != nil {
		h.OnReply(env)
	}
}

// Cancel sends a fire-and-forget unsubscribe for the original msgId,
// releases local handlers, and fires OnCancel (spec §5). Subsequent late
// replies are discarded by deliver's done check.
func (g *GetResponse) Cancel() {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	if g.timer != nil {
		g.timer.Stop()
	}
	h := g.handlers.OnCancel
	g.mu.Unlock()

	_ = g.send(Envelope{Action: RouteUnsubscribe, MsgID: g.msgID, ExpectingReply: false})
	if h != nil {
		h()
	}
}

func (g *GetResponse) cancelLocked() {
	g.mu.Lock()
	h := g.handlers.OnCancel
	g.mu.Unlock()
	_ = g.send(Envelope{Action: RouteUnsubscribe, MsgID: g.msgID, ExpectingReply: false})
	if h != nil {
		h()
	}
}

// closeWithError is invoked by the Client when the session closes out
// from under every outstanding handle. It marks the handle done and stops
// its timer; OnError fires only when err is non-nil (a transport failure),
// and no handler fires when the session was closed explicitly.
func (g *GetResponse) closeWithError(err error) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.done = true
	if g.timer != nil {
		g.timer.Stop()
	}
	h := g.handlers.OnError
	g.mu.Unlock()
	if h != nil && err != nil {
		h(err)
	}
}
