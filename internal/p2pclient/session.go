package p2pclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Conn is the already-connected, already-handshaked framed transport a
// Client is built over (spec §1: the socket and handshake are out of
// scope). See internal/p2pclient/transport.go for the concrete
// implementation over a websocket connection with AEAD-sealed frames.
type Conn interface {
	Send(Envelope) error
	Recv() (Envelope, error)
	Close() error
}

// Options configures a Client (spec §4.E).
type Options struct {
	LocalFormat             Format
	RemotePreferredFormatID int
	KnownFormats            map[int]Format
	NowMillis               int64

	ClockDiffMillis    int64
	MaxClockSkewMillis int64 // 0 means unset: skip the check

	SessionTimeoutSeconds int // 0 means no automatic expiry

	Clock clock.Clock // defaults to the real clock
	Log   *logrus.Entry
}

// Client is the send side of the P2P request/response layer (spec §4.E).
type Client struct {
	conn   Conn
	format Format
	codec  Codec
	clk    clock.Clock
	log    *logrus.Entry

	mu      sync.Mutex
	closed  bool
	pending map[MsgID]*GetResponse

	expiryTimer *clock.Timer
	onClose     []func(hadError bool)
}

// New constructs a Client over conn. It enforces the clock-skew check and
// negotiates the serialization format before returning (spec §4.E): a
// session whose peers' clocks disagree by more than MaxClockSkewMillis, or
// whose negotiated format has already expired, is refused outright.
func New(conn Conn, opts Options) (*Client, error) {
	if opts.MaxClockSkewMillis > 0 {
		diff := opts.ClockDiffMillis
		if diff < 0 {
			diff = -diff
		}
		if diff > opts.MaxClockSkewMillis {
			return nil, fmt.Errorf("%w: |%d| > %d", ErrClockSkew, opts.ClockDiffMillis, opts.MaxClockSkewMillis)
		}
	}

	known := opts.KnownFormats
	if known == nil {
		known = map[int]Format{0: CanonicalFormat}
	}
	format, err := NegotiateFormat(opts.LocalFormat, opts.RemotePreferredFormatID, known, opts.NowMillis)
	if err != nil {
		return nil, err
	}
	codec, ok := Codecs[format.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered for format %d", ErrUnrecoverable, format.ID)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &Client{conn: conn, format: format, codec: codec, clk: clk, log: log, pending: make(map[MsgID]*GetResponse)}
	if opts.SessionTimeoutSeconds > 0 {
		c.expiryTimer = clk.AfterFunc(time.Duration(opts.SessionTimeoutSeconds)*time.Second, func() {
			_ = c.Close()
		})
	}
	go c.readLoop()
	return c, nil
}

// OnClose registers a callback fired when the session closes, with
// hadError reporting whether the closure was triggered by a transport
// error rather than an explicit Close call.
func (c *Client) OnClose(fn func(hadError bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

func (c *Client) readLoop() {
	for {
		env, err := c.conn.Recv()
		if err != nil {
			c.shutdown(true)
			return
		}
		c.mu.Lock()
		g, ok := c.pending[env.MsgID]
		if ok && env.IsFinal() {
			delete(c.pending, env.MsgID)
		}
		c.mu.Unlock()
		if ok {
			g.deliver(env)
		}
	}
}

// send serializes body with the negotiated codec and writes the envelope.
func (c *Client) send(action RouteAction, msgID MsgID, expectingReply bool, body any) error {
	data, err := c.codec.Encode(body)
	if err != nil {
		return err
	}
	return c.conn.Send(Envelope{Action: action, MsgID: msgID, ExpectingReply: expectingReply, Data: data})
}

// request registers a GetResponse for msgID and sends the initial request
// envelope. Every one of the six request types (spec §4.E) funnels through
// this.
func (c *Client) request(action RouteAction, body any, h Handlers, limit int, timeout, timeoutStream time.Duration) (*GetResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	msgID := NewMsgID()
	g := newGetResponse(msgID, c.clk, c.unsubscribeSend, h, limit, timeout, timeoutStream)
	c.pending[msgID] = g
	c.mu.Unlock()

	if err := c.send(action, msgID, true, body); err != nil {
		c.mu.Lock()
		delete(c.pending, msgID)
		c.mu.Unlock()
		return nil, err
	}
	return g, nil
}

func (c *Client) unsubscribeSend(env Envelope) error {
	return c.conn.Send(env)
}

// Fetch issues a RouteFetch request (spec §4.E).
func (c *Client) Fetch(req FetchRequest, h Handlers, limit int, timeout, timeoutStream time.Duration) (*GetResponse, error) {
	return c.request(RouteFetch, req, h, limit, timeout, timeoutStream)
}

// Store issues a RouteStore request.
func (c *Client) Store(req StoreRequest, h Handlers, timeout time.Duration) (*GetResponse, error) {
	return c.request(RouteStore, req, h, 0, timeout, 0)
}

// ReadBlob issues a RouteReadBlob request.
func (c *Client) ReadBlob(req ReadBlobRequest, h Handlers, limit int, timeout, timeoutStream time.Duration) (*GetResponse, error) {
	return c.request(RouteReadBlob, req, h, limit, timeout, timeoutStream)
}

// WriteBlob issues a RouteWriteBlob request.
func (c *Client) WriteBlob(req WriteBlobRequest, h Handlers, timeout time.Duration) (*GetResponse, error) {
	return c.request(RouteWriteBlob, req, h, 0, timeout, 0)
}

// Unsubscribe issues a RouteUnsubscribe request ending a prior
// subscription identified by its original msgId.
func (c *Client) Unsubscribe(req UnsubscribeRequest, h Handlers, timeout time.Duration) (*GetResponse, error) {
	return c.request(RouteUnsubscribe, req, h, 0, timeout, 0)
}

// Message issues a RouteMessage (generic) request.
func (c *Client) Message(req MessageRequest, h Handlers, timeout time.Duration) (*GetResponse, error) {
	return c.request(RouteMessage, req, h, 0, timeout, 0)
}

// Close terminates the session: it stops the expiry timer, closes the
// transport, marks every outstanding GetResponse done, and fires every
// registered session-level OnClose callback with hadError false.
// GetResponse handles have no close callback of their own: an explicit
// Close fires none of their handlers, and a session ended by a transport
// failure fires only their OnError.
func (c *Client) Close() error {
	return c.shutdown(false)
}

func (c *Client) shutdown(hadError bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
	}
	pending := c.pending
	c.pending = nil
	callbacks := c.onClose
	c.mu.Unlock()

	var closeErr error
	if !hadError {
		closeErr = c.conn.Close()
	} else {
		_ = c.conn.Close()
	}

	var err error
	if hadError {
		err = fmt.Errorf("%w: transport closed", ErrUnrecoverable)
	}
	for _, g := range pending {
		g.closeWithError(err)
	}
	for _, cb := range callbacks {
		cb(hadError)
	}
	return closeErr
}
