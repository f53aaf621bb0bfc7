// Transport framing for Client/Router: a gorilla/websocket connection
// carrying length-delimited, AEAD-sealed envelopes. The handshake that
// negotiates the session key is out of scope (spec §1) — WrapConn is
// handed an already-connected *websocket.Conn and an already-agreed
// 32-byte session key, the same division of labor as the teacher's
// core/security.go, which uses chacha20poly1305 for payload sealing but
// never negotiates the key itself.
package p2pclient

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/chacha20poly1305"
)

// wsConn implements Conn over a *websocket.Conn, sealing every outbound
// envelope and opening every inbound one with an XChaCha20-Poly1305 AEAD
// keyed by the session key (spec §6's framed, encrypted transport).
type wsConn struct {
	ws   *websocket.Conn
	aead aeadCipher

	writeMu sync.Mutex
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// WrapConn builds a Conn over an already-connected websocket using
// sessionKey (32 bytes) to seal/open frames.
func WrapConn(ws *websocket.Conn, sessionKey []byte) (Conn, error) {
	aead, err := chacha20poly1305.NewX(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("p2pclient: invalid session key: %w", err)
	}
	return &wsConn{ws: ws, aead: aead}, nil
}

// Send serializes env's header, seals (header || Data) as one AEAD
// message, and writes it as a single binary websocket message (spec §6:
// message envelope maximum size 70 KiB; larger responses are split into
// seq/endSeq sequences by the caller before reaching Send).
func (c *wsConn) Send(env Envelope) error {
	plain := encodeEnvelope(env)
	if len(plain) > MaxEnvelopeBytes {
		return fmt.Errorf("%w: envelope of %d bytes exceeds the %d byte limit", ErrUnrecoverable, len(plain), MaxEnvelopeBytes)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := c.aead.Seal(nil, nonce, plain, nil)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, append(nonce, sealed...))
}

// Recv reads one sealed websocket message, opens it, and decodes its
// envelope header.
func (c *wsConn) Recv() (Envelope, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	nonceLen := c.aead.NonceSize()
	if len(raw) < nonceLen {
		return Envelope{}, fmt.Errorf("%w: frame shorter than nonce", ErrUnrecoverable)
	}
	plain, err := c.aead.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	return decodeEnvelope(plain)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// encodeEnvelope lays out an Envelope as:
// action(1) msgId(16) expectingReply(1) seq(4) endSeq(4) dataLen(4) data.
func encodeEnvelope(env Envelope) []byte {
	out := make([]byte, 0, 30+len(env.Data))
	out = append(out, byte(env.Action))
	idBytes, _ := env.MsgID.MarshalBinary()
	out = append(out, idBytes...)
	var flag byte
	if env.ExpectingReply {
		flag = 1
	}
	out = append(out, flag)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(env.Seq))
	out = append(out, buf[:]...)
	binary.BigEndian.PutUint32(buf[:], uint32(env.EndSeq))
	out = append(out, buf[:]...)
	binary.BigEndian.PutUint32(buf[:], uint32(len(env.Data)))
	out = append(out, buf[:]...)
	out = append(out, env.Data...)
	return out
}

func decodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < 1+16+1+4+4+4 {
		return Envelope{}, fmt.Errorf("%w: truncated envelope header", ErrUnrecoverable)
	}
	pos := 0
	action := RouteAction(buf[pos])
	pos++
	var id uuid.UUID
	if err := id.UnmarshalBinary(buf[pos : pos+16]); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	pos += 16
	expecting := buf[pos] != 0
	pos++
	seq := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	endSeq := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	dataLen := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if pos+dataLen > len(buf) {
		return Envelope{}, fmt.Errorf("%w: envelope data length overruns frame", ErrUnrecoverable)
	}
	data := append([]byte(nil), buf[pos:pos+dataLen]...)
	return Envelope{Action: action, MsgID: id, ExpectingReply: expecting, Seq: seq, EndSeq: endSeq, Data: data}, nil
}
