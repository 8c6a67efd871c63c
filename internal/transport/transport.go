// Package transport wraps a single WebSocket connection behind a small
// read/send/pong interface (component E). It is the only place that
// reads or writes WebSocket frames; internal/runtime imports
// github.com/gobwas/ws only for the HTTP upgrade, and every other
// package deals in *codec.Payload and byte slices.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/fastsocket/fastsocket/internal/apperr"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// OpCode mirrors the subset of gobwas/ws opcodes the connection runtime
// needs to branch on, so its read loop never handles gobwas/ws opcode
// values.
type OpCode int

const (
	OpText OpCode = iota
	OpBinary
	OpPing
	OpPong
	OpClose
	OpOther
)

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Op      OpCode
	Payload []byte
}

// Conn wraps a net.Conn established via ws.UpgradeHTTP. All writes
// serialize through writeMu so a broadcast from another goroutine can
// never interleave with this connection's own ping or reply (spec.md
// §4.E, §5 "Transport").
type Conn struct {
	raw      net.Conn
	writeMu  sync.Mutex
	writeTO  time.Duration
}

// New wraps raw, a connection that has already completed the WebSocket
// handshake.
func New(raw net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{raw: raw, writeTO: writeTimeout}
}

// Read blocks for the next frame. Read errors are always mapped to
// KindConnectionClosed: by the time a read fails, the only reasonable
// action is to tear the connection down (spec.md §4.J step 5).
func (c *Conn) Read() (Frame, error) {
	data, op, err := wsutil.ReadClientData(c.raw)
	if err != nil {
		return Frame{}, apperr.Wrap(apperr.KindConnectionClosed, "read failed", err)
	}
	return Frame{Op: fromWSOp(op), Payload: data}, nil
}

// Send writes payload as a single text frame. Concurrent callers (the
// read loop replying to a control message, and any broadcaster sending
// into this client from another goroutine) serialize on writeMu.
func (c *Conn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	if err := wsutil.WriteServerMessage(c.raw, ws.OpText, payload); err != nil {
		return apperr.Wrap(apperr.KindSendFailed, "failed to write text frame", err)
	}
	return nil
}

// Pong writes a protocol-level pong frame with an empty payload, the
// response to an inbound opcode-Ping frame (spec.md §4.J step 5,
// Testable Property 12).
func (c *Conn) Pong() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	if err := wsutil.WriteServerMessage(c.raw, ws.OpPong, nil); err != nil {
		return apperr.Wrap(apperr.KindPongFailed, "failed to write pong frame", err)
	}
	return nil
}

// Ping writes a protocol-level ping frame. The connection runtime has
// no keepalive ticker and does not call it.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	if err := wsutil.WriteServerMessage(c.raw, ws.OpPing, nil); err != nil {
		return apperr.Wrap(apperr.KindSendFailed, "failed to write ping frame", err)
	}
	return nil
}

// Close writes a close frame (best-effort) and closes the underlying
// connection. Safe to call multiple times.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	wsutil.WriteServerMessage(c.raw, ws.OpClose, nil)
	c.writeMu.Unlock()
	return c.raw.Close()
}

// SetReadDeadline extends the read deadline, called by the read loop
// after every successful read (and once before entering it) so an idle
// client without pings gets dropped instead of leaking a goroutine
// forever.
func (c *Conn) SetReadDeadline(d time.Duration) {
	c.raw.SetReadDeadline(time.Now().Add(d))
}

func (c *Conn) setWriteDeadline() {
	if c.writeTO > 0 {
		c.raw.SetWriteDeadline(time.Now().Add(c.writeTO))
	}
}

func fromWSOp(op ws.OpCode) OpCode {
	switch op {
	case ws.OpText:
		return OpText
	case ws.OpBinary:
		return OpBinary
	case ws.OpPing:
		return OpPing
	case ws.OpPong:
		return OpPong
	case ws.OpClose:
		return OpClose
	default:
		return OpOther
	}
}
