package runtime

import (
	"net/http"
	"sync/atomic"

	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/fastsocket/fastsocket/internal/transport"
	"github.com/gobwas/ws"
)

// upgrade completes the WebSocket handshake and wraps the resulting
// connection in a transport.Conn (spec.md §4.J step 1).
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*transport.Conn, error) {
	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}
	return transport.New(raw, s.cfg.WriteTimeout), nil
}

// sendConnectionEstablished emits the Open-state reply (spec.md §4.J
// step 4): socket_id and the deployment's chosen activity_timeout, in
// seconds.
func (s *Server) sendConnectionEstablished(c *client.Client) error {
	data, err := codec.NewBuilder().
		Event("pusher:connection_established").
		AddData("socket_id", c.SocketID).
		AddData("activity_timeout", int(s.cfg.ActivityTimeout.Seconds())).
		Build()
	if err != nil {
		return err
	}
	return c.Send(data)
}

// readLoop is the Reading state (spec.md §4.J step 5): read one frame
// at a time, branching on opcode, until a transport error or Close
// frame moves the connection to Closing.
func (s *Server) readLoop(c *client.Client) {
	defer s.teardown(c)

	c.Conn.SetReadDeadline(s.cfg.ActivityTimeout)
	for {
		frame, err := c.Conn.Read()
		if err != nil {
			s.logger.Debug().Str("socket_id", c.SocketID).Err(err).Msg("read failed, closing")
			return
		}
		c.Conn.SetReadDeadline(s.cfg.ActivityTimeout)

		switch frame.Op {
		case transport.OpClose:
			return
		case transport.OpPing:
			if err := c.Conn.Pong(); err != nil {
				s.logger.Debug().Str("socket_id", c.SocketID).Err(err).Msg("pong failed, closing")
				return
			}
		case transport.OpText, transport.OpBinary:
			s.handleFrame(c, frame)
		default:
			// Other opcodes (protocol-level Pong, continuation) carry
			// no payload to act on.
		}
	}
}

// handleFrame decodes and dispatches a single inbound data frame.
// Errors here are message-fatal (spec.md §7): logged, connection stays
// open, loop continues.
func (s *Server) handleFrame(c *client.Client, frame transport.Frame) {
	if s.statsEnabled(c.App) {
		s.metrics.MessagesReceived.Inc()
		s.metrics.BytesReceived.Add(float64(len(frame.Payload)))
	}

	payload, err := codec.Parse(frame.Payload)
	if err != nil {
		s.logger.Warn().Str("socket_id", c.SocketID).Err(err).Msg("failed to parse inbound payload")
		return
	}

	if err := s.dispatcher.Dispatch(c, payload); err != nil {
		s.logger.Warn().Str("socket_id", c.SocketID).Str("event", payload.Event()).Err(err).Msg("dispatch failed")
		if s.statsEnabled(c.App) {
			s.metrics.DispatchErrors.WithLabelValues(errKind(err)).Inc()
		}
	}
}

// teardown implements the Closing state (spec.md §4.J step 6): remove
// the client from every channel, decrement the owning app's connection
// count, release the transport, and decrement the live-connection
// counter exactly once.
func (s *Server) teardown(c *client.Client) {
	s.registry.RemoveFromAllChannels(c)
	s.catalog.DecrementConnectionCount(c.App.ID)
	c.Conn.Close()
	c.Zero()

	atomic.AddInt64(&s.liveConnections, -1)
	if s.statsEnabled(c.App) {
		s.metrics.ConnectionsActive.Dec()
	}
	s.logger.Debug().Str("socket_id", c.SocketID).Msg("connection closed")
}
