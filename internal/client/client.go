// Package client holds the per-connection identity: socket-id, owning
// app, and the transport handle the connection runtime reads from and
// every channel broadcast writes to.
package client

import (
	"fmt"
	"math/rand/v2"

	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/fastsocket/fastsocket/internal/transport"
)

// Client is constructed once per WebSocket connection at upgrade time
// and lives until the transport closes. Its transport is exclusively
// owned by the client: the read loop reads from it, and any goroutine
// broadcasting into a channel this client subscribes to sends through
// it, relying on transport.Conn's internal write lock to keep those
// writes from interleaving.
type Client struct {
	SocketID  string
	PublicKey []byte
	App       *appmodel.App
	Conn      *transport.Conn
}

// New constructs a Client bound to conn and app, generating a fresh
// socket-id.
func New(conn *transport.Conn, app *appmodel.App) *Client {
	return &Client{
		SocketID: generateSocketID(),
		App:      app,
		Conn:     conn,
	}
}

// generateSocketID draws two independent uniform integers in
// [0, 10^6) and formats them zero-padded as "NNNNNN.NNNNNN" (spec.md
// §4.F). Collisions within a live connection set are astronomically
// unlikely and are not checked, per spec.
func generateSocketID() string {
	a := rand.IntN(1_000_000)
	b := rand.IntN(1_000_000)
	return fmt.Sprintf("%06d.%06d", a, b)
}

// SetPublicKey binds public-key material to the client, used to
// encrypt outbound payloads on private-encrypted- channels (spec.md
// §4.G). Delivered out of band; this package does not validate it.
func (c *Client) SetPublicKey(key []byte) { c.PublicKey = key }

// Send compiles payload (encrypting its data field if a public key is
// bound) and writes it as a single text frame.
func (c *Client) Send(payload *codec.Payload) error {
	wire, err := codec.Compile(payload, c.PublicKey)
	if err != nil {
		return err
	}
	return c.Conn.Send(wire)
}

// Zero clears any sensitive buffers bound to this client. Called when
// the client is dropped (spec.md §3 Client lifecycle).
func (c *Client) Zero() {
	for i := range c.PublicKey {
		c.PublicKey[i] = 0
	}
	c.PublicKey = nil
}
