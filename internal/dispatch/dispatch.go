// Package dispatch classifies an inbound payload and drives the
// subscribe/unsubscribe/ping/client-event flow (component I). It sits
// between the connection runtime and the channel registry: it never
// touches the transport directly, only through the client it's handed.
package dispatch

import (
	"strings"

	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/fastsocket/fastsocket/internal/registry"
	"github.com/rs/zerolog"
)

// Dispatcher routes decoded payloads for every app's channels. One
// Dispatcher is shared by every connection of a process
// (it is app-agnostic; app scoping happens inside the registry via
// client.App.ID).
type Dispatcher struct {
	registry *registry.Registry
	logger   zerolog.Logger
}

// New returns a Dispatcher backed by reg.
func New(reg *registry.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, logger: logger.With().Str("component", "dispatch").Logger()}
}

const pusherPrefix = "pusher:"

// Dispatch classifies payload and acts on it. Errors returned here are
// message-fatal (spec.md §7): the caller logs and keeps reading: the
// connection itself is never closed because of a bad message.
func (d *Dispatcher) Dispatch(c *client.Client, payload *codec.Payload) error {
	event := payload.Event()
	if strings.HasPrefix(event, pusherPrefix) {
		return d.dispatchControl(c, event, payload)
	}
	return d.dispatchClientEvent(c, payload)
}

func (d *Dispatcher) dispatchControl(c *client.Client, event string, payload *codec.Payload) error {
	switch event {
	case "pusher:ping":
		return d.handlePing(c)
	case "pusher:subscribe":
		return d.handleSubscribe(c, payload)
	case "pusher:unsubscribe":
		return d.handleUnsubscribe(c, payload)
	default:
		// Forward-compatible: unrecognized pusher:* control messages are
		// silently ignored (spec.md §4.I).
		return nil
	}
}

// handlePing replies to an explicit pusher:ping control message with a
// pusher:pong text event. This is distinct from the protocol-level
// opcode Ping handled by the connection runtime's read loop, which
// replies with a bare opcode Pong frame instead (spec.md §4.J step 5).
func (d *Dispatcher) handlePing(c *client.Client) error {
	payload, err := codec.NewBuilder().Event("pusher:pong").Build()
	if err != nil {
		return err
	}
	return c.Send(payload)
}

func (d *Dispatcher) handleSubscribe(c *client.Client, payload *codec.Payload) error {
	name, ok := payload.GetDataStr("channel")
	if !ok || name == "" {
		d.logger.Debug().Str("socket_id", c.SocketID).Msg("subscribe with no data.channel, ignoring")
		return nil
	}
	ch := d.registry.FindOrCreate(c.App.ID, name)
	return ch.Subscribe(c, payload)
}

func (d *Dispatcher) handleUnsubscribe(c *client.Client, payload *codec.Payload) error {
	name := payload.Channel()
	if name == "" {
		return nil
	}
	if ch, ok := d.registry.Find(c.App.ID, name); ok {
		ch.Unsubscribe(c.SocketID)
	}
	return nil
}

// dispatchClientEvent relays a client-originated (non pusher:*) event
// to every other subscriber of the target channel, but only if the
// owning app has client-messages-enabled (spec.md §4.I). Apps that
// disable client messages silently drop these, no error surfaced.
func (d *Dispatcher) dispatchClientEvent(c *client.Client, payload *codec.Payload) error {
	if !c.App.ClientMessagesEnabled() {
		return nil
	}
	name := payload.Channel()
	if name == "" {
		return nil
	}
	ch, ok := d.registry.Find(c.App.ID, name)
	if !ok {
		return nil
	}
	ch.BroadcastToOthers(c, payload)
	return nil
}
