// Package channel implements the four channel variants (public,
// private, encrypted, presence) that together form component G: a
// named fan-out set within an app, tracking subscribers and routing
// broadcasts to them.
//
// All variants share a subscriber table and broadcast mechanics
// (base); only the subscribe policy and, for presence channels, the
// member bookkeeping differ. This mirrors the trait-object dispatch of
// the original implementation (original_source/src/channel.rs) the way
// Go idiomatically expresses "shared default, variant override":
// struct embedding plus an interface for the one method that varies.
package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/fastsocket/fastsocket/internal/apperr"
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/rs/zerolog"
)

// Kind identifies a channel variant.
type Kind int

const (
	KindPublic Kind = iota
	KindPrivate
	KindEncrypted
	KindPresence
)

// Channel is the common surface every variant implements. Subscribe is
// the only method whose behavior genuinely differs per variant; every
// other operation is implemented once on base and promoted by
// embedding.
type Channel interface {
	Name() string
	Kind() Kind
	Subscribe(c *client.Client, payload *codec.Payload) error
	Unsubscribe(socketID string)
	HasConnection() bool
	ClientsCount() uint64
	Subscribers() map[string]*client.Client
	Broadcast(payload *codec.Payload)
	BroadcastToEveryoneExcept(socketID string, payload *codec.Payload)
	BroadcastToOthers(c *client.Client, payload *codec.Payload)
	ToSummary() map[string]any
}

// base implements the subscriber table and broadcast mechanics shared
// by every variant. It is never used on its own; each variant embeds
// it and supplies its own Subscribe.
type base struct {
	name string
	mu   sync.RWMutex
	subs map[string]*client.Client
	log  zerolog.Logger
}

func newBase(name string, logger zerolog.Logger) base {
	return base{
		name: name,
		subs: make(map[string]*client.Client),
		log:  logger.With().Str("channel", name).Logger(),
	}
}

func (b *base) Name() string { return b.name }

// SaveConnection inserts client into the subscriber table, replacing
// any prior entry with the same socket-id (idempotent, spec.md
// Testable Property 13).
func (b *base) SaveConnection(c *client.Client) {
	b.mu.Lock()
	b.subs[c.SocketID] = c
	b.mu.Unlock()
}

// Unsubscribe removes socketID from the subscriber table. A missing
// socket-id is not an error (spec.md Testable Property 11).
func (b *base) Unsubscribe(socketID string) {
	b.mu.Lock()
	delete(b.subs, socketID)
	b.mu.Unlock()
}

func (b *base) HasConnection() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) > 0
}

func (b *base) ClientsCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(len(b.subs))
}

// Subscribers returns a snapshot mapping; callers may range over it
// without holding the channel's lock.
func (b *base) Subscribers() map[string]*client.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := make(map[string]*client.Client, len(b.subs))
	for k, v := range b.subs {
		snapshot[k] = v
	}
	return snapshot
}

// Broadcast sends payload to every subscriber. The subscriber-table
// lock is held for the duration of the broadcast (spec.md §5): a
// slow receiver serializes the broadcast rather than risk another
// goroutine observing a half-updated membership mid-send. Per-
// subscriber send failures are logged and do not abort the broadcast
// or remove the subscriber (spec.md §7 "Broadcast-local").
func (b *base) Broadcast(payload *codec.Payload) {
	b.broadcastFiltered(payload, "")
}

// BroadcastToEveryoneExcept sends payload to every subscriber other
// than exceptSocketID.
func (b *base) BroadcastToEveryoneExcept(exceptSocketID string, payload *codec.Payload) {
	b.broadcastFiltered(payload, exceptSocketID)
}

// BroadcastToOthers is a convenience wrapper sending to everyone
// except the given client.
func (b *base) BroadcastToOthers(c *client.Client, payload *codec.Payload) {
	b.broadcastFiltered(payload, c.SocketID)
}

func (b *base) broadcastFiltered(payload *codec.Payload, exceptSocketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for socketID, c := range b.subs {
		if socketID == exceptSocketID {
			continue
		}
		if err := c.Send(payload); err != nil {
			b.log.Warn().
				Str("socket_id", socketID).
				Err(err).
				Msg("failed to deliver broadcast to subscriber")
		}
	}
}

// ToSummary renders the channel's occupancy for admin/debug surfaces.
func (b *base) ToSummary() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]any{
		"occupied":           len(b.subs) > 0,
		"subscription_count": len(b.subs),
	}
}

// defaultSubscribe is the subscribe behavior shared by every variant's
// tail: save the connection, then reply with
// pusher_internal:subscription_succeeded.
func (b *base) defaultSubscribe(c *client.Client) error {
	b.SaveConnection(c)

	reply, err := codec.NewBuilder().
		Event("pusher_internal:subscription_succeeded").
		Channel(b.name).
		Build()
	if err != nil {
		return err
	}
	return c.Send(reply)
}

// verifySignature checks the auth field of payload against
// HMAC-SHA256(secret, socket_id:channel_name[:channel_data]), per
// spec.md §4.G. Comparison uses hmac.Equal, which is constant-time in
// the compared bytes (Testable Property 5).
func verifySignature(c *client.Client, channelName string, payload *codec.Payload) error {
	auth, ok := payload.GetDataStr("auth")
	if !ok {
		return apperr.New(apperr.KindInvalidSignature, "auth field missing or not a string")
	}

	appKey, hexSig, ok := splitAuth(auth)
	if !ok {
		return apperr.New(apperr.KindInvalidSignature, "auth field malformed, expected \"<app_key>:<hex_hmac>\"")
	}
	if appKey != c.App.Key {
		return apperr.New(apperr.KindInvalidSignature, "auth app key does not match connection's app")
	}

	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidSignature, "auth signature is not valid hex", err)
	}

	toSign := c.SocketID + ":" + channelName
	if channelData, ok := payload.GetDataStr("channel_data"); ok {
		toSign += ":" + channelData
	}

	mac := hmac.New(sha256.New, []byte(c.App.Secret))
	mac.Write([]byte(toSign))
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, sig) {
		return apperr.New(apperr.KindInvalidSignature, "signature does not match")
	}
	return nil
}

func splitAuth(auth string) (key, sig string, ok bool) {
	for i := 0; i < len(auth); i++ {
		if auth[i] == ':' {
			return auth[:i], auth[i+1:], true
		}
	}
	return "", "", false
}

// memberJSON renders a presence member's user_id/user_info pair for
// the member_added/member_removed broadcasts and the initial
// subscription_succeeded hash.
type memberJSON struct {
	UserID   json.RawMessage `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}
