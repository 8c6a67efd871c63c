package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/fastsocket/fastsocket/internal/transport"
	"github.com/rs/zerolog"
)

// newTestClient wires a *client.Client to one end of an in-memory
// net.Pipe, draining whatever the channel writes to it so Send never
// blocks on an unread buffer.
func newTestClient(t *testing.T, app *appmodel.App) *client.Client {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { server.Close(); peer.Close() })
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()
	conn := transport.New(server, time.Second)
	return client.New(conn, app)
}

func testApp(t *testing.T) *appmodel.App {
	t.Helper()
	app, err := appmodel.New("id", "key", "secret", "name", "host", "/", 100, 0)
	if err != nil {
		t.Fatalf("unexpected error constructing test app: %v", err)
	}
	return app
}

func signAuth(app *appmodel.App, socketID, channelName, channelData string) string {
	toSign := socketID + ":" + channelName
	if channelData != "" {
		toSign += ":" + channelData
	}
	mac := hmac.New(sha256.New, []byte(app.Secret))
	mac.Write([]byte(toSign))
	return app.Key + ":" + hex.EncodeToString(mac.Sum(nil))
}

func TestPublicSubscribeRequiresNoAuth(t *testing.T) {
	logger := zerolog.Nop()
	ch := NewPublic("chat", logger)
	app := testApp(t)
	c := newTestClient(t, app)

	payload, _ := codec.NewBuilder().Event("pusher:subscribe").Build()
	if err := ch.Subscribe(c, payload); err != nil {
		t.Fatalf("unexpected error subscribing to a public channel: %v", err)
	}
	if !ch.HasConnection() {
		t.Errorf("expected the channel to have a connection after subscribe")
	}
}

func TestPrivateSubscribeRejectsBadSignature(t *testing.T) {
	logger := zerolog.Nop()
	ch := NewPrivate("private-room", logger)
	app := testApp(t)
	c := newTestClient(t, app)

	payload, _ := codec.NewBuilder().Event("pusher:subscribe").AddData("auth", "key:deadbeef").Build()
	if err := ch.Subscribe(c, payload); err == nil {
		t.Fatalf("expected an error for a bad signature")
	}
	if ch.HasConnection() {
		t.Errorf("expected no connection to be saved after a rejected signature (Testable Property: auth failure leaves client unsubscribed)")
	}
}

func TestPrivateSubscribeAcceptsValidSignature(t *testing.T) {
	logger := zerolog.Nop()
	ch := NewPrivate("private-room", logger)
	app := testApp(t)
	c := newTestClient(t, app)

	auth := signAuth(app, c.SocketID, "private-room", "")
	payload, _ := codec.NewBuilder().Event("pusher:subscribe").AddData("auth", auth).Build()
	if err := ch.Subscribe(c, payload); err != nil {
		t.Fatalf("unexpected error with a valid signature: %v", err)
	}
	if !ch.HasConnection() {
		t.Errorf("expected the channel to have a connection after a valid subscribe")
	}
}

func TestPresenceSubscribeTracksMembersAndBroadcasts(t *testing.T) {
	logger := zerolog.Nop()
	ch := NewPresence("presence-room", logger)
	app := testApp(t)
	a := newTestClient(t, app)
	b := newTestClient(t, app)

	channelDataA := `{"user_id":"1","user_info":{"name":"alice"}}`
	authA := signAuth(app, a.SocketID, "presence-room", channelDataA)
	payloadA, _ := codec.NewBuilder().Event("pusher:subscribe").
		AddData("auth", authA).
		AddData("channel_data", channelDataA).
		Build()
	if err := ch.Subscribe(a, payloadA); err != nil {
		t.Fatalf("unexpected error subscribing A: %v", err)
	}

	channelDataB := `{"user_id":"2","user_info":{"name":"bob"}}`
	authB := signAuth(app, b.SocketID, "presence-room", channelDataB)
	payloadB, _ := codec.NewBuilder().Event("pusher:subscribe").
		AddData("auth", authB).
		AddData("channel_data", channelDataB).
		Build()
	if err := ch.Subscribe(b, payloadB); err != nil {
		t.Fatalf("unexpected error subscribing B: %v", err)
	}

	if got := ch.ClientsCount(); got != 2 {
		t.Errorf("ClientsCount() = %d, want 2", got)
	}

	summary := ch.presenceSummary()
	var decoded struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(summary, &decoded); err != nil {
		t.Fatalf("unexpected error decoding presence summary: %v", err)
	}
	if decoded.Count != 2 {
		t.Errorf("presence summary count = %d, want 2", decoded.Count)
	}
}

func TestPresenceUnsubscribeRemovesMember(t *testing.T) {
	logger := zerolog.Nop()
	ch := NewPresence("presence-room", logger)
	app := testApp(t)
	a := newTestClient(t, app)

	channelData := `{"user_id":"1"}`
	auth := signAuth(app, a.SocketID, "presence-room", channelData)
	payload, _ := codec.NewBuilder().Event("pusher:subscribe").
		AddData("auth", auth).
		AddData("channel_data", channelData).
		Build()
	if err := ch.Subscribe(a, payload); err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}

	ch.Unsubscribe(a.SocketID)
	if ch.HasConnection() {
		t.Errorf("expected no connections after unsubscribe")
	}
	// Unsubscribing an id that was never present must be a no-op, not a
	// panic or error (spec.md Testable Property 11).
	ch.Unsubscribe("never-subscribed")
}

func TestBroadcastToOthersCompletes(t *testing.T) {
	logger := zerolog.Nop()
	ch := NewPublic("chat", logger)
	app := testApp(t)
	a := newTestClient(t, app)
	b := newTestClient(t, app)

	sub, _ := codec.NewBuilder().Event("pusher:subscribe").Build()
	ch.Subscribe(a, sub)
	ch.Subscribe(b, sub)

	event, _ := codec.NewBuilder().Event("client-hello").Build()
	// Exercises the broadcastFiltered path directly; correctness of
	// exclusion is covered end-to-end in internal/dispatch's tests,
	// which can observe which sockets actually receive bytes.
	ch.BroadcastToOthers(a, event)
}
