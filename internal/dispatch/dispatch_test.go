package dispatch

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/fastsocket/fastsocket/internal/registry"
	"github.com/fastsocket/fastsocket/internal/transport"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
)

// recordingClient wires a client.Client to one end of a net.Pipe and
// decodes every server->client frame the other side writes, so tests
// can assert on what a dispatched event actually sent back.
type recordingClient struct {
	client *client.Client
	frames chan []byte
}

func newRecordingClient(t *testing.T, app *appmodel.App) *recordingClient {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { server.Close(); peer.Close() })

	rc := &recordingClient{frames: make(chan []byte, 16)}
	go func() {
		for {
			data, _, err := wsutil.ReadServerData(peer)
			if err != nil {
				return
			}
			rc.frames <- data
		}
	}()

	conn := transport.New(server, time.Second)
	rc.client = client.New(conn, app)
	return rc
}

func (rc *recordingClient) expectEvent(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case frame := <-rc.frames:
		var probe struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(frame, &probe); err != nil {
			t.Fatalf("failed to unmarshal frame: %v (frame=%q)", err, frame)
		}
		return probe.Event
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a frame")
		return ""
	}
}

func testApp(t *testing.T, clientMessagesEnabled bool) *appmodel.App {
	t.Helper()
	app, err := appmodel.New("app1", "key1", "secret1", "name", "host", "/", 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	app.SetClientMessagesEnabled(clientMessagesEnabled)
	return app
}

func TestDispatchPingRepliesWithPusherPong(t *testing.T) {
	logger := zerolog.Nop()
	d := New(registry.New(logger), logger)
	app := testApp(t, false)
	rc := newRecordingClient(t, app)

	payload, _ := codec.NewBuilder().Event("pusher:ping").Build()
	if err := d.Dispatch(rc.client, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := rc.expectEvent(t, time.Second)
	if event != "pusher:pong" {
		t.Errorf("reply event = %q, want pusher:pong", event)
	}
}

func TestDispatchSubscribeThenClientEventRelayed(t *testing.T) {
	logger := zerolog.Nop()
	reg := registry.New(logger)
	d := New(reg, logger)
	app := testApp(t, true)

	a := newRecordingClient(t, app)
	b := newRecordingClient(t, app)

	sub, _ := codec.NewBuilder().Event("pusher:subscribe").AddData("channel", "chat").Build()
	if err := d.Dispatch(a.client, sub); err != nil {
		t.Fatalf("unexpected error subscribing A: %v", err)
	}
	a.expectEvent(t, time.Second) // subscription_succeeded

	if err := d.Dispatch(b.client, sub); err != nil {
		t.Fatalf("unexpected error subscribing B: %v", err)
	}
	b.expectEvent(t, time.Second) // subscription_succeeded

	clientEvent, _ := codec.NewBuilder().Event("client-ping").Channel("chat").Build()
	if err := d.Dispatch(a.client, clientEvent); err != nil {
		t.Fatalf("unexpected error dispatching client event: %v", err)
	}

	if event := b.expectEvent(t, time.Second); event != "client-ping" {
		t.Errorf("B's received event = %q, want client-ping", event)
	}
	select {
	case frame := <-a.frames:
		t.Errorf("A (the sender) should not receive its own broadcast, got %q", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatchClientEventDroppedWhenDisabled(t *testing.T) {
	logger := zerolog.Nop()
	reg := registry.New(logger)
	d := New(reg, logger)
	app := testApp(t, false)

	a := newRecordingClient(t, app)
	b := newRecordingClient(t, app)

	sub, _ := codec.NewBuilder().Event("pusher:subscribe").AddData("channel", "chat").Build()
	d.Dispatch(a.client, sub)
	a.expectEvent(t, time.Second)
	d.Dispatch(b.client, sub)
	b.expectEvent(t, time.Second)

	clientEvent, _ := codec.NewBuilder().Event("client-ping").Channel("chat").Build()
	if err := d.Dispatch(a.client, clientEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case frame := <-b.frames:
		t.Errorf("expected no relay when client-messages is disabled, got %q", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatchUnsubscribeUnknownChannelIsNoOp(t *testing.T) {
	logger := zerolog.Nop()
	d := New(registry.New(logger), logger)
	app := testApp(t, false)
	a := newRecordingClient(t, app)

	unsub, _ := codec.NewBuilder().Event("pusher:unsubscribe").Channel("never-subscribed").Build()
	if err := d.Dispatch(a.client, unsub); err != nil {
		t.Errorf("expected unsubscribing from an unknown channel to be a no-op, got error: %v", err)
	}
}
