package client

import (
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/fastsocket/fastsocket/internal/transport"
	"github.com/gobwas/ws/wsutil"
)

var socketIDPattern = regexp.MustCompile(`^\d{6}\.\d{6}$`)

func testApp(t *testing.T) *appmodel.App {
	t.Helper()
	app, err := appmodel.New("id", "key", "secret", "name", "host", "/", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return app
}

func TestGenerateSocketIDFormat(t *testing.T) {
	server, peer := net.Pipe()
	defer server.Close()
	defer peer.Close()
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()

	conn := transport.New(server, time.Second)
	c := New(conn, testApp(t))
	if !socketIDPattern.MatchString(c.SocketID) {
		t.Errorf("SocketID = %q, want format NNNNNN.NNNNNN", c.SocketID)
	}
}

func TestZeroClearsPublicKey(t *testing.T) {
	server, peer := net.Pipe()
	defer server.Close()
	defer peer.Close()
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()

	conn := transport.New(server, time.Second)
	c := New(conn, testApp(t))
	c.SetPublicKey([]byte("some-key-material"))
	c.Zero()
	if c.PublicKey != nil {
		t.Errorf("expected PublicKey to be nil after Zero, got %v", c.PublicKey)
	}
}

func TestSendCompilesAndWrites(t *testing.T) {
	server, peer := net.Pipe()
	defer server.Close()
	defer peer.Close()

	c := New(transport.New(server, time.Second), testApp(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		wsutil.ReadServerData(peer)
	}()

	payload, _ := codec.NewBuilder().Event("pusher:pong").Build()
	if err := c.Send(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}
