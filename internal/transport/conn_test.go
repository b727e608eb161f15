// ABOUTME: Tests for the JSON-lines wire client against a local TCP listener.
// ABOUTME: Covers connect/disconnect events, server pushes, and request correlation.

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"
)

// fakeEndpoint accepts one connection and hands frames to the test.
type fakeEndpoint struct {
	listener net.Listener
	conns    chan net.Conn
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	e := &fakeEndpoint{listener: listener, conns: make(chan net.Conn, 1)}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		e.conns <- conn
	}()
	return e
}

func (e *fakeEndpoint) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-e.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection arrived")
		return nil
	}
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived")
		return nil
	}
}

func TestConnect(t *testing.T) {
	t.Run("successful dial emits a connected event", func(t *testing.T) {
		endpoint := newFakeEndpoint(t)
		c := NewConn(endpoint.listener.Addr().String(), slog.Default())

		c.Connect()
		endpoint.accept(t)

		ev, ok := waitEvent(t, c.Events()).(ConnectedEvent)
		if !ok || !ev.OK {
			t.Fatalf("expected a successful ConnectedEvent, got %#v", ev)
		}
		if !c.Connected() {
			t.Fatal("Connected must report true")
		}
	})

	t.Run("failed dial emits a failure event", func(t *testing.T) {
		c := NewConn("127.0.0.1:1", slog.Default())
		c.Connect()

		ev, ok := waitEvent(t, c.Events()).(ConnectedEvent)
		if !ok || ev.OK {
			t.Fatalf("expected a failed ConnectedEvent, got %#v", ev)
		}
		if ev.Reason == "" {
			t.Fatal("failure must carry a reason")
		}
	})
}

func TestDisconnect(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	c := NewConn(endpoint.listener.Addr().String(), slog.Default())
	c.Connect()
	endpoint.accept(t)
	waitEvent(t, c.Events()) // ConnectedEvent

	c.Disconnect()

	ev, ok := waitEvent(t, c.Events()).(DisconnectedEvent)
	if !ok {
		t.Fatalf("expected a DisconnectedEvent, got %#v", ev)
	}
	if !ev.UserInitiated {
		t.Fatal("local disconnect must be marked user initiated")
	}
	if c.Connected() {
		t.Fatal("Connected must report false")
	}
}

func TestServerPush(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	c := NewConn(endpoint.listener.Addr().String(), slog.Default())
	c.Connect()
	server := endpoint.accept(t)
	waitEvent(t, c.Events()) // ConnectedEvent

	push := `{"type":"chat_message","data":{"sender_id":42,"chat_room_id":0,"message":"!status"}}` + "\n"
	if _, err := server.Write([]byte(push)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev, ok := waitEvent(t, c.Events()).(ChatMessageEvent)
	if !ok {
		t.Fatalf("expected a ChatMessageEvent, got %#v", ev)
	}
	if ev.SenderID != 42 || ev.Message != "!status" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestRedeemKey(t *testing.T) {
	endpoint := newFakeEndpoint(t)
	c := NewConn(endpoint.listener.Addr().String(), slog.Default())
	c.Connect()
	server := endpoint.accept(t)
	waitEvent(t, c.Events()) // ConnectedEvent

	// Echo the request id back with a canned receipt.
	go func() {
		scanner := bufio.NewScanner(server)
		if !scanner.Scan() {
			return
		}
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			return
		}
		reply, _ := json.Marshal(frame{
			Type: "redeem_key",
			ID:   f.ID,
			Data: json.RawMessage(`{"result":0,"items":["Game One"]}`),
		})
		server.Write(append(reply, '\n'))
	}()

	receipt, err := c.RedeemKey(context.Background(), "AAAA-BBBB-CCCC")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if receipt.Result != PurchaseOK || len(receipt.Items) != 1 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	t.Run("cancellation unblocks a pending request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := c.RedeemKey(ctx, "XXXX-YYYY-ZZZZ"); err == nil {
			t.Fatal("expected a context error")
		}
	})
}
