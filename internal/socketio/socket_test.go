package socketio_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextremer/minarai-client-go/internal/connectortest"
	"github.com/nextremer/minarai-client-go/internal/socketio"
)

func waitFor(t *testing.T, ch <-chan []json.RawMessage, what string) []json.RawMessage {
	t.Helper()
	select {
	case args := <-ch:
		return args
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

func TestSocketConnectEmitAndReceive(t *testing.T) {
	srv := connectortest.NewServer(connectortest.Config{})
	defer srv.Close()

	sock, err := socketio.New(srv.URL(), socketio.Options{Path: "/socket.io/v1"})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	defer sock.Close()

	connected := make(chan []json.RawMessage, 1)
	joined := make(chan []json.RawMessage, 1)
	sock.On(socketio.EventConnect, func(args []json.RawMessage) { connected <- args })
	sock.On("joined", func(args []json.RawMessage) { joined <- args })

	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if args := waitFor(t, connected, "connect"); len(args) != 0 {
		t.Fatalf("connect should carry no args, got %d", len(args))
	}

	if err := sock.Emit("join-as-client", map[string]string{"userId": "u1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	args := waitFor(t, joined, "joined")
	if len(args) != 1 {
		t.Fatalf("expected one joined arg, got %d", len(args))
	}
	var payload map[string]string
	if err := json.Unmarshal(args[0], &payload); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if payload["userId"] != "u1" {
		t.Fatalf("unexpected joined payload: %#v", payload)
	}

	ev, ok := srv.WaitEvent("join-as-client", 5*time.Second)
	if !ok {
		t.Fatal("server never saw join-as-client")
	}
	if len(ev.Args) != 1 {
		t.Fatalf("server got %d args", len(ev.Args))
	}
}

func TestSocketEmitBeforeConnectIsFlushed(t *testing.T) {
	srv := connectortest.NewServer(connectortest.Config{SkipJoin: true})
	defer srv.Close()

	sock, err := socketio.New(srv.URL(), socketio.Options{Path: "/socket.io/v1"})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	defer sock.Close()

	if err := sock.Emit("logs", map[string]any{}); err != nil {
		t.Fatalf("emit before connect: %v", err)
	}
	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, ok := srv.WaitEvent("logs", 5*time.Second); !ok {
		t.Fatal("queued event was not flushed after connect")
	}
}

func TestSocketServerPushMultipleHandlers(t *testing.T) {
	srv := connectortest.NewServer(connectortest.Config{})
	defer srv.Close()

	sock, err := socketio.New(srv.URL(), socketio.Options{Path: "/socket.io/v1"})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	defer sock.Close()

	connected := make(chan []json.RawMessage, 1)
	first := make(chan []json.RawMessage, 1)
	second := make(chan []json.RawMessage, 1)
	sock.On(socketio.EventConnect, func(args []json.RawMessage) { connected <- args })
	sock.On("sync", func(args []json.RawMessage) { first <- args })
	sock.On("sync", func(args []json.RawMessage) { second <- args })
	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, connected, "connect")

	if err := srv.Push("sync", map[string]any{"id": "m1"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, first, "first sync handler")
	waitFor(t, second, "second sync handler")
}

func TestSocketDisconnectSignal(t *testing.T) {
	srv := connectortest.NewServer(connectortest.Config{})
	defer srv.Close()

	sock, err := socketio.New(srv.URL(), socketio.Options{Path: "/socket.io/v1"})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	defer sock.Close()

	connected := make(chan []json.RawMessage, 1)
	disconnected := make(chan []json.RawMessage, 1)
	sock.On(socketio.EventConnect, func(args []json.RawMessage) { connected <- args })
	sock.On(socketio.EventDisconnect, func(args []json.RawMessage) { disconnected <- args })
	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, connected, "connect")

	srv.DisconnectAll()
	waitFor(t, disconnected, "disconnect")

	select {
	case <-sock.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run loop should exit without reconnect")
	}
}

func TestSocketConnectErrorSignal(t *testing.T) {
	sock, err := socketio.New("http://127.0.0.1:1", socketio.Options{HandshakeTimeout: time.Second})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	defer sock.Close()

	failed := make(chan []json.RawMessage, 1)
	sock.On(socketio.EventConnectError, func(args []json.RawMessage) { failed <- args })
	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	args := waitFor(t, failed, "connect_error")
	if len(args) != 1 {
		t.Fatalf("expected error arg, got %d", len(args))
	}
}

func TestSocketCloseIsIdempotent(t *testing.T) {
	srv := connectortest.NewServer(connectortest.Config{})
	defer srv.Close()

	sock, err := socketio.New(srv.URL(), socketio.Options{Path: "/socket.io/v1"})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := sock.Emit("message", map[string]any{}); !errors.Is(err, socketio.ErrClosed) {
		t.Fatalf("emit after close err=%v, want ErrClosed", err)
	}
	if err := sock.Connect(); !errors.Is(err, socketio.ErrClosed) {
		t.Fatalf("connect after close err=%v, want ErrClosed", err)
	}
	select {
	case <-sock.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not exit after close")
	}
}

func TestSocketURL(t *testing.T) {
	sock, err := socketio.New("https://connector.test/tenant", socketio.Options{Path: "socket.io/v1"})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	u := sock.URL()
	for _, want := range []string{"wss://connector.test/socket.io/v1/?", "EIO=3", "transport=websocket"} {
		if !strings.Contains(u, want) {
			t.Fatalf("url %q missing %q", u, want)
		}
	}
}

func TestSocketServerNamespaceDisconnect(t *testing.T) {
	srv := connectortest.NewServer(connectortest.Config{})
	defer srv.Close()

	sock, err := socketio.New(srv.URL(), socketio.Options{Path: "/socket.io/v1", Reconnect: true})
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	defer sock.Close()

	connected := make(chan []json.RawMessage, 1)
	disconnected := make(chan []json.RawMessage, 1)
	sock.On(socketio.EventConnect, func(args []json.RawMessage) { connected <- args })
	sock.On(socketio.EventDisconnect, func(args []json.RawMessage) { disconnected <- args })
	if err := sock.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, connected, "connect")
	if n := srv.Connections(); n != 1 {
		t.Fatalf("server connections=%d, want 1", n)
	}

	if err := srv.PushRaw("41"); err != nil {
		t.Fatalf("push raw: %v", err)
	}
	waitFor(t, disconnected, "disconnect")
	select {
	case <-sock.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server namespace disconnect must not reconnect")
	}
}
