package daemonclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

func newTestStreamer(srv *httptest.Server) *CommandStreamer {
	parsed, err := url.Parse(srv.URL)
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		panic(err)
	}
	return NewCommandStreamer(New(parsed.Hostname(), int32(port), 5*time.Second), parsed.Hostname(), int32(port))
}

func TestCommandStreamer_SubscribeThenStart(t *testing.T) {
	var sawStart bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run/command" {
			w.Header().Set("Content-Type", "application/json")
			w.Write(marshalEvent(StreamHandle{CmdID: "cmd-1", Channel: "chan-1"}))
			return
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]string{"type": "subscribed"}); err != nil {
			t.Errorf("writing ack: %v", err)
			return
		}

		var start map[string]string
		if err := conn.ReadJSON(&start); err != nil {
			t.Errorf("reading command:start: %v", err)
			return
		}
		if start["type"] == "command:start" && start["cmdId"] == "cmd-1" {
			sawStart = true
		}

		conn.WriteJSON(StreamEvent{Type: "command:stdout", Data: "hello\n"})
		conn.WriteJSON(StreamEvent{Type: "command:exit", ExitCode: 0})
	}))
	defer srv.Close()

	streamer := newTestStreamer(srv)

	var events []StreamEvent
	err := streamer.Run(context.Background(), CommandRequest{Command: "echo hello"}, func(e StreamEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sawStart {
		t.Error("daemon never received command:start")
	}
	if len(events) != 2 || events[1].Type != "command:exit" {
		t.Errorf("events = %+v, want [stdout, exit]", events)
	}
}

func TestCommandStreamer_NoAckTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run/command" {
			w.Header().Set("Content-Type", "application/json")
			w.Write(marshalEvent(StreamHandle{CmdID: "cmd-2", Channel: "chan-2"}))
			return
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never sends a subscription ack; the client must keep polling
		// until its own budget is exhausted, not hang forever.
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	streamer := newTestStreamer(srv)
	streamer.pollBase = 10 * time.Millisecond
	streamer.pollCap = 20 * time.Millisecond
	streamer.pollMaxTries = 2

	err := streamer.Run(context.Background(), CommandRequest{Command: "sleep 10"}, func(StreamEvent) {})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}
