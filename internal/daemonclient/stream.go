package daemonclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ErrPollTimeout is returned when a streamed command's WS subscription
// never acknowledges within the polling budget.
var ErrPollTimeout = errors.New("daemonclient: timed out waiting for stream subscription ack")

const (
	streamPollBase    = 500 * time.Millisecond
	streamPollCap      = 5 * time.Second
	streamPollFactor   = 1.5
	streamPollMaxTries = 60
)

// StreamEvent is one frame received over a command's WS channel after
// subscription: command:stdout, command:stderr, or command:exit.
type StreamEvent struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
}

// CommandStreamer runs a streamed command end-to-end: it issues the
// stream:true request, dials the daemon's WS endpoint, waits for the
// subscription to be acknowledged (polling with backoff, since the ack can
// race the HTTP response), sends command:start, and hands the caller every
// subsequent event until command:exit.
//
// This two-phase handshake exists because a fast command can finish and
// close its channel before a client that started the command first and
// subscribed second would ever see output. Subscribing before starting
// closes that window.
type CommandStreamer struct {
	client *Client
	host   string // ip:port of the daemon, used to build the ws:// URL

	pollBase     time.Duration
	pollCap      time.Duration
	pollMaxTries int
}

// NewCommandStreamer builds a CommandStreamer for the daemon at ip:port.
func NewCommandStreamer(client *Client, ip string, port int32) *CommandStreamer {
	return &CommandStreamer{
		client:       client,
		host:         fmt.Sprintf("%s:%d", ip, port),
		pollBase:     streamPollBase,
		pollCap:      streamPollCap,
		pollMaxTries: streamPollMaxTries,
	}
}

// Run executes req as a streamed command, invoking onEvent for every frame
// received after subscription. It blocks until command:exit arrives, the
// context is canceled, or the connection fails.
func (s *CommandStreamer) Run(ctx context.Context, req CommandRequest, onEvent func(StreamEvent)) error {
	handle, err := s.client.StartStreamedCommand(ctx, req)
	if err != nil {
		return fmt.Errorf("starting streamed command: %w", err)
	}

	wsURL := url.URL{Scheme: "ws", Host: s.host, Path: "/ws", RawQuery: "channel=" + url.QueryEscape(handle.Channel)}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing command channel: %w", err)
	}
	defer conn.Close()

	if err := s.awaitSubscriptionAck(ctx, conn); err != nil {
		return err
	}

	startMsg := map[string]string{"type": "command:start", "cmdId": handle.CmdID}
	if err := conn.WriteJSON(startMsg); err != nil {
		return fmt.Errorf("sending command:start: %w", err)
	}

	for {
		var event StreamEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading command event: %w", err)
		}

		onEvent(event)
		if event.Type == "command:exit" {
			return nil
		}
	}
}

// awaitSubscriptionAck polls for the daemon's subscription acknowledgment
// with exponential backoff (500ms base, 1.5x factor, 5s cap, 60 attempts)
// before the caller is allowed to send command:start.
func (s *CommandStreamer) awaitSubscriptionAck(ctx context.Context, conn *websocket.Conn) error {
	delay := s.pollBase

	for attempt := 0; attempt < s.pollMaxTries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay = time.Duration(float64(delay) * streamPollFactor)
			if delay > s.pollCap {
				delay = s.pollCap
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(delay + time.Second))
		var ack struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&ack); err != nil {
			continue
		}
		if ack.Type == "subscribed" {
			_ = conn.SetReadDeadline(time.Time{})
			return nil
		}
	}

	return ErrPollTimeout
}

func jitter(d time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// marshalEvent is used by tests to simulate daemon frames.
func marshalEvent(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
