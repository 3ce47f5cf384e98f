package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wisbric/compute-gateway/internal/apierr"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 54 * time.Second
	wsPongWait     = 60 * time.Second
	wsOutboundBuf  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSProxy is the WebSocket Proxy (WP): upgrades the client connection,
// dials the daemon, relays frames in both directions, and tracks live
// connections per compute for idle auto-teardown.
type WSProxy struct {
	computes ComputeResolver
	cfg      Config
	tracker  *Tracker
	logger   *slog.Logger
}

// NewWSProxy builds the WebSocket Proxy.
func NewWSProxy(computes ComputeResolver, cfg Config, tracker *Tracker, logger *slog.Logger) *WSProxy {
	return &WSProxy{computes: computes, cfg: cfg, tracker: tracker, logger: logger}
}

// ServeHTTP resolves the target compute, dials its daemon, upgrades the
// client connection, and relays frames until either side closes.
func (p *WSProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	computeID := ExtractComputeID(r, p.cfg.PreviewDomain)
	if computeID == "" {
		apierr.RespondCode(w, apierr.CodeBadRequest, "missing compute ID")
		return
	}

	pod, err := p.computes.GetPod(r.Context(), computeID)
	if err != nil {
		apierr.RespondCode(w, apierr.CodeNotFound, "compute not found")
		return
	}
	if !pod.Ready || pod.IP == "" {
		apierr.RespondCode(w, apierr.CodeServiceUnavailable, "compute not ready")
		return
	}

	port := TargetPort(r, p.cfg.PreviewDomain, p.cfg.DefaultDaemonPort)
	upstreamURL := fmt.Sprintf("ws://%s:%d/ws", pod.IP, port)

	dialer := websocket.Dialer{HandshakeTimeout: p.cfg.DialTimeout}
	upstream, resp, err := dialer.DialContext(r.Context(), upstreamURL, nil)
	if err != nil {
		status := http.StatusInternalServerError
		if resp != nil {
			status = resp.StatusCode
		}
		p.logger.Warn("dialing daemon websocket failed", "compute_id", computeID, "error", err)
		w.WriteHeader(status)
		return
	}
	defer upstream.Close()

	client, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("upgrading client websocket failed", "compute_id", computeID, "error", err)
		return
	}
	defer client.Close()

	conn := p.tracker.Track(computeID)
	defer p.tracker.Untrack(computeID, conn)
	p.logger.Info("websocket connected", "compute_id", computeID, "fanout", p.tracker.Count(computeID))

	relay(client, upstream, p.logger)
}

// wsMessage is one frame queued for a writer goroutine.
type wsMessage struct {
	msgType int
	data    []byte
}

// relay bridges client and upstream bidirectionally. Each physical
// connection has exactly one writer goroutine, fed by a buffered channel —
// gorilla/websocket connections are not safe for concurrent writers.
// Overflowing the buffer (a slow reader on one side) ends the relay
// rather than blocking the other side indefinitely: both connections are
// then closed by the caller's deferred Close calls, and no CloseGoingAway
// close frame is sent to either peer.
func relay(client, upstream *websocket.Conn, logger *slog.Logger) {
	clientOut := make(chan wsMessage, wsOutboundBuf)
	upstreamOut := make(chan wsMessage, wsOutboundBuf)
	done := make(chan struct{})
	var closeOnce closer

	stop := func() {
		closeOnce.do(func() { close(done) })
	}

	go writerLoop(client, clientOut, done, logger)
	go writerLoop(upstream, upstreamOut, done, logger)

	go func() {
		readerLoop(upstream, clientOut, done, logger)
		stop()
	}()

	readerLoop(client, upstreamOut, done, logger)
	stop()

	<-done
}

type closer struct {
	done bool
}

func (c *closer) do(f func()) {
	if !c.done {
		c.done = true
		f()
	}
}

func writerLoop(conn *websocket.Conn, out <-chan wsMessage, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-out:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(msg.msgType, msg.data); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func readerLoop(conn *websocket.Conn, out chan<- wsMessage, done <-chan struct{}, logger *slog.Logger) {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		select {
		case out <- wsMessage{msgType: msgType, data: data}:
		case <-done:
			return
		default:
			// Overflow: the peer isn't draining fast enough. Drop the
			// connection rather than block this reader indefinitely.
			logger.Warn("websocket outbound buffer full, closing connection")
			return
		}
	}
}
