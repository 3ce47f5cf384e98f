// Package daemonclient is a typed client for the HTTP+WebSocket API the
// companion daemon inside each compute exposes: command execution,
// filesystem operations, terminals, managed servers, overlays, and file
// watchers. HP and WP relay raw traffic to the daemon without it; within
// this repository the package is used only by its own two-phase streaming
// helper (stream.go).
package daemonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to one compute's daemon over HTTP, addressed by pod IP and
// port.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the daemon at http://<ip>:<port>.
func New(ip string, port int32, timeout time.Duration) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", ip, port),
		http:    &http.Client{Timeout: timeout},
	}
}

// CommandRequest is the body of POST /run/command.
type CommandRequest struct {
	Command          string            `json:"command"`
	Cwd              string            `json:"cwd,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	Background       bool              `json:"background,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	WaitForCompletion bool             `json:"waitForCompletion,omitempty"`
}

// CommandResult is returned by a blocking (non-streaming) command.
type CommandResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

// StreamHandle is returned when CommandRequest.Stream is true: the caller
// subscribes to Channel over WS, sends command:start, and only then does
// the daemon fork the process.
type StreamHandle struct {
	CmdID   string `json:"cmdId"`
	Channel string `json:"channel"`
}

// RunCommand executes a command and blocks until it returns stdout/stderr.
// Use StartStreamedCommand for stream:true commands.
func (c *Client) RunCommand(ctx context.Context, req CommandRequest) (CommandResult, error) {
	var result CommandResult
	if err := c.doJSON(ctx, http.MethodPost, "/run/command", req, &result); err != nil {
		return CommandResult{}, err
	}
	return result, nil
}

// StartStreamedCommand issues a stream:true command and returns the handle
// the caller must subscribe to over WS before sending command:start.
func (c *Client) StartStreamedCommand(ctx context.Context, req CommandRequest) (StreamHandle, error) {
	req.Stream = true
	var handle StreamHandle
	if err := c.doJSON(ctx, http.MethodPost, "/run/command", req, &handle); err != nil {
		return StreamHandle{}, err
	}
	return handle, nil
}

// FileInfo describes a filesystem entry returned by ReadDir.
type FileInfo struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// ReadFile reads a file at an absolute path. The path is preserved verbatim
// in the URL — a leading slash is never collapsed.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/fs/read?path="+pathQueryEscape(path), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// WriteFile writes content to an absolute path, creating it if absent.
func (c *Client) WriteFile(ctx context.Context, path string, content []byte) error {
	resp, err := c.do(ctx, http.MethodPost, "/fs/write?path="+pathQueryEscape(path), bytes.NewReader(content))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Mkdir creates a directory at an absolute path, including parents.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodPost, "/fs/mkdir?path="+pathQueryEscape(path), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// ReadDir lists entries under an absolute path.
func (c *Client) ReadDir(ctx context.Context, path string) ([]FileInfo, error) {
	var entries []FileInfo
	if err := c.doJSON(ctx, http.MethodGet, "/fs/readdir?path="+pathQueryEscape(path), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Exists reports whether an absolute path exists.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/fs/exists?path="+pathQueryEscape(path), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Remove deletes the file or directory at an absolute path.
func (c *Client) Remove(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodPost, "/fs/remove?path="+pathQueryEscape(path), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// TerminalRequest is the body of POST /terminals.
type TerminalRequest struct {
	PTY      bool   `json:"pty,omitempty"`
	Shell    string `json:"shell,omitempty"`
	Encoding string `json:"encoding,omitempty"` // "raw" or "base64"
}

// Terminal identifies a created terminal session.
type Terminal struct {
	ID  string `json:"id"`
	PTY bool   `json:"pty"`
}

// CreateTerminal opens a new terminal session (PTY or exec mode).
func (c *Client) CreateTerminal(ctx context.Context, req TerminalRequest) (Terminal, error) {
	var term Terminal
	if err := c.doJSON(ctx, http.MethodPost, "/terminals", req, &term); err != nil {
		return Terminal{}, err
	}
	return term, nil
}

// DestroyTerminal sends SIGHUP to the terminal's underlying process.
func (c *Client) DestroyTerminal(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/terminals/"+id, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// RestartPolicy governs a managed server's behavior after it exits.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// ManagedServerRequest is the body of POST /servers.
type ManagedServerRequest struct {
	Slug          string            `json:"slug"`
	Install       string            `json:"install,omitempty"`
	Start         string            `json:"start"`
	Path          string            `json:"path,omitempty"`
	Port          int               `json:"port,omitempty"`
	StrictPort    bool              `json:"strict_port,omitempty"`
	Autostart     bool              `json:"autostart,omitempty"`
	EnvFile       string            `json:"env_file,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	RestartPolicy RestartPolicy     `json:"restart_policy,omitempty"`
	MaxRestarts   int               `json:"max_restarts,omitempty"`
	RestartDelayMs int              `json:"restart_delay_ms,omitempty"`
	StopTimeoutMs int               `json:"stop_timeout_ms,omitempty"`
	DependsOn     []string          `json:"depends_on,omitempty"`
}

// ManagedServer is the current state of a supervised server process.
type ManagedServer struct {
	Slug  string `json:"slug"`
	State string `json:"state"` // pending|installing|starting|running|exited|failed|stopped
}

// CreateManagedServer registers and starts a supervised server process.
func (c *Client) CreateManagedServer(ctx context.Context, req ManagedServerRequest) (ManagedServer, error) {
	var server ManagedServer
	if err := c.doJSON(ctx, http.MethodPost, "/servers", req, &server); err != nil {
		return ManagedServer{}, err
	}
	return server, nil
}

// OverlayRequest is the body of POST /overlays.
type OverlayRequest struct {
	Source            string   `json:"source"`
	Target            string   `json:"target"`
	Ignore            []string `json:"ignore,omitempty"`
	WaitForCompletion bool     `json:"waitForCompletion,omitempty"`
}

// Overlay is the current state of a source-tree copy.
type Overlay struct {
	ID    string `json:"id"`
	State string `json:"state"` // pending|in_progress|complete|failed
}

// CreateOverlay copies a source tree into target, respecting ignore globs.
func (c *Client) CreateOverlay(ctx context.Context, req OverlayRequest) (Overlay, error) {
	var overlay Overlay
	if err := c.doJSON(ctx, http.MethodPost, "/overlays", req, &overlay); err != nil {
		return Overlay{}, err
	}
	return overlay, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	resp, err := c.do(ctx, method, path, reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling daemon: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}

func pathQueryEscape(path string) string {
	// Absolute paths must be preserved verbatim; only percent-encode the
	// characters that would otherwise break query-string parsing.
	var b bytes.Buffer
	for _, r := range path {
		switch r {
		case ' ', '%', '&', '#', '?':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
