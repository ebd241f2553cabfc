// Package ws implements transport.Dialer over gorilla/websocket.
//
// Sink callbacks are handed to an Executor (normally the event loop), so the
// sink never runs on the reader goroutine.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"notifysync/internal/runtime/loop"
	"notifysync/internal/transport"
	logx "notifysync/pkg/logx"
)

type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadLimit caps a single inbound message in bytes.
	ReadLimit int64
}

type Dialer struct {
	cfg  Config
	exec loop.Executor
	log  logx.Logger
	ws   *websocket.Dialer
}

func New(cfg Config, exec loop.Executor, log logx.Logger) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	if exec == nil {
		exec = loop.Inline{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dialer{
		cfg:  cfg,
		exec: exec,
		log:  log,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// NormalizeEndpoint maps http(s) URLs to ws(s) and rejects anything else.
func NormalizeEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", transport.ErrBadEndpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: scheme %q", transport.ErrBadEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", transport.ErrBadEndpoint)
	}
	return u.String(), nil
}

func (d *Dialer) Open(opts transport.Options, sink transport.Sink) (transport.Conn, error) {
	endpoint, err := NormalizeEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("ws: nil sink")
	}

	hdr := http.Header{}
	if opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.UserID != "" {
		hdr.Set("X-User-ID", opts.UserID)
	}
	id := uuid.NewString()
	hdr.Set("X-Connection-ID", id)

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = d.cfg.HandshakeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:     id,
		d:      d,
		sink:   sink,
		cancel: cancel,
		log:    d.log.With(logx.String("conn", id)),
	}
	go c.run(ctx, endpoint, hdr, timeout)
	return c, nil
}

type conn struct {
	id     string
	d      *Dialer
	sink   transport.Sink
	cancel context.CancelFunc
	log    logx.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

func (c *conn) ID() string { return c.id }

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// post hands fn to the executor unless the owner closed the connection.
func (c *conn) post(fn func()) {
	if c.isClosed() {
		return
	}
	if !c.d.exec.Post(fn) {
		c.log.Debug("executor rejected transport callback")
	}
}

func (c *conn) run(ctx context.Context, endpoint string, hdr http.Header, timeout time.Duration) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	ws, resp, err := c.d.ws.DialContext(dctx, endpoint, hdr)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		c.post(func() { c.sink.ConnectError(err) })
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	ws.SetReadLimit(c.d.cfg.ReadLimit)
	c.log.Debug("websocket connected", logx.String("endpoint", endpoint))
	c.post(c.sink.Connected)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			c.post(func() { c.sink.Disconnected(err) })
			return
		}
		var f transport.Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			c.log.Debug("dropping malformed frame", logx.Int("bytes", len(msg)), logx.Err(err))
			continue
		}
		c.post(func() { c.sink.Frame(f) })
	}
}

func (c *conn) Emit(event string, data any) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("ws: encode %s: %w", event, err)
		}
		raw = b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.ws == nil {
		return transport.ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.d.cfg.WriteTimeout))
	return c.ws.WriteJSON(transport.Frame{Event: event, Data: raw})
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return nil
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(time.Second))
	return ws.Close()
}
