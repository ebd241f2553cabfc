package transport

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
	ErrBadEndpoint  = errors.New("transport: invalid endpoint")
)

// Frame is one message on the wire: {"event": "...", "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Options identify the endpoint and the connecting user.
type Options struct {
	Endpoint string
	UserID   string
	Token    string
	// HandshakeTimeout bounds the dial; 0 means the transport default.
	HandshakeTimeout time.Duration
}

// Sink receives connection lifecycle and inbound frames.
type Sink interface {
	Connected()
	ConnectError(err error)
	Disconnected(reason error)
	Frame(f Frame)
}

// Conn is one live (or dialing) connection.
type Conn interface {
	ID() string
	// Emit sends one fire-and-forget frame.
	Emit(event string, data any) error
	Close() error
}

type Dialer interface {
	Open(opts Options, sink Sink) (Conn, error)
}
