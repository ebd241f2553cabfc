package connection

import (
	"errors"
	"fmt"
	"time"

	"notifysync/internal/eventbus"
	"notifysync/internal/runtime/loop"
	"notifysync/internal/transport"
	logx "notifysync/pkg/logx"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

const (
	DefaultReconnectBase = time.Second
	DefaultMaxAttempts   = 5
)

// Outbound event names.
const (
	EventUserOnline  = "user:online"
	EventAcknowledge = "notification:acknowledge"
	EventRead        = "notification:read"
)

var (
	ErrNoIdentity = errors.New("connection: user id is required")

	// ErrClientDisconnect is the disconnect reason after an explicit Disconnect.
	ErrClientDisconnect = errors.New("client disconnect")
)

type Identity struct {
	UserID string
	Token  string
}

// State is a snapshot of the connection state machine.
type State struct {
	Status            Status
	ReconnectAttempts int
	Generation        uint64
}

type Config struct {
	Endpoint         string
	ReconnectBase    time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
}

// ReconnectFailure is the payload of eventbus.KindReconnectFailed.
type ReconnectFailure struct {
	Attempts int
	Last     error
}

func (f ReconnectFailure) Error() string {
	return fmt.Sprintf("gave up after %d reconnect attempts: %v", f.Attempts, f.Last)
}

// Backoff returns base * 2^(attempt-1) for attempt >= 1.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		attempt = 31
	}
	return base << (attempt - 1)
}

type Option func(*Manager)

func WithLogger(log logx.Logger) Option { return func(m *Manager) { m.log = log } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

type Manager struct {
	cfg    Config
	dialer transport.Dialer
	sched  loop.Scheduler
	bus    *eventbus.Dispatcher
	log    logx.Logger
	now    func() time.Time

	status   Status
	attempts int
	gen      uint64
	lastErr  error

	identity    Identity
	hasIdentity bool

	conn   transport.Conn
	active *sink
	timer  loop.Timer
}

func New(cfg Config, dialer transport.Dialer, sched loop.Scheduler, bus *eventbus.Dispatcher, opts ...Option) *Manager {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		sched:  sched,
		bus:    bus,
		now:    time.Now,
		status: StatusDisconnected,
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	m.log = m.log.With(logx.String("comp", "connection"))
	return m
}

func (m *Manager) State() State {
	return State{Status: m.status, ReconnectAttempts: m.attempts, Generation: m.gen}
}

func (m *Manager) Status() Status { return m.status }

func (m *Manager) IsConnected() bool { return m.status == StatusConnected }

// Connect opens the channel for id. It is a no-op while connected or
// handshaking for the same identity. A different identity replaces the
// current transport. Transport failures are not returned; they drive the
// reconnect schedule and show up in State.
func (m *Manager) Connect(id Identity) error {
	if id.UserID == "" {
		return ErrNoIdentity
	}
	same := m.hasIdentity && m.identity == id
	if same && (m.status == StatusConnected || (m.status == StatusConnecting && m.conn != nil)) {
		return nil
	}

	m.gen++
	m.stopTimer()
	m.dropConn()
	m.identity, m.hasIdentity = id, true
	m.status = StatusConnecting
	m.log.Info("connecting", logx.String("user", id.UserID), logx.Uint64("gen", m.gen), logx.Int("attempts", m.attempts))
	m.dial()
	return nil
}

// Disconnect closes the transport and cancels any pending reconnect.
func (m *Manager) Disconnect() {
	m.gen++
	m.stopTimer()
	m.dropConn()
	prev := m.status
	m.status = StatusDisconnected
	if prev == StatusDisconnected {
		return
	}
	m.log.Info("disconnected by client", logx.Uint64("gen", m.gen))
	if prev == StatusConnected {
		m.bus.Dispatch(eventbus.KindDisconnect, ErrClientDisconnect)
	}
}

// Emit sends a fire-and-forget frame. It reports false when not connected or
// when the transport rejects the write.
func (m *Manager) Emit(event string, data any) bool {
	if m.status != StatusConnected || m.conn == nil {
		return false
	}
	if err := m.conn.Emit(event, data); err != nil {
		m.log.Warn("emit failed", logx.String("event", event), logx.Err(err))
		return false
	}
	return true
}

func (m *Manager) Acknowledge(id string) bool {
	return m.Emit(EventAcknowledge, map[string]string{"notificationId": id})
}

func (m *Manager) MarkRead(id string) bool {
	return m.Emit(EventRead, map[string]string{"notificationId": id})
}

func (m *Manager) dial() {
	s := &sink{m: m, gen: m.gen}
	m.active = s
	conn, err := m.dialer.Open(transport.Options{
		Endpoint:         m.cfg.Endpoint,
		UserID:           m.identity.UserID,
		Token:            m.identity.Token,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}, s)
	if err != nil {
		m.active = nil
		m.failed(eventbus.KindConnectError, err)
		return
	}
	m.conn = conn
}

// failed records a transport failure, publishes it and schedules the next
// attempt (or gives up).
func (m *Manager) failed(kind eventbus.Kind, err error) {
	m.lastErr = err
	m.dropConn()
	m.log.Warn("transport failure", logx.String("kind", string(kind)), logx.Int("attempts", m.attempts), logx.Err(err))
	m.bus.Dispatch(kind, err)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if m.attempts >= m.cfg.MaxAttempts {
		m.status = StatusDisconnected
		m.log.Error("reconnect attempts exhausted", logx.Int("attempts", m.attempts), logx.Err(m.lastErr))
		m.bus.Dispatch(eventbus.KindReconnectFailed, ReconnectFailure{Attempts: m.attempts, Last: m.lastErr})
		return
	}
	m.attempts++
	m.status = StatusConnecting
	delay := Backoff(m.cfg.ReconnectBase, m.attempts)
	gen := m.gen
	m.log.Debug("reconnect scheduled", logx.Int("attempt", m.attempts), logx.Duration("delay", delay))
	m.timer = m.sched.AfterFunc(delay, func() {
		if gen != m.gen {
			m.log.Debug("stale reconnect timer", logx.Uint64("timer_gen", gen), logx.Uint64("gen", m.gen))
			return
		}
		m.timer = nil
		m.dial()
	})
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) dropConn() {
	m.active = nil
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.log.Debug("transport close", logx.Err(err))
	}
	m.conn = nil
}

// sink binds transport callbacks to the dial that created them.
type sink struct {
	m   *Manager
	gen uint64
}

func (s *sink) current() bool {
	return s.m.active == s && s.gen == s.m.gen
}

func (s *sink) Connected() {
	m := s.m
	if !s.current() {
		return
	}
	m.status = StatusConnected
	m.attempts = 0
	m.lastErr = nil
	m.log.Info("connected", logx.String("user", m.identity.UserID), logx.Uint64("gen", m.gen))
	m.Emit(EventUserOnline, map[string]string{"timestamp": m.now().UTC().Format(time.RFC3339Nano)})
	m.bus.Dispatch(eventbus.KindConnect, m.State())
}

func (s *sink) ConnectError(err error) {
	if !s.current() {
		return
	}
	s.m.failed(eventbus.KindConnectError, err)
}

func (s *sink) Disconnected(reason error) {
	if !s.current() {
		return
	}
	s.m.failed(eventbus.KindDisconnect, reason)
}

func (s *sink) Frame(f transport.Frame) {
	m := s.m
	if !s.current() {
		return
	}
	switch k := eventbus.Kind(f.Event); k {
	case eventbus.KindNotificationNew, eventbus.KindNotificationUpdate, eventbus.KindNotificationDelete,
		eventbus.KindSystemMaintenance, eventbus.KindSystemUpdate:
		m.bus.Dispatch(k, f.Data)
	default:
		m.log.Debug("ignoring server event", logx.String("event", f.Event))
	}
}
