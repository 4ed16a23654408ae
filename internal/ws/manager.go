// Package ws owns the realtime duplex connection to the chat backend. At
// most one connection is live per process, bound to one conversation and
// one auth token; recovery from transient failures is automatic up to a
// bounded retry budget.
package ws

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/bus"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/status"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/wire"
)

const (
	// DefaultKeepaliveInterval is how often a ping frame is written while
	// connected.
	DefaultKeepaliveInterval = 30 * time.Second

	// DefaultBackoffBase is the first reconnect delay; each further attempt
	// doubles it.
	DefaultBackoffBase = 1000 * time.Millisecond

	// DefaultMaxAttempts bounds automatic reconnection. Exceeding it parks
	// the manager in the terminal error state until Connect is called again.
	DefaultMaxAttempts = 5

	// connectPath is the conversation-connect endpoint suffix.
	connectPath = "/api/v1/chat/ws"

	writeWait = 10 * time.Second
)

// Manager maintains the single realtime connection. It never mutates stored
// messages itself; inbound frames are fanned out on the bus and the message
// store consumes them from there.
type Manager struct {
	baseURL string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	dialer  *websocket.Dialer

	keepaliveEvery time.Duration
	backoffBase    time.Duration
	maxAttempts    int

	mu             sync.Mutex
	writeMu        sync.Mutex
	conn           *websocket.Conn
	conversationID int64
	token          string
	attempts       int
	manual         bool
	gen            int
	keepaliveStop  chan struct{}
	reconnectTimer *time.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeepaliveInterval overrides the ping cadence.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(m *Manager) { m.keepaliveEvery = d }
}

// WithBackoff overrides the reconnect base delay and attempt cap.
func WithBackoff(base time.Duration, maxAttempts int) Option {
	return func(m *Manager) {
		m.backoffBase = base
		m.maxAttempts = maxAttempts
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// NewManager creates a connection manager addressing the given API base URL.
func NewManager(baseURL string, b *bus.Bus, machine *status.Machine, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		baseURL:        baseURL,
		bus:            b,
		machine:        machine,
		logger:         logger,
		dialer:         websocket.DefaultDialer,
		keepaliveEvery: DefaultKeepaliveInterval,
		backoffBase:    DefaultBackoffBase,
		maxAttempts:    DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the realtime connection for a conversation. Calling it for
// the conversation that is already connected is a no-op; calling it for a
// different conversation fully tears down the previous session first, so
// there is never a period with two live sessions. An empty token fails fast
// without dialing.
func (m *Manager) Connect(ctx context.Context, conversationID int64, token string) error {
	if token == "" {
		return fmt.Errorf("connect conversation %d: missing auth token", conversationID)
	}

	m.mu.Lock()
	if m.conn != nil && m.conversationID == conversationID && m.machine.Current() == status.Connected {
		m.mu.Unlock()
		return nil
	}
	hadSession := m.conn != nil || m.conversationID != 0
	m.teardownLocked()
	m.conversationID = conversationID
	m.token = token
	m.attempts = 0
	m.manual = false
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	// A superseded session ends like any other: the machine passes through
	// Disconnected before the new dial, so subscribers see the full sequence.
	if hadSession {
		m.setStatus(status.Disconnected)
	}
	return m.dial(ctx, gen)
}

// Disconnect closes the session cleanly: keepalive and reconnect timers are
// cancelled, the socket is closed with a normal-closure code and no
// automatic reconnection follows. Idempotent, and safe to call from inside
// event handlers.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.gen++
	m.teardownLocked()
	m.conversationID = 0
	m.token = ""
	m.attempts = 0
	m.mu.Unlock()

	m.setStatus(status.Disconnected)
}

// teardownLocked cancels timers and closes the socket. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	if m.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = m.conn.Close()
		m.conn = nil
	}
}

// ConversationID returns the conversation the current session is bound to,
// or zero when disconnected.
func (m *Manager) ConversationID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

func (m *Manager) dial(ctx context.Context, gen int) error {
	m.setStatus(status.Connecting)

	endpoint, err := m.endpoint()
	if err != nil {
		m.setStatus(status.Error)
		return err
	}

	conn, resp, err := m.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn("realtime dial failed", zap.Error(err))
		m.setStatus(status.Error)
		m.bus.Emit(bus.Event{Kind: "ws.error", Payload: err})
		m.scheduleReconnect(gen)
		return fmt.Errorf("dial realtime endpoint: %w", err)
	}

	m.mu.Lock()
	if gen != m.gen {
		// A Disconnect or a newer Connect raced the dial; this session is
		// already superseded.
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.attempts = 0
	stop := make(chan struct{})
	m.keepaliveStop = stop
	convID := m.conversationID
	m.mu.Unlock()

	m.setStatus(status.Connected)
	m.logger.Info("realtime connected", zap.Int64("conversation_id", convID))

	go m.readLoop(conn, gen)
	go m.keepalive(conn, stop)
	return nil
}

func (m *Manager) endpoint() (string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = connectPath
	q := u.Query()
	q.Set("conversation_id", strconv.FormatInt(m.conversationID, 10))
	q.Set("token", m.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop pumps inbound frames onto the bus until the connection dies.
// Frames that fail to parse are dropped; they must never take down the
// dispatch loop.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(gen, err)
			return
		}

		frame, perr := wire.Parse(data)
		if perr != nil {
			m.logger.Debug("dropping malformed frame", zap.Error(perr))
			continue
		}

		switch frame.Type {
		case wire.TypePong:
			// Keepalive acknowledgement; swallowed.
		case wire.TypeError:
			m.bus.Emit(bus.Event{Kind: "ws.error", Payload: frame})
		default:
			if frame.Type != wire.TypeMessage {
				m.bus.Emit(bus.Event{Kind: "ws." + frame.Type, Payload: frame})
			}
			m.bus.Emit(bus.Event{Kind: "ws.message", Payload: frame})
		}
	}
}

// keepalive writes a ping frame on a fixed cadence while the connection is
// up. A failed write closes the socket, which surfaces through the read
// loop as a disconnect.
func (m *Manager) keepalive(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.keepaliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.writeFrame(conn, wire.Ping()); err != nil {
				m.logger.Debug("keepalive write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// handleDisconnect runs when the read loop dies. If the session was already
// superseded (manual disconnect or a newer Connect) there is nothing to do:
// the generation counter no longer matches.
func (m *Manager) handleDisconnect(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.logger.Warn("realtime connection lost", zap.Error(err))
	m.setStatus(status.Disconnected)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.bus.Emit(bus.Event{Kind: "ws.error", Payload: err})
	}
	m.scheduleReconnect(gen)
}

// scheduleReconnect arms the backoff timer for the next attempt. Delay is
// backoffBase × 2^(attempt−1); exceeding the attempt cap parks the manager
// in the error state and no further automatic attempt is made.
func (m *Manager) scheduleReconnect(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.manual {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	if attempt > m.maxAttempts {
		m.mu.Unlock()
		m.logger.Error("reconnect attempts exhausted", zap.Int("attempts", attempt-1))
		m.setStatus(status.Error)
		return
	}
	delay := m.backoffBase << (attempt - 1)
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		stale := gen != m.gen || m.manual
		m.mu.Unlock()
		if stale {
			return
		}
		_ = m.dial(context.Background(), gen)
	})
	m.mu.Unlock()

	m.setStatus(status.Reconnecting)
	m.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// SendText writes a fire-and-forget text frame. Returns false when not
// connected; there is no queueing or retry — the REST path is the durable
// path for message persistence.
func (m *Manager) SendText(text string) bool {
	return m.trySend(wire.Text(text))
}

// SendTyping writes a typing indicator frame. Best effort.
func (m *Manager) SendTyping(isTyping bool) bool {
	return m.trySend(wire.TypingIndicator(isTyping))
}

// SendRead writes a read notification frame. Best effort.
func (m *Manager) SendRead(messageID int64) bool {
	return m.trySend(wire.MessageRead(messageID))
}

func (m *Manager) trySend(frame []byte) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || m.machine.Current() != status.Connected {
		return false
	}
	if err := m.writeFrame(conn, frame); err != nil {
		m.logger.Debug("realtime write failed", zap.Error(err))
		return false
	}
	return true
}

// writeFrame serializes all writers onto the connection.
func (m *Manager) writeFrame(conn *websocket.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// setStatus moves the state machine, tolerating a no-op when the state is
// already current. The machine publishes connection.status for every real
// transition.
func (m *Manager) setStatus(to status.State) {
	if m.machine.Current() == to {
		return
	}
	if err := m.machine.Transition(to); err != nil {
		m.logger.Debug("status transition rejected", zap.Error(err))
	}
}
