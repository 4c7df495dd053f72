// Package connection owns the single WebSocket to the backend: connecting,
// reconnecting with backoff, and buffering outbound frames while the socket
// is not open.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aicca-realtime/internal/eventloop"
	"aicca-realtime/internal/pkg/clock"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/protocol"
	"aicca-realtime/internal/session"

	"github.com/google/uuid"
)

const module = "Connection"

var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

const (
	DefaultReconnectDelay = 100 * time.Millisecond
	DefaultDialTimeout    = 15 * time.Second
	// DefaultFlushRetry is how long to wait before writing again when the
	// transport's send buffer is full.
	DefaultFlushRetry = 50 * time.Millisecond
)

type Config struct {
	// WSBaseURL is the scheme+host the enhanced endpoint hangs off, e.g. ws://localhost:8000.
	WSBaseURL      string
	Backoff        []time.Duration
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	FlushRetry     time.Duration
}

// Manager is confined to its event loop. The exported methods only post tasks,
// so they may be called from any goroutine.
type Manager struct {
	loop   *eventloop.Loop
	dialer Dialer
	clock  clock.Clock
	logger logger.ILogger
	cfg    Config

	onState   func(session.ConnectionState)
	onMessage func([]byte)

	// Everything below is owned by the loop.
	state     session.ConnectionState
	clientID  string
	transport Transport
	dialing   bool
	epoch     uint64
	attempts  int
	queue     [][]byte
	timer     clock.Timer
	retry     clock.Timer
}

func NewManager(loop *eventloop.Loop, dialer Dialer, clk clock.Clock, cfg Config, log logger.ILogger) *Manager {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.FlushRetry <= 0 {
		cfg.FlushRetry = DefaultFlushRetry
	}
	cfg.WSBaseURL = strings.TrimRight(cfg.WSBaseURL, "/")
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Manager{
		loop:   loop,
		dialer: dialer,
		clock:  clk,
		logger: log,
		cfg:    cfg,
		state:  session.StateDisconnected,
	}
}

// OnState registers the observer for state transitions. Must be set before Connect.
func (m *Manager) OnState(fn func(session.ConnectionState)) { m.onState = fn }

// OnMessage registers the handler for inbound frames, called on the loop in wire order.
func (m *Manager) OnMessage(fn func([]byte)) { m.onMessage = fn }

// GenerateClientID returns an id of the form client_<unixmillis>_<random>.
func (m *Manager) GenerateClientID() string {
	return fmt.Sprintf("client_%d_%s", m.clock.Now().UnixMilli(), uuid.NewString()[:8])
}

// Connect opens the connection for clientID, generating one when empty, and
// returns the id in use. It is a no-op while a socket is open or being dialed.
// Otherwise it starts a fresh retry budget, which also recovers from the error state.
func (m *Manager) Connect(clientID string) string {
	if clientID == "" {
		clientID = m.GenerateClientID()
	}
	m.loop.Post(func() {
		if m.transport != nil || m.dialing {
			m.logger.Debug(module, "Connect ignored, connection already live", map[string]interface{}{"client_id": m.clientID})
			return
		}
		m.clientID = clientID
		m.stopTimer()
		m.attempts = 0
		m.open()
	})
	return clientID
}

// Send encodes msg and writes it, or buffers it until the connection opens.
// Only encoding errors are reported; delivery is best effort.
func (m *Manager) Send(msg protocol.ClientMessage) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	m.SendRaw(data)
	return nil
}

func (m *Manager) SendRaw(data []byte) {
	m.loop.Post(func() { m.enqueue(data) })
}

func (m *Manager) Ping() error {
	return m.Send(protocol.NewPing())
}

// Disconnect closes the connection without scheduling a reconnect.
func (m *Manager) Disconnect() {
	m.loop.Post(func() {
		m.teardown()
		m.attempts = 0
		m.setState(session.StateDisconnected)
		m.logger.Info(module, "Disconnected by user", map[string]interface{}{"client_id": m.clientID})
	})
}

// Reconnect drops the current transport and dials again after a short delay.
// Buffered frames are sent on the new connection.
func (m *Manager) Reconnect() {
	m.loop.Post(func() {
		m.teardown()
		m.attempts = 0
		m.setState(session.StateDisconnected)
		m.schedule(m.cfg.ReconnectDelay)
	})
}

// State and QueueLen must be called on the loop.
func (m *Manager) State() session.ConnectionState { return m.state }

func (m *Manager) QueueLen() int { return len(m.queue) }

func (m *Manager) ClientID() string { return m.clientID }

func (m *Manager) url() string {
	return m.cfg.WSBaseURL + "/ws/enhanced/" + m.clientID
}

func (m *Manager) open() {
	m.epoch++
	epoch := m.epoch
	m.dialing = true
	m.setState(session.StateConnecting)

	url := m.url()
	m.logger.Info(module, "Dialing", map[string]interface{}{"url": url, "attempt": m.attempts})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
		defer cancel()
		t, err := m.dialer.Dial(ctx, url)
		if !m.loop.Post(func() { m.handleDial(epoch, t, err) }) && t != nil {
			t.Close()
		}
	}()
}

func (m *Manager) handleDial(epoch uint64, t Transport, err error) {
	if epoch != m.epoch {
		if t != nil {
			t.Close()
		}
		return
	}
	m.dialing = false

	if err != nil {
		m.logger.Warn(module, "Dial failed", map[string]interface{}{"error": err.Error(), "attempt": m.attempts})
		m.handleClose(epoch, err)
		return
	}

	m.transport = t
	m.attempts = 0
	m.setState(session.StateConnected)
	m.logger.Info(module, "Connected", map[string]interface{}{"client_id": m.clientID, "queued": len(m.queue)})

	go m.readLoop(epoch, t)
	m.flush()
}

func (m *Manager) readLoop(epoch uint64, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			m.loop.Post(func() { m.handleClose(epoch, err) })
			return
		}
		m.loop.Post(func() { m.handleMessage(epoch, data) })
	}
}

func (m *Manager) handleMessage(epoch uint64, data []byte) {
	if epoch != m.epoch {
		return
	}
	if m.onMessage != nil {
		m.onMessage(data)
	}
}

// handleClose reacts to a transport that went away on its own.
func (m *Manager) handleClose(epoch uint64, cause error) {
	if epoch != m.epoch {
		return
	}
	m.teardown()

	if m.attempts >= len(m.cfg.Backoff) {
		m.logger.Error(module, "Giving up after repeated reconnect failures", map[string]interface{}{
			"attempts": m.attempts,
			"error":    errString(cause),
		})
		m.setState(session.StateError)
		return
	}

	delay := m.cfg.Backoff[m.attempts]
	m.attempts++
	m.setState(session.StateDisconnected)
	m.logger.Info(module, "Connection closed, scheduling reconnect", map[string]interface{}{
		"delay":   delay.String(),
		"attempt": m.attempts,
		"error":   errString(cause),
	})
	m.schedule(delay)
}

// teardown invalidates every event from the current transport and stops any pending reconnect.
func (m *Manager) teardown() {
	m.epoch++
	m.stopTimer()
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.dialing = false
	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
}

func (m *Manager) schedule(delay time.Duration) {
	epoch := m.epoch
	m.timer = m.clock.AfterFunc(delay, func() {
		m.loop.Post(func() {
			if epoch != m.epoch {
				return
			}
			m.timer = nil
			m.open()
		})
	})
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) enqueue(data []byte) {
	m.queue = append(m.queue, data)
	if m.transport != nil {
		m.flush()
	}
}

// flush writes buffered frames in order and stops at the first failure,
// leaving that frame at the head of the queue. A full send buffer is retried
// on the same transport; any other failure waits for the next connection.
func (m *Manager) flush() {
	for len(m.queue) > 0 && m.transport != nil {
		if err := m.transport.WriteMessage(m.queue[0]); err != nil {
			if errors.Is(err, ErrSendBufferFull) {
				m.scheduleFlush()
				return
			}
			m.logger.Warn(module, "Write failed, frame kept for retry", map[string]interface{}{
				"error":  err.Error(),
				"queued": len(m.queue),
			})
			return
		}
		m.queue[0] = nil
		m.queue = m.queue[1:]
	}
}

func (m *Manager) scheduleFlush() {
	if m.retry != nil {
		return
	}
	epoch := m.epoch
	m.logger.Debug(module, "Send buffer full, retrying flush", map[string]interface{}{"queued": len(m.queue)})
	m.retry = m.clock.AfterFunc(m.cfg.FlushRetry, func() {
		m.loop.Post(func() {
			if epoch != m.epoch {
				return
			}
			m.retry = nil
			m.flush()
		})
	})
}

func (m *Manager) setState(state session.ConnectionState) {
	if m.state == state {
		return
	}
	m.state = state
	if m.onState != nil {
		m.onState(state)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
