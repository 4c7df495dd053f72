package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aicca-realtime/internal/pkg/logger"

	"github.com/fasthttp/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
	sendBuffer     = 256
)

// WebsocketDialer opens real WebSocket connections. Each transport owns a
// write pump goroutine that also keeps the connection alive with pings.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	logger logger.ILogger
}

func NewWebsocketDialer(log logger.ILogger) *WebsocketDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 15 * time.Second
	return &WebsocketDialer{dialer: &d, logger: log}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	t := &wsTransport{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: d.logger,
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go t.writePump()
	return t, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    logger.ILogger
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("Transport", "Unexpected close", map[string]interface{}{"error": err.Error()})
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage hands the frame to the write pump without blocking the caller.
func (t *wsTransport) WriteMessage(data []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return ErrTransportClosed
	default:
		return ErrSendBufferFull
	}
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.Close()
		t.conn.Close()
	}()

	for {
		select {
		case message := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				t.logger.Warn("Transport", "Write failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.logger.Warn("Transport", "Ping failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-t.done:
			t.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}
