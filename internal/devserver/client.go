package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024 * 1024
	sendBuffer     = 256
)

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	id          string
	connectedAt time.Time
	sent        atomic.Int64

	// Buffered channel of outbound frames.
	send chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, clientID string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		id:          clientID,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
}

func (c *Client) ClientID() string {
	return c.id
}

// Reply serializes msg and queues it for the write pump.
func (c *Client) Reply(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		c.sent.Add(1)
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) info() ConnectionInfo {
	return ConnectionInfo{
		ClientID:     c.id,
		ConnectedAt:  c.connectedAt,
		MessageCount: c.sent.Load(),
	}
}

// readPump hands every inbound frame to the dispatcher, one at a time.
func (c *Client) readPump(ctx context.Context, dispatcher Dispatcher) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		dispatcher.Dispatch(ctx, c, data)
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
