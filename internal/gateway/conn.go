package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type Conn struct {
	ws     *websocket.Conn
	userID string
	logger *slog.Logger
	send   chan *Message

	mu     sync.RWMutex
	roomID string
	closed bool
	done   chan struct{}
}

func newConn(ws *websocket.Conn, userID string, logger *slog.Logger) *Conn {
	return &Conn{
		ws:     ws,
		userID: userID,
		logger: logger.With("user_id", userID),
		send:   make(chan *Message, 256),
		done:   make(chan struct{}),
	}
}

func (c *Conn) UserID() string {
	return c.userID
}

// RoomID returns the room this connection subscribed to, if any.
func (c *Conn) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Conn) setRoomID(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

func (c *Conn) Send(msg *Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", "event", msg.Event)
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}

func (c *Conn) readPump(s *Server) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error("unmarshal error", "error", err)
			continue
		}

		s.dispatch(c, &msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("marshal error", "error", err)
				continue
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
