package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// ActionHandler receives decoded inbound game actions. battle.Service
// satisfies it.
type ActionHandler interface {
	HandleAction(userID, username string, raw []byte)
}

// controlFrame is the client-side subscription protocol. Frames without
// an action are game actions and go to the handler.
type controlFrame struct {
	Action string `json:"action,omitempty"`
	Topic  string `json:"topic,omitempty"`
}

// Client is one websocket connection with its read/write pumps.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	username string
	handler  ActionHandler
	limiter  *rate.Limiter
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
	send      chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, username string, handler ActionHandler, logger *slog.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		handler:  handler,
		limiter:  rate.NewLimiter(5, 10),
		logger:   logger,
		done:     make(chan struct{}),
		send:     make(chan []byte, 256),
	}
}

// Run registers the client and starts both pumps.
func (c *Client) Run() {
	c.hub.register(c)
	go c.WritePump()
	go c.ReadPump()
}

// enqueue hands a frame to the write pump without ever blocking the
// publisher; a full buffer drops the frame. The send channel is never
// closed, so a publish racing a disconnect lands in the buffer of a
// dead client at worst.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping frame", "user_id", c.userID)
	}
}

// closeSend tells the write pump to drain out. Safe to call from the
// hub while publishes are in flight.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump consumes inbound frames until the connection dies, routing
// subscribe/unsubscribe control frames to the hub and everything else
// to the action handler under the per-connection rate limit.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "user_id", c.userID, "err", err)
			}
			return
		}

		var ctl controlFrame
		if err := json.Unmarshal(data, &ctl); err == nil && ctl.Action != "" {
			switch ctl.Action {
			case "subscribe":
				c.hub.subscribe(c, ctl.Topic)
			case "unsubscribe":
				c.hub.unsubscribe(c, ctl.Topic)
			}
			continue
		}

		if !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded, dropping action", "user_id", c.userID)
			continue
		}
		c.handler.HandleAction(c.userID, c.username, data)
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
