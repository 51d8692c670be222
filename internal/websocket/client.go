package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dashboard connection timings. pingPeriod stays below pongWait so an
// idle dashboard is never dropped.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	ackTimeout     = 10 * time.Second
)

// Client is one connected dashboard session.
type Client struct {
	ID       string
	UserID   string
	UserRole string // "admin" or "staff"
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte
}

// IncomingMessage is a request sent by a dashboard.
type IncomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type acknowledgeData struct {
	AlertID string `json:"alert_id"`
}

type acknowledgeResult struct {
	AlertID string `json:"alert_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewClient(userID, userRole string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserRole: userRole,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
	}
}

// ReadPump serves dashboard requests until the connection closes, then
// unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("user_id", c.UserID).Msg("WebSocket error")
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug().Err(err).Msg("Invalid message format")
			continue
		}

		switch msg.Type {
		case "ping":
			c.reply(newEvent("pong", nil))

		case "acknowledge_alert":
			c.handleAcknowledge(msg.Data)
		}
	}
}

// reply queues a message for this client only.
func (c *Client) reply(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.hub.sendTo(c, data)
}

func (c *Client) handleAcknowledge(raw json.RawMessage) {
	var req acknowledgeData
	if err := json.Unmarshal(raw, &req); err != nil || req.AlertID == "" {
		c.reply(newEvent("acknowledge_result", acknowledgeResult{Error: "alert_id is required"}))
		return
	}
	if c.hub.acker == nil {
		c.reply(newEvent("acknowledge_result", acknowledgeResult{AlertID: req.AlertID, Error: "acknowledgement unavailable"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	// The manager broadcasts alert_acknowledged on success.
	if _, err := c.hub.acker.Acknowledge(ctx, req.AlertID, c.UserID); err != nil {
		c.hub.log.Warn().Err(err).Str("alert_id", req.AlertID).Msg("❌ Acknowledge failed")
		c.reply(newEvent("acknowledge_result", acknowledgeResult{AlertID: req.AlertID, Error: "acknowledge failed"}))
		return
	}
	c.reply(newEvent("acknowledge_result", acknowledgeResult{AlertID: req.AlertID, Success: true}))
}

// WritePump writes queued events one per frame and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
