package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/readings"
)

// Event types pushed to dashboards.
const (
	EventAlertCreated      = "alert_created"
	EventAlertUpdated      = "alert_updated"
	EventAlertResolved     = "alert_resolved"
	EventAlertAcknowledged = "alert_acknowledged"
	EventReadingProcessed  = "reading_processed"
)

// dashboardRoles receive every alert and reading event.
var dashboardRoles = []string{models.RoleAdmin, models.RoleStaff}

// Acknowledger handles acknowledge_alert requests from clients.
type Acknowledger interface {
	Acknowledge(ctx context.Context, alertID, userID string) (*models.Alert, error)
}

// Event is the envelope of every server-sent message.
type Event struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Registered clients by connection ID
	clients map[string]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	acker Acknowledger

	// Mutex for thread-safe client map access
	mu  sync.RWMutex
	log zerolog.Logger
}

var (
	_ alerts.Notifier   = (*Hub)(nil)
	_ readings.Listener = (*Hub)(nil)
)

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.WithComponent("websocket"),
	}
}

// SetAcknowledger wires client acknowledgements to the alert manager.
// Call before Run.
func (h *Hub) SetAcknowledger(a Acknowledger) {
	h.acker = a
}

// Run starts the hub's main loop and closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().
				Str("user_id", client.UserID).
				Str("role", client.UserRole).
				Int("clients", total).
				Msg("✅ Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info().
					Str("user_id", client.UserID).
					Int("clients", len(h.clients)).
					Msg("🔴 Client disconnected")
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToRoles sends data to every client whose role is listed.
// Clients with a full buffer miss the message.
func (h *Hub) BroadcastToRoles(roles []string, data interface{}) int {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Msg("❌ Failed to marshal broadcast message")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		if !hasRole(roles, client.UserRole) {
			continue
		}
		select {
		case client.send <- dataBytes:
			sent++
		default:
			h.log.Warn().Str("user_id", client.UserID).Msg("⚠️ Client buffer full, skipping")
		}
	}
	return sent
}

// sendTo queues data for one client if it is still registered.
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.ID] != c {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func newEvent(eventType string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// eventTypeFor maps a committed alert action to its event.
func eventTypeFor(action alerts.Action) (string, bool) {
	switch action {
	case alerts.ActionCreated:
		return EventAlertCreated, true
	case alerts.ActionEscalated, alerts.ActionDeescalated, alerts.ActionRefreshed:
		return EventAlertUpdated, true
	case alerts.ActionResolved:
		return EventAlertResolved, true
	case alerts.ActionAcknowledged:
		return EventAlertAcknowledged, true
	}
	return "", false
}

// NotifyAlert pushes a committed alert change to dashboards.
func (h *Hub) NotifyAlert(ctx context.Context, outcome alerts.Outcome) error {
	eventType, ok := eventTypeFor(outcome.Action)
	if !ok || outcome.Alert == nil {
		return nil
	}
	h.BroadcastToRoles(dashboardRoles, newEvent(eventType, outcome.Alert.ToAlertResponse()))
	return nil
}

// ReadingProcessed pushes the new fill level to dashboards.
func (h *Hub) ReadingProcessed(ctx context.Context, p readings.Processed) {
	h.BroadcastToRoles(dashboardRoles, newEvent(EventReadingProcessed, p))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
