package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/formpair/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Server -> client event types
const (
	MsgTypePairsCreated     = "pair:created"
	MsgTypePairDeleted      = "pair:deleted"
	MsgTypeSelectionChanged = "selection"
	MsgTypePong             = "pong"
)

// WSMessage is the envelope pushed to event-stream clients.
type WSMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsClient serializes writes to one connection. gorilla/websocket allows at
// most one concurrent writer per connection, and broadcasts from ingest-job
// goroutines race the pong writes issued by the read loop.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// EventHub manages WebSocket connections per pairing session and pushes
// pair/selection events to them. It implements ingest.Notifier.
type EventHub struct {
	upgrader    websocket.Upgrader
	maxMsgBytes int64
	mu          sync.RWMutex
	conns       map[string]map[*wsClient]bool // sessionID -> clients
}

// NewEventHub creates an event hub. maxMessageKB caps inbound client frames
// (clients only ever send pings); 0 disables the limit.
func NewEventHub(maxMessageKB int) *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The backend serves a local, air-gapped UI.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		maxMsgBytes: int64(maxMessageKB) * 1024,
		conns:       make(map[string]map[*wsClient]bool),
	}
}

// HandleEvents upgrades the connection and streams events for one session
// until the client disconnects.
func (h *EventHub) HandleEvents(c echo.Context) error {
	sessionID := c.QueryParam("session")
	if sessionID == "" {
		return NewValidationError("session")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return NewBadRequestError("websocket upgrade failed", err)
	}
	if h.maxMsgBytes > 0 {
		conn.SetReadLimit(h.maxMsgBytes)
	}

	client := &wsClient{conn: conn}
	h.register(sessionID, client)
	defer h.unregister(sessionID, client)

	fmt.Printf("[Events] Client connected for session %s\n", shortSession(sessionID))

	// Read loop: clients only ever send pings; any read error ends the
	// stream.
	for {
		msgType, _, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if msgType == websocket.TextMessage {
			client.writeJSON(WSMessage{
				Type:      MsgTypePong,
				SessionID: sessionID,
				Timestamp: time.Now().UnixMilli(),
			})
		}
	}
}

// PairsCreated pushes newly completed pairs to the session's clients.
func (h *EventHub) PairsCreated(sessionID string, pairs []*models.FilePair) {
	h.broadcast(sessionID, WSMessage{
		Type:      MsgTypePairsCreated,
		SessionID: sessionID,
		Payload:   pairs,
		Timestamp: time.Now().UnixMilli(),
	})
}

// PairDeleted pushes a pair deletion to the session's clients.
func (h *EventHub) PairDeleted(sessionID, key string) {
	h.broadcast(sessionID, WSMessage{
		Type:      MsgTypePairDeleted,
		SessionID: sessionID,
		Payload:   map[string]string{"key": key},
		Timestamp: time.Now().UnixMilli(),
	})
}

// SelectionChanged pushes the new selection to the session's clients.
func (h *EventHub) SelectionChanged(sessionID, key string) {
	h.broadcast(sessionID, WSMessage{
		Type:      MsgTypeSelectionChanged,
		SessionID: sessionID,
		Payload:   map[string]string{"key": key},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *EventHub) register(sessionID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[*wsClient]bool)
	}
	h.conns[sessionID][client] = true
}

func (h *EventHub) unregister(sessionID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[sessionID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.conns, sessionID)
		}
	}
	client.conn.Close()
}

func (h *EventHub) broadcast(sessionID string, msg WSMessage) {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.conns[sessionID]))
	for client := range h.conns[sessionID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.writeJSON(msg); err != nil {
			fmt.Printf("[Events] Write failed for session %s: %v\n", shortSession(sessionID), err)
		}
	}
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
