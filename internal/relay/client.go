package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nestdesk/nestdesk/pkg/Logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Per-client outbound queue depth. A slow consumer fills its own
	// queue and starts dropping; it never blocks delivery to others.
	sendQueueSize = 256
)

// Client is one downstream relay connection: an identity, a tenant tag
// and a set of subscribed rooms. Owned exclusively by the hub.
type Client struct {
	ID       uuid.UUID
	TenantID string

	hub    *Hub
	conn   *websocket.Conn
	send   chan Event
	logger *Logger.Logger

	mu    sync.RWMutex
	rooms map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, tenantID string, logger *Logger.Logger) *Client {
	return &Client{
		ID:       uuid.New(),
		TenantID: tenantID,
		hub:      hub,
		conn:     conn,
		send:     make(chan Event, sendQueueSize),
		logger:   logger,
		rooms:    make(map[string]struct{}),
	}
}

// JoinRoom adds a room subscription. Joining an already-joined room is
// a no-op.
func (c *Client) JoinRoom(room string) {
	if room == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

// LeaveRoom removes a room subscription. Leaving a room the client
// never joined is a no-op.
func (c *Client) LeaveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

// Rooms returns a snapshot of the client's current room memberships.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// enqueue delivers an event onto this client's outbound queue without
// blocking. Events to a full queue are dropped.
func (c *Client) enqueue(ev Event) {
	select {
	case c.send <- ev:
	default:
		c.logger.Warnf("dropping event %q for slow client %s", ev.Name, c.ID)
	}
}

// readPump pumps events from the websocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Errorf("relay client read error: %v", err)
			}
			break
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warnf("dropping malformed relay event from %s: %v", c.ID, err)
			continue
		}
		c.hub.HandleEvent(c, ev)
	}
}

// writePump pumps events from the outbound queue onto the websocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Errorf("failed to write relay event: %v", err)
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
