package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nestdesk/nestdesk/pkg/Logger"
)

// Hub multiplexes many downstream client connections onto the single
// upstream relay connection and bridges events between them. Local
// broadcast never depends on upstream health: a message still echoes
// to every connected client while the upstream leg is down.
type Hub struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	upstream Upstream
	logger   *Logger.Logger

	now func() time.Time
}

// NewHub wires the hub to the shared upstream connection and
// subscribes to its inbound events.
func NewHub(upstream Upstream, logger *Logger.Logger) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upstream:   upstream,
		logger:     logger,
		now:        time.Now,
	}
	upstream.OnEvent(h.broadcast)
	return h
}

// Run drives registration until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Infof("relay client %s connected (tenant %s)", client.ID, client.TenantID)

			client.enqueue(NewEvent(EventConnected, map[string]interface{}{
				"connectionId": client.ID.String(),
				"tenantId":     client.TenantID,
			}))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Infof("relay client %s disconnected", client.ID)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Attach upgrades an accepted websocket connection into a managed
// relay client and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, tenantID string) *Client {
	client := newClient(h, conn, tenantID, h.logger)
	h.register <- client
	go client.writePump()
	go client.readPump()
	return client
}

// HandleEvent routes one client event.
func (h *Hub) HandleEvent(c *Client, ev Event) {
	switch ev.Name {
	case EventSendMessage:
		h.handleSendMessage(c, ev)
	case EventJoinRoom:
		if room, ok := ev.Payload["room"].(string); ok {
			c.JoinRoom(room)
		}
	case EventLeaveRoom:
		if room, ok := ev.Payload["room"].(string); ok {
			c.LeaveRoom(room)
		}
	case EventTyping:
		h.handleTyping(c, ev)
	default:
		h.logger.Warnf("unknown relay event %q from client %s", ev.Name, c.ID)
	}
}

// handleSendMessage forwards to the upstream when it is up and echoes
// locally regardless, tagged with tenant and server timestamp.
func (h *Hub) handleSendMessage(c *Client, ev Event) {
	out := NewEvent(EventSendMessage, ev.Payload)
	out.Payload["tenantId"] = c.TenantID

	if err := h.upstream.Send(out); err != nil {
		h.logger.Debugf("upstream send skipped: %v", err)
	}

	echo := NewEvent(EventNewMessage, ev.Payload)
	echo.Payload["tenantId"] = c.TenantID
	echo.stamp(h.now())
	h.broadcast(echo)
}

func (h *Hub) handleTyping(c *Client, ev Event) {
	out := NewEvent(EventUserTyping, ev.Payload)
	out.Payload["tenantId"] = c.TenantID
	h.broadcastExcept(out, c.ID)
}

// broadcast fans an event out to every connected client via each
// client's independent outbound queue.
func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.enqueue(ev)
	}
}

func (h *Hub) broadcastExcept(ev Event, except uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		if id == except {
			continue
		}
		client.enqueue(ev)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// Stats summarizes hub state for the stats endpoint.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connections := make([]map[string]interface{}, 0, len(h.clients))
	for _, client := range h.clients {
		connections = append(connections, map[string]interface{}{
			"connectionId": client.ID.String(),
			"tenantId":     client.TenantID,
			"rooms":        client.Rooms(),
		})
	}
	return map[string]interface{}{
		"upstream_status":    h.upstream.Status().String(),
		"active_connections": len(h.clients),
		"connections":        connections,
	}
}
