package relay

import "time"

// Event is one named frame on the relay wire, client<->hub and
// hub<->upstream alike. Payload keys are forwarded as-is except for
// the injected tenant tag and, on broadcasts, a server timestamp.
type Event struct {
	Name    string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

// Client -> hub events.
const (
	EventSendMessage = "send-message"
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventTyping      = "typing"
)

// Hub -> client events.
const (
	EventConnected    = "connected"
	EventNewMessage   = "new-message"
	EventNotification = "notification"
	EventLeadUpdate   = "lead-update"
	EventJobUpdate    = "job-update"
	EventUserTyping   = "user-typing"
)

// Hub -> upstream registration event.
const EventRegister = "register"

// upstreamInboundEvents are the kinds the upstream connection
// subscribes to and fans out to every downstream client.
var upstreamInboundEvents = map[string]bool{
	EventNewMessage:   true,
	EventNotification: true,
	EventLeadUpdate:   true,
	EventJobUpdate:    true,
}

// NewEvent builds an event with a copied payload so handlers can
// inject fields without mutating the caller's map.
func NewEvent(name string, payload map[string]interface{}) Event {
	copied := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		copied[k] = v
	}
	return Event{Name: name, Payload: copied}
}

// stamp injects the server timestamp used on broadcast events.
func (e *Event) stamp(now time.Time) {
	e.Payload["timestamp"] = now.UTC().Format(time.RFC3339Nano)
}
