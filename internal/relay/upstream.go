package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nestdesk/nestdesk/internal/config"
	"github.com/nestdesk/nestdesk/pkg/Logger"
)

// Status describes the upstream connection lifecycle.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Upstream is the process-wide connection to the ecosystem messaging
// backend. There is exactly one implementing instance per process; no
// other component opens a second connection.
type Upstream interface {
	Connect(ctx context.Context)
	Send(ev Event) error
	OnEvent(fn func(Event))
	Status() Status
}

// wsUpstream maintains the single outbound websocket to the messaging
// backend. Reconnection is deliberately simple: a bounded number of
// attempts with a fixed delay, then it idles until process restart.
// Nothing is buffered while disconnected; sends during an outage are
// dropped. That gap is intentional, not an oversight.
type wsUpstream struct {
	cfg    config.UpstreamConfig
	logger *Logger.Logger

	status   atomic.Int32
	attempts atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(Event)
}

// NewUpstream creates the singleton upstream relay connection.
func NewUpstream(cfg config.UpstreamConfig, logger *Logger.Logger) Upstream {
	return &wsUpstream{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect starts the connection loop in the background. Connect errors
// are logged, never raised to callers.
func (u *wsUpstream) Connect(ctx context.Context) {
	go u.run(ctx)
}

// Status implements Upstream.
func (u *wsUpstream) Status() Status {
	return Status(u.status.Load())
}

// Attempts reports how many connection attempts have been made during
// the current outage.
func (u *wsUpstream) Attempts() int {
	return int(u.attempts.Load())
}

// OnEvent registers the handler invoked for every subscribed inbound
// event. Must be called before Connect.
func (u *wsUpstream) OnEvent(fn func(Event)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handler = fn
}

// Send forwards an event to the backend. Returns an error when the
// connection is down; the event is dropped, not queued.
func (u *wsUpstream) Send(ev Event) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil || u.Status() != StatusConnected {
		return fmt.Errorf("upstream not connected")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := u.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

func (u *wsUpstream) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			u.status.Store(int32(StatusDisconnected))
			return
		}

		if int(u.attempts.Load()) >= u.cfg.MaxRetries {
			u.logger.Errorf("upstream retry budget exhausted after %d attempts, idling until restart", u.cfg.MaxRetries)
			u.status.Store(int32(StatusDisconnected))
			return
		}
		attempt := int(u.attempts.Add(1))

		u.status.Store(int32(StatusConnecting))
		conn, err := u.dial(ctx)
		if err != nil {
			u.status.Store(int32(StatusDisconnected))
			u.logger.Errorf("upstream connect attempt %d/%d failed: %v", attempt, u.cfg.MaxRetries, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(u.cfg.RetryDelay):
			}
			continue
		}

		u.mu.Lock()
		u.conn = conn
		u.mu.Unlock()
		u.status.Store(int32(StatusConnected))
		u.attempts.Store(0)
		u.logger.Infof("upstream connected as tenant %s", u.cfg.TenantID)

		if err := u.register(); err != nil {
			u.logger.Errorf("upstream registration failed: %v", err)
		}

		u.readLoop(ctx, conn)

		u.mu.Lock()
		u.conn = nil
		u.mu.Unlock()
		u.status.Store(int32(StatusDisconnected))

		if ctx.Err() != nil {
			return
		}
		u.logger.Warnf("upstream disconnected, retrying in %s", u.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(u.cfg.RetryDelay):
		}
	}
}

func (u *wsUpstream) dial(ctx context.Context) (*websocket.Conn, error) {
	credential, err := u.signCredential()
	if err != nil {
		return nil, fmt.Errorf("failed to sign tenant credential: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.cfg.URL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// signCredential mints the signed credential the backend authenticates
// relay tenants with.
func (u *wsUpstream) signCredential() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenantId": u.cfg.TenantID,
		"app":      u.cfg.AppName,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString([]byte(u.cfg.SigningSecret))
}

func (u *wsUpstream) register() error {
	return u.Send(NewEvent(EventRegister, map[string]interface{}{
		"tenantId": u.cfg.TenantID,
		"app":      u.cfg.AppName,
	}))
}

// readLoop consumes backend events until the connection drops,
// re-emitting each subscribed kind unmodified to the handler.
func (u *wsUpstream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				u.logger.Errorf("upstream read error: %v", err)
			}
			conn.Close()
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			u.logger.Warnf("dropping malformed upstream event: %v", err)
			continue
		}
		if !upstreamInboundEvents[ev.Name] {
			u.logger.Debugf("ignoring unsubscribed upstream event %q", ev.Name)
			continue
		}

		u.mu.Lock()
		handler := u.handler
		u.mu.Unlock()
		if handler != nil {
			handler(ev)
		}

		if ctx.Err() != nil {
			conn.Close()
			return
		}
	}
}
