package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nestdesk/nestdesk/internal/relay"
	"github.com/nestdesk/nestdesk/pkg/Logger"
)

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RelayHandler upgrades realtime clients onto the event hub.
type RelayHandler struct {
	hub      *relay.Hub
	tenantID string
	logger   *Logger.Logger
}

func NewRelayHandler(hub *relay.Hub, tenantID string, logger *Logger.Logger) *RelayHandler {
	return &RelayHandler{hub: hub, tenantID: tenantID, logger: logger}
}

// Connect upgrades the request to a websocket and registers the client
// with the hub. The tenant is fixed per deployment; a tenant query
// parameter may narrow it for multi-office installs.
func (h *RelayHandler) Connect(c *gin.Context) {
	tenant := c.Query("tenant")
	if tenant == "" {
		tenant = h.tenantID
	}

	conn, err := relayUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("ws upgrade failed: %v", err)
		return
	}

	client := h.hub.Attach(conn, tenant)
	h.logger.Infof("client %s connected for tenant %s", client.ID, tenant)
}

// Stats reports hub occupancy and upstream link state.
func (h *RelayHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}
