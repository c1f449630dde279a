package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/blaxel-ai/session-core/internal/gateway"
	"github.com/blaxel-ai/session-core/internal/registry"
)

// closeWriteTimeout bounds how long we wait to flush the 4404 close frame
// before giving up on a slow or dead client.
const closeWriteTimeout = 2 * time.Second

// sessionNotFoundCloseCode is the WebSocket close code used when a client
// asks to join a session name the registry has never heard of.
const sessionNotFoundCloseCode = 4404

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // collaboration links are shared across origins by design
	},
}

// SessionHandler handles the browser-facing WebSocket endpoint that fronts
// the session core.
type SessionHandler struct {
	*BaseHandler
	registry *registry.Registry
}

// NewSessionHandler creates a new session handler bound to registry.
func NewSessionHandler(reg *registry.Registry) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(),
		registry:    reg,
	}
}

// HandleSessionWS handles GET /api/s/:name, upgrading to a WebSocket and
// handing the connection off to a per-client gateway. If the session name
// is unknown, the upgrade still completes and the connection is closed
// immediately with code 4404.
func (h *SessionHandler) HandleSessionWS(c *gin.Context) {
	name := c.Param("name")

	sess, ok := h.registry.Lookup(name)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("failed to upgrade websocket for session %q: %v", name, err)
		return
	}

	if !ok {
		closeMsg := websocket.FormatCloseMessage(sessionNotFoundCloseCode, "could not find the requested session")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(closeWriteTimeout))
		_ = conn.Close()
		return
	}

	log := logrus.WithField("session", name)
	gw := gateway.New(conn, sess, log)
	gw.Run(c.Request.Context())
}
