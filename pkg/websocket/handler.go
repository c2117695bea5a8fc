package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fieldlink/internal/config"
	"fieldlink/pkg/logger"
)

// Handler upgrades HTTP requests into registered connections. The
// connection authenticates with its first event rather than a request
// header, so no auth middleware guards this route.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	handler  EventHandler
	log      *logger.Logger
}

func NewHandler(hub *Hub, cfg *config.WebSocketConfig, eventHandler EventHandler, log *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       originChecker(cfg.AllowedOrigins),
		},
		handler: eventHandler,
		log:     log,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := false
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		return set[r.Header.Get("Origin")]
	}
}

// HandleWebSocket is the gin route for new connections.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(uuid.NewString(), h.hub, conn, h.handler)
	if err := h.hub.Register(client); err != nil {
		h.log.WithConnectionID(client.ID).WithError(err).Error("Connection registration failed")
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
