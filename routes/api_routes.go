package routes

import (
	"github.com/gin-gonic/gin"

	"fieldlink/internal/handlers"
	"fieldlink/internal/middleware"
	"fieldlink/pkg/websocket"
)

// Setup wires the WebSocket endpoint and the thin HTTP read surface.
// The coordination core lives behind /ws; everything under /api/v1 is a
// reader over the Store plus the dispatch console actions.
func Setup(
	r *gin.Engine,
	jwtSecret string,
	wsHandler *websocket.Handler,
	emergencyHandler *handlers.EmergencyHandler,
	historyHandler *handlers.HistoryHandler,
	statsHandler *handlers.StatsHandler,
) {
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestIDMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Connections authenticate with their first event, not a header.
	r.GET("/ws", wsHandler.HandleWebSocket)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(jwtSecret))
	{
		emergencies := api.Group("/emergencies")
		{
			emergencies.GET("/active", middleware.DispatchRequired(), emergencyHandler.GetActiveAlerts)
			emergencies.GET("/users/:user_id", emergencyHandler.GetAlertHistory)
			emergencies.PUT("/:id/resolve", emergencyHandler.ResolveAlert)
		}

		groups := api.Group("/groups")
		{
			groups.GET("/:id/sessions", historyHandler.GetGroupSessions)
			groups.GET("/:id/messages", historyHandler.GetGroupMessages)
		}

		api.GET("/locations/users/:user_id", middleware.DispatchRequired(), historyHandler.GetUserLocations)
		api.GET("/messages/direct/:user_id", historyHandler.GetDirectMessages)
		api.GET("/messages/unread", historyHandler.GetUnreadCount)
		api.PUT("/messages/:id/read", historyHandler.MarkMessageRead)

		api.GET("/stats", middleware.DispatchRequired(), statsHandler.GetStats)
	}
}
