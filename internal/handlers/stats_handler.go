package handlers

import (
	"github.com/gin-gonic/gin"

	"fieldlink/internal/services"
	"fieldlink/internal/utils"
	"fieldlink/pkg/websocket"
)

// StatsHandler exposes a coordination snapshot for the ops console.
type StatsHandler struct {
	hub       *websocket.Hub
	emergency *services.EmergencyService
}

func NewStatsHandler(hub *websocket.Hub, emergency *services.EmergencyService) *StatsHandler {
	return &StatsHandler{
		hub:       hub,
		emergency: emergency,
	}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	online := h.hub.OnlineUserIDs()

	activeAlerts, err := h.emergency.ActiveAlerts(c.Request.Context())
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Stats retrieved", gin.H{
		"connections":   h.hub.ConnectionCount(),
		"online_users":  len(online),
		"active_alerts": len(activeAlerts),
	})
}
