package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/services"
	"fieldlink/internal/utils"
)

// EmergencyHandler is the dispatch-console surface over the alert
// coordinator: active list, history, and resolution.
type EmergencyHandler struct {
	emergency *services.EmergencyService
	alerts    interfaces.EmergencyRepository
}

func NewEmergencyHandler(emergency *services.EmergencyService, alerts interfaces.EmergencyRepository) *EmergencyHandler {
	return &EmergencyHandler{
		emergency: emergency,
		alerts:    alerts,
	}
}

func (h *EmergencyHandler) GetActiveAlerts(c *gin.Context) {
	alerts, err := h.emergency.ActiveAlerts(c.Request.Context())
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Active alerts retrieved", alerts)
}

func (h *EmergencyHandler) GetAlertHistory(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("user_id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid user id")
		return
	}

	params := utils.GetPaginationParams(c)
	alerts, total, err := h.alerts.GetByUserID(c.Request.Context(), userID, params)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponseWithMeta(c, "Alert history retrieved", alerts, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

type resolveAlertRequest struct {
	Status models.AlertStatus `json:"status"`
	Notes  string             `json:"notes"`
}

func (h *EmergencyHandler) ResolveAlert(c *gin.Context) {
	alertID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid alert id")
		return
	}

	var req resolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = models.AlertStatusResolved
	}

	resolvedBy := c.MustGet("user_id").(primitive.ObjectID)
	role := models.UserRole(c.GetString("role"))

	alert, err := h.emergency.Resolve(c.Request.Context(), alertID, resolvedBy, role, req.Status, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			utils.NotFoundResponse(c, "alert")
		case errors.Is(err, services.ErrPermissionDenied):
			utils.ForbiddenResponse(c)
		case errors.Is(err, services.ErrInvalidRequest):
			utils.BadRequestResponse(c, "invalid status")
		default:
			utils.InternalServerErrorResponse(c)
		}
		return
	}

	utils.SuccessResponse(c, "Alert resolved", alert)
}
