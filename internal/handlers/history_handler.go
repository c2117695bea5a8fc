package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
)

// HistoryHandler is the thin read surface over the Store: floor
// session, location, and message history. No coordination state is
// touched here.
type HistoryHandler struct {
	sessions  interfaces.PTTSessionRepository
	locations interfaces.LocationRepository
	messages  interfaces.MessageRepository
}

func NewHistoryHandler(sessions interfaces.PTTSessionRepository, locations interfaces.LocationRepository, messages interfaces.MessageRepository) *HistoryHandler {
	return &HistoryHandler{
		sessions:  sessions,
		locations: locations,
		messages:  messages,
	}
}

func (h *HistoryHandler) GetGroupSessions(c *gin.Context) {
	groupID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid group id")
		return
	}

	params := utils.GetPaginationParams(c)
	sessions, total, err := h.sessions.GetByGroupID(c.Request.Context(), groupID, params)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponseWithMeta(c, "Session history retrieved", sessions, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

func (h *HistoryHandler) GetUserLocations(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("user_id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid user id")
		return
	}

	params := utils.GetPaginationParams(c)
	params.Sort = "timestamp"
	samples, total, err := h.locations.GetByUserID(c.Request.Context(), userID, params)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponseWithMeta(c, "Location history retrieved", samples, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

func (h *HistoryHandler) GetGroupMessages(c *gin.Context) {
	groupID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid group id")
		return
	}

	params := utils.GetPaginationParams(c)
	params.Sort = "timestamp"
	messages, total, err := h.messages.GetByGroupID(c.Request.Context(), groupID, params)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponseWithMeta(c, "Message history retrieved", messages, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

func (h *HistoryHandler) GetUnreadCount(c *gin.Context) {
	me := c.MustGet("user_id").(primitive.ObjectID)

	count, err := h.messages.CountUnread(c.Request.Context(), me)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Unread count retrieved", gin.H{"unread": count})
}

func (h *HistoryHandler) MarkMessageRead(c *gin.Context) {
	me := c.MustGet("user_id").(primitive.ObjectID)

	messageID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid message id")
		return
	}

	message, err := h.messages.GetByID(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			utils.NotFoundResponse(c, "message")
			return
		}
		utils.InternalServerErrorResponse(c)
		return
	}

	// Only the recipient can mark a message read.
	if message.RecipientID == nil || *message.RecipientID != me {
		utils.ForbiddenResponse(c)
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), messageID); err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Message marked read", nil)
}

func (h *HistoryHandler) GetDirectMessages(c *gin.Context) {
	me := c.MustGet("user_id").(primitive.ObjectID)

	other, err := primitive.ObjectIDFromHex(c.Param("user_id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid user id")
		return
	}

	params := utils.GetPaginationParams(c)
	params.Sort = "timestamp"
	messages, total, err := h.messages.GetDirectHistory(c.Request.Context(), me, other, params)
	if err != nil {
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponseWithMeta(c, "Message history retrieved", messages, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}
