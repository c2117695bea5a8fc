package interfaces

import (
	"context"

	"fieldlink/internal/models"
	"fieldlink/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)

	// History
	GetByGroupID(ctx context.Context, groupID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error)
	GetDirectHistory(ctx context.Context, userA, userB primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error)

	// Delivery state
	MarkDelivered(ctx context.Context, id primitive.ObjectID) error
	MarkRead(ctx context.Context, id primitive.ObjectID) error
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
}
