package interfaces

import (
	"context"

	"fieldlink/internal/models"
	"fieldlink/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PTTSessionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, session *models.PTTSession) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.PTTSession, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Lifecycle
	EndSession(ctx context.Context, id primitive.ObjectID, endReason string, duration int) error
	GetActiveByGroup(ctx context.Context, groupID primitive.ObjectID) (*models.PTTSession, error)

	// History
	GetByGroupID(ctx context.Context, groupID primitive.ObjectID, params *utils.PaginationParams) ([]*models.PTTSession, int64, error)
	GetByCallerID(ctx context.Context, callerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.PTTSession, int64, error)
}
