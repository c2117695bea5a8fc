package interfaces

import (
	"context"

	"fieldlink/internal/models"
	"fieldlink/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, alert *models.EmergencyAlert) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyAlert, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Status operations
	ResolveAlert(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, status models.AlertStatus, notes string) error
	GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (*models.EmergencyAlert, error)
	GetActiveAlerts(ctx context.Context) ([]*models.EmergencyAlert, error)

	// History
	GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error)
	GetByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error)
}
