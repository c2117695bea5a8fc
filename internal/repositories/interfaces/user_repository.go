package interfaces

import (
	"context"

	"fieldlink/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Status
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.UserStatus) error

	// Emergency profile
	GetEmergencyProfile(ctx context.Context, userID primitive.ObjectID) (*models.EmergencyProfile, error)

	// Role queries, used by escalation actions targeting a role class
	GetByRole(ctx context.Context, role models.UserRole) ([]*models.User, error)
}
