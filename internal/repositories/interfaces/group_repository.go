package interfaces

import (
	"context"

	"fieldlink/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GroupRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// Membership
	AddMember(ctx context.Context, membership *models.GroupMembership) error
	RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error
	QueryGroupMembership(ctx context.Context, userID primitive.ObjectID) ([]*models.GroupMembership, error)
	GetMembers(ctx context.Context, groupID primitive.ObjectID) ([]*models.GroupMembership, error)
}
