package interfaces

import (
	"context"

	"fieldlink/internal/models"
	"fieldlink/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LocationRepository interface {
	// History is immutable; samples are only ever inserted
	Create(ctx context.Context, sample *models.LocationSample) error

	// Latest known position, store fallback behind the cache
	GetLatestByUser(ctx context.Context, userID primitive.ObjectID) (*models.LocationSample, error)

	// History
	GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.LocationSample, int64, error)
}
