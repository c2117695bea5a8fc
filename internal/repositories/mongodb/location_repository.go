package mongodb

import (
	"context"
	"fmt"
	"time"

	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type locationRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewLocationRepository(db *mongo.Database, cache CacheService) interfaces.LocationRepository {
	return &locationRepository{
		collection: db.Collection("locations"),
		cache:      cache,
	}
}

func (r *locationRepository) Create(ctx context.Context, sample *models.LocationSample) error {
	if sample.ID.IsZero() {
		sample.ID = primitive.NewObjectID()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, sample)
	if err != nil {
		return fmt.Errorf("failed to create location sample: %w", err)
	}

	return nil
}

func (r *locationRepository) GetLatestByUser(ctx context.Context, userID primitive.ObjectID) (*models.LocationSample, error) {
	var sample models.LocationSample
	err := r.collection.FindOne(
		ctx,
		bson.M{"user_id": userID},
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	).Decode(&sample)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("location for user %s: %w", userID.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest location: %w", err)
	}

	return &sample, nil
}

func (r *locationRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.LocationSample, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count location samples: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find location samples: %w", err)
	}
	defer cursor.Close(ctx)

	var samples []*models.LocationSample
	for cursor.Next(ctx) {
		var sample models.LocationSample
		if err := cursor.Decode(&sample); err != nil {
			return nil, 0, fmt.Errorf("failed to decode location sample: %w", err)
		}
		samples = append(samples, &sample)
	}

	return samples, total, nil
}
