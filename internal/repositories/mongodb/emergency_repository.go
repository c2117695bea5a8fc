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

type emergencyRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewEmergencyRepository(db *mongo.Database, cache CacheService) interfaces.EmergencyRepository {
	return &emergencyRepository{
		collection: db.Collection("emergency_alerts"),
		cache:      cache,
	}
}

// Basic CRUD operations
func (r *emergencyRepository) Create(ctx context.Context, alert *models.EmergencyAlert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to create emergency alert: %w", err)
	}

	if alert.Status == models.AlertStatusActive {
		r.cacheAlert(ctx, alert)
	}

	return nil
}

func (r *emergencyRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyAlert, error) {
	cacheKey := utils.CacheEmergencyPrefix + id.Hex()
	var cached models.EmergencyAlert
	if r.cache != nil && r.cache.Get(ctx, cacheKey, &cached) == nil {
		return &cached, nil
	}

	var alert models.EmergencyAlert
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("emergency alert %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get emergency alert: %w", err)
	}

	if alert.Status == models.AlertStatusActive {
		r.cacheAlert(ctx, &alert)
	}

	return &alert, nil
}

func (r *emergencyRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update emergency alert: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("emergency alert %s: %w", id.Hex(), interfaces.ErrNotFound)
	}

	r.invalidateAlertCache(ctx, id.Hex())

	return nil
}

// Status operations
func (r *emergencyRepository) ResolveAlert(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, status models.AlertStatus, notes string) error {
	now := time.Now()

	set := bson.M{
		"status":      status,
		"resolved_by": resolvedBy,
		"resolved_at": now,
		"updated_at":  now,
	}
	if notes != "" {
		set["notes"] = notes
	}

	// Only an active alert may transition to a terminal status
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.AlertStatusActive},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to resolve emergency alert: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("active emergency alert %s: %w", id.Hex(), interfaces.ErrNotFound)
	}

	r.invalidateAlertCache(ctx, id.Hex())

	return nil
}

func (r *emergencyRepository) GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (*models.EmergencyAlert, error) {
	var alert models.EmergencyAlert
	err := r.collection.FindOne(
		ctx,
		bson.M{"user_id": userID, "status": models.AlertStatusActive},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&alert)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("active alert for user %s: %w", userID.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active alert: %w", err)
	}

	return &alert, nil
}

func (r *emergencyRepository) GetActiveAlerts(ctx context.Context) ([]*models.EmergencyAlert, error) {
	cursor, err := r.collection.Find(
		ctx,
		bson.M{"status": models.AlertStatusActive},
		options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find active alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.EmergencyAlert
	for cursor.Next(ctx) {
		var alert models.EmergencyAlert
		if err := cursor.Decode(&alert); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	return alerts, nil
}

// History
func (r *emergencyRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error) {
	return r.findAlertsWithFilter(ctx, bson.M{"user_id": userID}, params)
}

func (r *emergencyRepository) GetByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error) {
	return r.findAlertsWithFilter(ctx, bson.M{"status": status}, params)
}

func (r *emergencyRepository) findAlertsWithFilter(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.EmergencyAlert
	for cursor.Next(ctx) {
		var alert models.EmergencyAlert
		if err := cursor.Decode(&alert); err != nil {
			return nil, 0, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	return alerts, total, nil
}

func (r *emergencyRepository) cacheAlert(ctx context.Context, alert *models.EmergencyAlert) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, utils.CacheEmergencyPrefix+alert.ID.Hex(), alert, utils.ActiveAlertCacheTTL)
}

func (r *emergencyRepository) invalidateAlertCache(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, utils.CacheEmergencyPrefix+id)
}
