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
)

type pttSessionRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewPTTSessionRepository(db *mongo.Database, cache CacheService) interfaces.PTTSessionRepository {
	return &pttSessionRepository{
		collection: db.Collection("ptt_sessions"),
		cache:      cache,
	}
}

// Basic CRUD operations
func (r *pttSessionRepository) Create(ctx context.Context, session *models.PTTSession) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to create ptt session: %w", err)
	}

	// Mirror the active session for crash recovery
	if session.IsActive && r.cache != nil {
		r.cache.Set(ctx, utils.CacheFloorPrefix+session.GroupID.Hex(), session, utils.FloorSessionCacheTTL)
	}

	return nil
}

func (r *pttSessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PTTSession, error) {
	var session models.PTTSession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("ptt session %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ptt session: %w", err)
	}

	return &session, nil
}

func (r *pttSessionRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update ptt session: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("ptt session %s: %w", id.Hex(), interfaces.ErrNotFound)
	}

	return nil
}

// Lifecycle
func (r *pttSessionRepository) EndSession(ctx context.Context, id primitive.ObjectID, endReason string, duration int) error {
	now := time.Now()

	var session models.PTTSession
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "is_active": true},
		bson.M{"$set": bson.M{
			"is_active":  false,
			"end_time":   now,
			"end_reason": endReason,
			"duration":   duration,
			"updated_at": now,
		}},
	).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return fmt.Errorf("active ptt session %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return fmt.Errorf("failed to end ptt session: %w", err)
	}

	if r.cache != nil {
		r.cache.Delete(ctx, utils.CacheFloorPrefix+session.GroupID.Hex())
	}

	return nil
}

func (r *pttSessionRepository) GetActiveByGroup(ctx context.Context, groupID primitive.ObjectID) (*models.PTTSession, error) {
	cacheKey := utils.CacheFloorPrefix + groupID.Hex()
	var cached models.PTTSession
	if r.cache != nil && r.cache.Get(ctx, cacheKey, &cached) == nil && cached.IsActive {
		return &cached, nil
	}

	var session models.PTTSession
	err := r.collection.FindOne(ctx, bson.M{"group_id": groupID, "is_active": true}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("active ptt session for group %s: %w", groupID.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active ptt session: %w", err)
	}

	return &session, nil
}

// History
func (r *pttSessionRepository) GetByGroupID(ctx context.Context, groupID primitive.ObjectID, params *utils.PaginationParams) ([]*models.PTTSession, int64, error) {
	return r.findSessionsWithFilter(ctx, bson.M{"group_id": groupID}, params)
}

func (r *pttSessionRepository) GetByCallerID(ctx context.Context, callerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.PTTSession, int64, error) {
	return r.findSessionsWithFilter(ctx, bson.M{"caller_id": callerID}, params)
}

func (r *pttSessionRepository) findSessionsWithFilter(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.PTTSession, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ptt sessions: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find ptt sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.PTTSession
	for cursor.Next(ctx) {
		var session models.PTTSession
		if err := cursor.Decode(&session); err != nil {
			return nil, 0, fmt.Errorf("failed to decode ptt session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, total, nil
}
