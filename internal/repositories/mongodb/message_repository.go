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

type messageRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewMessageRepository(db *mongo.Database, cache CacheService) interfaces.MessageRepository {
	return &messageRepository{
		collection: db.Collection("messages"),
		cache:      cache,
	}
}

// Basic CRUD operations
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("message %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &message, nil
}

// History
func (r *messageRepository) GetByGroupID(ctx context.Context, groupID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	return r.findMessagesWithFilter(ctx, bson.M{"group_id": groupID}, params)
}

func (r *messageRepository) GetDirectHistory(ctx context.Context, userA, userB primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	filter := bson.M{"$or": []bson.M{
		{"sender_id": userA, "recipient_id": userB},
		{"sender_id": userB, "recipient_id": userA},
	}}
	return r.findMessagesWithFilter(ctx, filter, params)
}

// Delivery state
func (r *messageRepository) MarkDelivered(ctx context.Context, id primitive.ObjectID) error {
	return r.setFlag(ctx, id, "delivered")
}

func (r *messageRepository) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	return r.setFlag(ctx, id, "read")
}

func (r *messageRepository) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"recipient_id": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (r *messageRepository) setFlag(ctx context.Context, id primitive.ObjectID, field string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{field: true}})
	if err != nil {
		return fmt.Errorf("failed to mark message %s: %w", field, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("message %s: %w", id.Hex(), interfaces.ErrNotFound)
	}
	return nil
}

func (r *messageRepository) findMessagesWithFilter(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	for cursor.Next(ctx) {
		var message models.Message
		if err := cursor.Decode(&message); err != nil {
			return nil, 0, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, &message)
	}

	return messages, total, nil
}
