package mongodb

import (
	"context"
	"fmt"
	"time"

	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type groupRepository struct {
	collection  *mongo.Collection
	memberships *mongo.Collection
	cache       CacheService
}

func NewGroupRepository(db *mongo.Database, cache CacheService) interfaces.GroupRepository {
	return &groupRepository{
		collection:  db.Collection("groups"),
		memberships: db.Collection("group_memberships"),
		cache:       cache,
	}
}

// Basic CRUD operations
func (r *groupRepository) Create(ctx context.Context, group *models.Group) error {
	group.ID = primitive.NewObjectID()
	group.IsActive = true
	group.CreatedAt = time.Now()
	group.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	var group models.Group
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("group %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return &group, nil
}

func (r *groupRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("group %s: %w", id.Hex(), interfaces.ErrNotFound)
	}

	return nil
}

func (r *groupRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.memberships.DeleteMany(ctx, bson.M{"group_id": id}); err != nil {
		return fmt.Errorf("failed to delete group memberships: %w", err)
	}

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	return nil
}

// Membership
func (r *groupRepository) AddMember(ctx context.Context, membership *models.GroupMembership) error {
	membership.JoinedAt = time.Now()

	_, err := r.memberships.InsertOne(ctx, membership)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	return nil
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	result, err := r.memberships.DeleteOne(ctx, bson.M{"group_id": groupID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("membership %s/%s: %w", groupID.Hex(), userID.Hex(), interfaces.ErrNotFound)
	}

	return nil
}

// QueryGroupMembership returns every membership row for a user with the
// group kind denormalized in, so callers can apply fan-out policy without
// a second lookup.
func (r *groupRepository) QueryGroupMembership(ctx context.Context, userID primitive.ObjectID) ([]*models.GroupMembership, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "groups",
			"localField":   "group_id",
			"foreignField": "_id",
			"as":           "group",
		}}},
		{{Key: "$unwind", Value: "$group"}},
		{{Key: "$match", Value: bson.M{"group.is_active": true}}},
		{{Key: "$addFields", Value: bson.M{"kind": "$group.kind"}}},
		{{Key: "$project", Value: bson.M{"group": 0}}},
	}

	cursor, err := r.memberships.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to query group membership: %w", err)
	}
	defer cursor.Close(ctx)

	var memberships []*models.GroupMembership
	for cursor.Next(ctx) {
		var membership models.GroupMembership
		if err := cursor.Decode(&membership); err != nil {
			return nil, fmt.Errorf("failed to decode membership: %w", err)
		}
		memberships = append(memberships, &membership)
	}

	return memberships, nil
}

func (r *groupRepository) GetMembers(ctx context.Context, groupID primitive.ObjectID) ([]*models.GroupMembership, error) {
	cursor, err := r.memberships.Find(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return nil, fmt.Errorf("failed to find group members: %w", err)
	}
	defer cursor.Close(ctx)

	var memberships []*models.GroupMembership
	for cursor.Next(ctx) {
		var membership models.GroupMembership
		if err := cursor.Decode(&membership); err != nil {
			return nil, fmt.Errorf("failed to decode membership: %w", err)
		}
		memberships = append(memberships, &membership)
	}

	return memberships, nil
}
