package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GroupKind string
type GroupPermission string

const (
	GroupKindStandard  GroupKind = "standard"
	GroupKindDispatch  GroupKind = "dispatch"
	GroupKindEmergency GroupKind = "emergency"

	PermissionAdmin     GroupPermission = "admin"
	PermissionModerator GroupPermission = "moderator"
	PermissionMember    GroupPermission = "member"
	PermissionObserver  GroupPermission = "observer"
)

// ReceivesLocation reports whether the group kind subscribes to location and
// emergency-priority fan-out. Standard groups do not; this is a privacy and
// bandwidth boundary.
func (k GroupKind) ReceivesLocation() bool {
	return k == GroupKindDispatch || k == GroupKindEmergency
}

// CanTransmit reports whether the permission level allows holding the floor
// or sending into the group.
func (p GroupPermission) CanTransmit() bool {
	switch p {
	case PermissionAdmin, PermissionModerator, PermissionMember:
		return true
	}
	return false
}

type Group struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name" validate:"required"`
	Description string             `json:"description" bson:"description"`
	Kind        GroupKind          `json:"kind" bson:"kind"`
	CreatedBy   primitive.ObjectID `json:"created_by" bson:"created_by"`
	IsActive    bool               `json:"is_active" bson:"is_active"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// GroupMembership is one row of the user->group mapping served by the Store
// and cached by the membership index.
type GroupMembership struct {
	GroupID    primitive.ObjectID `json:"group_id" bson:"group_id"`
	UserID     primitive.ObjectID `json:"user_id" bson:"user_id"`
	Kind       GroupKind          `json:"kind" bson:"kind"`
	Permission GroupPermission    `json:"permission" bson:"permission"`
	JoinedAt   time.Time          `json:"joined_at" bson:"joined_at"`
}
