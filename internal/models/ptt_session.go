package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionType string

const (
	SessionTypeVoice  SessionType = "VOICE"
	SessionTypeVideo  SessionType = "VIDEO"
	SessionTypeHybrid SessionType = "HYBRID"
)

// PTTSession is one half-duplex floor grant. At most one active session may
// exist per group at any instant; the arbiter owns that invariant.
type PTTSession struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	GroupID     primitive.ObjectID `json:"group_id" bson:"group_id"`
	CallerID    primitive.ObjectID `json:"caller_id" bson:"caller_id"`
	SessionType SessionType        `json:"session_type" bson:"session_type"`
	IsActive    bool               `json:"is_active" bson:"is_active"`
	StartTime   time.Time          `json:"start_time" bson:"start_time"`
	EndTime     *time.Time         `json:"end_time" bson:"end_time"`
	Duration    int                `json:"duration" bson:"duration"` // seconds
	EndReason   string             `json:"end_reason,omitempty" bson:"end_reason,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}
