package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LocationSample is one position fix. The relay caches the most recent sample
// per user; history belongs to the Store.
type LocationSample struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"user_id" bson:"user_id"`
	Latitude  float64            `json:"latitude" bson:"latitude"`
	Longitude float64            `json:"longitude" bson:"longitude"`
	Accuracy  *float64           `json:"accuracy,omitempty" bson:"accuracy,omitempty"`
	Altitude  *float64           `json:"altitude,omitempty" bson:"altitude,omitempty"`
	Speed     *float64           `json:"speed,omitempty" bson:"speed,omitempty"`
	Heading   *float64           `json:"heading,omitempty" bson:"heading,omitempty"`
	Source    string             `json:"location_source,omitempty" bson:"location_source,omitempty"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
}
