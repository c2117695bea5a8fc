package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
	MessageTypeAudio MessageType = "AUDIO"
	MessageTypeVideo MessageType = "VIDEO"
)

type Message struct {
	ID          primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	SenderID    primitive.ObjectID  `json:"sender_id" bson:"sender_id"`
	RecipientID *primitive.ObjectID `json:"recipient_id" bson:"recipient_id"`
	GroupID     *primitive.ObjectID `json:"group_id" bson:"group_id"`
	MessageType MessageType         `json:"message_type" bson:"message_type"`
	Content     string              `json:"content" bson:"content"`
	Delivered   bool                `json:"delivered" bson:"delivered"`
	Read        bool                `json:"read" bson:"read"`
	Timestamp   time.Time           `json:"timestamp" bson:"timestamp"`
}
