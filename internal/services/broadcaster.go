package services

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
)

// Broadcaster is the fan-out seam between the services and the
// connection registry. Implemented by *websocket.Hub; tests substitute
// a recorder. All sends are best effort and never block on a peer.
type Broadcaster interface {
	SendToUser(userID primitive.ObjectID, env events.Envelope)
	SendToGroup(groupID primitive.ObjectID, env events.Envelope)
	SendToGroupExcept(groupID, exclude primitive.ObjectID, env events.Envelope)
	IsUserOnline(userID primitive.ObjectID) bool
}
