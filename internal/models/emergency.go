package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertType string
type AlertStatus string

const (
	AlertTypeSOS               AlertType = "SOS"
	AlertTypeManDown           AlertType = "MAN_DOWN"
	AlertTypeMedical           AlertType = "MEDICAL"
	AlertTypeSafety            AlertType = "SAFETY"
	AlertTypeDeviceFailure     AlertType = "DEVICE_FAILURE"
	AlertTypeCommunicationLost AlertType = "COMMUNICATION_LOST"

	AlertStatusActive     AlertStatus = "active"
	AlertStatusResolved   AlertStatus = "resolved"
	AlertStatusFalseAlarm AlertStatus = "false_alarm"
)

// PriorityForType maps an alert type to its fixed priority. The total order
// is used for console ranking and escalation policy.
func PriorityForType(t AlertType) int {
	switch t {
	case AlertTypeSOS:
		return 5
	case AlertTypeManDown, AlertTypeMedical:
		return 4
	case AlertTypeSafety, AlertTypeCommunicationLost:
		return 3
	case AlertTypeDeviceFailure:
		return 2
	default:
		return 1
	}
}

type EmergencyAlert struct {
	ID         primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID     primitive.ObjectID  `json:"user_id" bson:"user_id" validate:"required"`
	Type       AlertType           `json:"alert_type" bson:"alert_type"`
	Status     AlertStatus         `json:"status" bson:"status"`
	Priority   int                 `json:"priority" bson:"priority"`
	Notes      string              `json:"notes" bson:"notes"`
	Location   *LocationSample     `json:"location" bson:"location"`
	ResolvedBy *primitive.ObjectID `json:"resolved_by" bson:"resolved_by"`
	CreatedAt  time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at" bson:"updated_at"`
	ResolvedAt *time.Time          `json:"resolved_at" bson:"resolved_at"`
}
