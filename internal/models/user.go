package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string
type UserStatus string

const (
	RoleAdmin    UserRole = "admin"
	RoleOperator UserRole = "operator"
	RoleUser     UserRole = "user"
	RoleGuest    UserRole = "guest"

	StatusOnline    UserStatus = "online"
	StatusOffline   UserStatus = "offline"
	StatusBusy      UserStatus = "busy"
	StatusInCall    UserStatus = "in_call"
	StatusEmergency UserStatus = "emergency"
)

// ValidStatus reports whether s is a status a client may set explicitly.
func ValidStatus(s UserStatus) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusInCall, StatusEmergency:
		return true
	}
	return false
}

type User struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username  string             `json:"username" bson:"username" validate:"required"`
	Email     string             `json:"email" bson:"email"`
	FirstName string             `json:"first_name" bson:"first_name"`
	LastName  string             `json:"last_name" bson:"last_name"`
	Role      UserRole           `json:"role" bson:"role"`
	IsActive  bool               `json:"is_active" bson:"is_active"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// EscalationAction identifies what a fired escalation rung does.
type EscalationAction string

const (
	EscalationNotifyOperator   EscalationAction = "notify_operator"
	EscalationNotifySupervisor EscalationAction = "notify_supervisor"
	EscalationSendSMS          EscalationAction = "send_sms"
	EscalationSendPush         EscalationAction = "send_push"
)

// EscalationRule is one rung of a user's escalation ladder: after Delay
// seconds with the alert still active, Action fires against Target.
type EscalationRule struct {
	Delay    int              `json:"delay" bson:"delay"`
	Action   EscalationAction `json:"action" bson:"action"`
	Target   string           `json:"target" bson:"target"`
	IsActive bool             `json:"is_active" bson:"is_active"`
}

// EmergencyProfile is external configuration attached to a user; the
// coordinator only reads it to arm per-alert timers.
type EmergencyProfile struct {
	UserID          primitive.ObjectID `json:"user_id" bson:"user_id"`
	EscalationRules []EscalationRule   `json:"escalation_rules" bson:"escalation_rules"`
	ContactPhone    string             `json:"contact_phone" bson:"contact_phone"`
	DeviceTokens    []string           `json:"device_tokens" bson:"device_tokens"`
}
