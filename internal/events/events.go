package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event types (connection -> core).
const (
	TypeAuthenticate    = "authenticate"
	TypePTTRequest      = "ptt_request"
	TypePTTRelease      = "ptt_release"
	TypePTTAudioData    = "ptt_audio_data"
	TypeLocationUpdate  = "location_update"
	TypeLocationRequest = "location_request"
	TypeMessageSend     = "message_send"
	TypeMessageTyping   = "message_typing"
	TypeEmergencySOS    = "emergency_sos"
	TypeEmergencyCancel = "emergency_cancel"
	TypeStatusUpdate    = "status_update"
	TypeHeartbeat       = "heartbeat"
)

// Outbound event types (core -> connection(s)).
const (
	TypeAuthenticated          = "authenticated"
	TypeAuthenticationError    = "authentication_error"
	TypePTTStarted             = "ptt_started"
	TypePTTGranted             = "ptt_granted"
	TypePTTDenied              = "ptt_denied"
	TypePTTAudio               = "ptt_audio"
	TypePTTEnded               = "ptt_ended"
	TypePTTForceEnded          = "ptt_force_ended"
	TypeLocationResponse       = "location_response"
	TypeMessageReceived        = "message_received"
	TypeMessageSent            = "message_sent"
	TypeUserTyping             = "user_typing"
	TypeEmergencyAlert         = "emergency_alert"
	TypeEmergencyPriorityAlert = "emergency_priority_alert"
	TypeEmergencyConfirmed     = "emergency_confirmed"
	TypeEmergencyResolved      = "emergency_resolved"
	TypeEmergencyCancelled     = "emergency_cancelled"
	TypeEmergencyEscalation    = "emergency_escalation"
	TypeUserStatus             = "user_status"
	TypeError                  = "error"
)

// Denial reasons carried by ptt_denied.
const (
	DenyNotMember   = "not_member"
	DenyGroupBusy   = "group_busy"
	DenyServerError = "server_error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a ready-to-send frame.
func NewEnvelope(eventType, userID string, data interface{}) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().Unix(),
		Data:      raw,
	}
}

// Inbound is implemented by every payload a connection may submit.
type Inbound interface {
	Validate() error
}

type Authenticate struct {
	Token string `json:"token"`
}

func (a *Authenticate) Validate() error {
	if a.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

type PTTRequest struct {
	GroupID     string `json:"group_id"`
	SessionType string `json:"session_type"`
}

func (p *PTTRequest) Validate() error {
	if p.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	switch p.SessionType {
	case "", "VOICE", "VIDEO", "HYBRID":
		return nil
	}
	return fmt.Errorf("unknown session_type %q", p.SessionType)
}

type PTTRelease struct {
	SessionID string `json:"session_id"`
}

func (p *PTTRelease) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

type PTTAudioData struct {
	SessionID      string `json:"session_id"`
	AudioData      string `json:"audio_data"`
	SequenceNumber int64  `json:"sequence_number"`
}

func (p *PTTAudioData) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if p.AudioData == "" {
		return fmt.Errorf("audio_data is required")
	}
	return nil
}

type LocationUpdate struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Source    string   `json:"location_source,omitempty"`
}

func (l *LocationUpdate) Validate() error {
	if l.Latitude == nil || l.Longitude == nil {
		return fmt.Errorf("latitude and longitude are required")
	}
	if *l.Latitude < -90 || *l.Latitude > 90 {
		return fmt.Errorf("latitude out of range")
	}
	if *l.Longitude < -180 || *l.Longitude > 180 {
		return fmt.Errorf("longitude out of range")
	}
	return nil
}

type LocationRequest struct {
	UserIDs   []string `json:"user_ids,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func (l *LocationRequest) Validate() error {
	if len(l.UserIDs) == 0 && l.GroupID == "" {
		return fmt.Errorf("user_ids or group_id is required")
	}
	return nil
}

type MessageSend struct {
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
}

func (m *MessageSend) Validate() error {
	if m.RecipientID == "" && m.GroupID == "" {
		return fmt.Errorf("recipient_id or group_id is required")
	}
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

type MessageTyping struct {
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	IsTyping    bool   `json:"is_typing"`
}

func (m *MessageTyping) Validate() error {
	if m.RecipientID == "" && m.GroupID == "" {
		return fmt.Errorf("recipient_id or group_id is required")
	}
	return nil
}

type EmergencySOS struct {
	AlertType string          `json:"alert_type,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Location  *LocationUpdate `json:"location,omitempty"`
}

func (e *EmergencySOS) Validate() error {
	if e.Location != nil {
		return e.Location.Validate()
	}
	return nil
}

type EmergencyCancel struct {
	AlertID string `json:"alert_id,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func (e *EmergencyCancel) Validate() error { return nil }

type StatusUpdate struct {
	Status string `json:"status"`
}

func (s *StatusUpdate) Validate() error {
	if s.Status == "" {
		return fmt.Errorf("status is required")
	}
	return nil
}

type Heartbeat struct{}

func (h *Heartbeat) Validate() error { return nil }

// DecodeInbound parses the payload for a known inbound event type and
// validates it. Unknown types and malformed payloads are rejected here so
// components only ever see well-formed requests.
func DecodeInbound(env Envelope) (Inbound, error) {
	var payload Inbound
	switch env.Type {
	case TypeAuthenticate:
		payload = &Authenticate{}
	case TypePTTRequest:
		payload = &PTTRequest{}
	case TypePTTRelease:
		payload = &PTTRelease{}
	case TypePTTAudioData:
		payload = &PTTAudioData{}
	case TypeLocationUpdate:
		payload = &LocationUpdate{}
	case TypeLocationRequest:
		payload = &LocationRequest{}
	case TypeMessageSend:
		payload = &MessageSend{}
	case TypeMessageTyping:
		payload = &MessageTyping{}
	case TypeEmergencySOS:
		payload = &EmergencySOS{}
	case TypeEmergencyCancel:
		payload = &EmergencyCancel{}
	case TypeStatusUpdate:
		payload = &StatusUpdate{}
	case TypeHeartbeat:
		payload = &Heartbeat{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
	}

	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}

	return payload, nil
}
