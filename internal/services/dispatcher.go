package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/pkg/logger"
	"fieldlink/pkg/websocket"
)

const dispatchTimeout = 10 * time.Second

// Dispatcher routes every decoded inbound event to its owning service
// and converts operation errors into named denial events. A failing
// operation answers the originating connection; it never takes the
// coordination loop down for anyone else.
type Dispatcher struct {
	hub       *websocket.Hub
	auth      *AuthService
	presence  *PresenceService
	floor     *FloorService
	emergency *EmergencyService
	location  *LocationService
	message   *MessageService
	log       *logger.Logger
}

func NewDispatcher(
	hub *websocket.Hub,
	auth *AuthService,
	presence *PresenceService,
	floor *FloorService,
	emergency *EmergencyService,
	location *LocationService,
	message *MessageService,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		hub:       hub,
		auth:      auth,
		presence:  presence,
		floor:     floor,
		emergency: emergency,
		location:  location,
		message:   message,
		log:       log,
	}
}

// Dispatch implements websocket.EventHandler. The first event on every
// connection must be authenticate; anything else is refused until the
// identity is bound.
func (d *Dispatcher) Dispatch(client *websocket.Client, env events.Envelope) {
	payload, err := events.DecodeInbound(env)
	if err != nil {
		client.Send(events.NewEnvelope(events.TypeError, "", map[string]string{
			"message": err.Error(),
		}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if auth, ok := payload.(*events.Authenticate); ok {
		d.handleAuthenticate(ctx, client, auth)
		return
	}

	identity, authenticated := client.Identity()
	if !authenticated {
		client.Send(events.NewEnvelope(events.TypeAuthenticationError, "", map[string]string{
			"message": "authentication required",
		}))
		return
	}

	userID := identity.UserID

	switch p := payload.(type) {
	case *events.PTTRequest:
		d.handlePTTRequest(ctx, client, userID, p)
	case *events.PTTRelease:
		d.handlePTTRelease(ctx, client, userID, p)
	case *events.PTTAudioData:
		d.floor.RelayAudio(ctx, userID, p)
	case *events.LocationUpdate:
		d.handleLocationUpdate(ctx, client, userID, p)
	case *events.LocationRequest:
		d.handleLocationRequest(ctx, client, userID, p)
	case *events.MessageSend:
		d.handleMessageSend(ctx, client, userID, p)
	case *events.MessageTyping:
		if err := d.message.Typing(ctx, userID, p); err != nil {
			d.sendError(client, err)
		}
	case *events.EmergencySOS:
		d.handleEmergencySOS(ctx, client, userID, p)
	case *events.EmergencyCancel:
		d.handleEmergencyCancel(ctx, client, identity, p)
	case *events.StatusUpdate:
		d.handleStatusUpdate(ctx, client, userID, p)
	case *events.Heartbeat:
		client.Send(events.NewEnvelope(events.TypeHeartbeat, userID.Hex(), nil))
	}
}

func (d *Dispatcher) handleAuthenticate(ctx context.Context, client *websocket.Client, auth *events.Authenticate) {
	identity, err := d.auth.Authenticate(ctx, auth.Token)
	if err != nil {
		client.Send(events.NewEnvelope(events.TypeAuthenticationError, "", map[string]string{
			"message": "authentication failed",
		}))
		client.Close()
		return
	}

	d.hub.Admit(client, websocket.Identity{
		UserID:   identity.UserID,
		DeviceID: identity.DeviceID,
		Role:     identity.Role,
		Username: identity.Username,
	}, identity.GroupIDs)

	d.presence.HandleConnect(ctx, identity.UserID)

	groups := make([]string, 0, len(identity.GroupIDs))
	for _, id := range identity.GroupIDs {
		groups = append(groups, id.Hex())
	}
	client.Send(events.NewEnvelope(events.TypeAuthenticated, identity.UserID.Hex(), map[string]interface{}{
		"user_id":  identity.UserID.Hex(),
		"username": identity.Username,
		"groups":   groups,
	}))
}

func (d *Dispatcher) handlePTTRequest(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, req *events.PTTRequest) {
	groupID, err := primitive.ObjectIDFromHex(req.GroupID)
	if err != nil {
		d.sendPTTDenied(client, userID, events.DenyNotMember)
		return
	}

	session, err := d.floor.Request(ctx, userID, groupID, models.SessionType(req.SessionType))
	if err != nil {
		switch {
		case errors.Is(err, ErrGroupBusy):
			d.sendPTTDenied(client, userID, events.DenyGroupBusy)
		case errors.Is(err, ErrPermissionDenied):
			d.sendPTTDenied(client, userID, events.DenyNotMember)
		default:
			d.sendPTTDenied(client, userID, events.DenyServerError)
		}
		return
	}

	client.Send(events.NewEnvelope(events.TypePTTGranted, userID.Hex(), map[string]interface{}{
		"session_id": session.ID.Hex(),
		"group_id":   session.GroupID.Hex(),
	}))
}

func (d *Dispatcher) sendPTTDenied(client *websocket.Client, userID primitive.ObjectID, reason string) {
	client.Send(events.NewEnvelope(events.TypePTTDenied, userID.Hex(), map[string]string{
		"reason": reason,
	}))
}

func (d *Dispatcher) handlePTTRelease(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, req *events.PTTRelease) {
	sessionID, err := primitive.ObjectIDFromHex(req.SessionID)
	if err != nil {
		d.sendError(client, ErrInvalidRequest)
		return
	}

	if _, err := d.floor.Release(ctx, userID, sessionID); err != nil {
		d.sendError(client, err)
	}
}

func (d *Dispatcher) handleLocationUpdate(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, upd *events.LocationUpdate) {
	if _, err := d.location.Update(ctx, userID, upd); err != nil {
		d.sendError(client, err)
	}
}

func (d *Dispatcher) handleLocationRequest(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, req *events.LocationRequest) {
	samples, err := d.location.Request(ctx, userID, req)
	if err != nil {
		d.sendError(client, err)
		return
	}

	client.Send(events.NewEnvelope(events.TypeLocationResponse, userID.Hex(), map[string]interface{}{
		"request_id": req.RequestID,
		"locations":  samples,
	}))
}

func (d *Dispatcher) handleMessageSend(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, req *events.MessageSend) {
	message, err := d.message.Send(ctx, userID, req)
	if err != nil {
		d.sendError(client, err)
		return
	}

	client.Send(events.NewEnvelope(events.TypeMessageSent, userID.Hex(), map[string]interface{}{
		"message_id": message.ID.Hex(),
		"delivered":  message.Delivered,
	}))
}

func (d *Dispatcher) handleEmergencySOS(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, req *events.EmergencySOS) {
	var location *models.LocationSample
	if req.Location != nil {
		location = &models.LocationSample{
			UserID:    userID,
			Latitude:  *req.Location.Latitude,
			Longitude: *req.Location.Longitude,
			Accuracy:  req.Location.Accuracy,
			Timestamp: time.Now(),
		}
	}

	if _, _, err := d.emergency.Trigger(ctx, userID, models.AlertType(req.AlertType), req.Notes, location); err != nil {
		d.sendError(client, err)
	}
}

func (d *Dispatcher) handleEmergencyCancel(ctx context.Context, client *websocket.Client, identity websocket.Identity, req *events.EmergencyCancel) {
	var alertID primitive.ObjectID
	if req.AlertID != "" {
		id, err := primitive.ObjectIDFromHex(req.AlertID)
		if err != nil {
			d.sendError(client, ErrInvalidRequest)
			return
		}
		alertID = id
	} else {
		active := d.emergency.ActiveAlert(identity.UserID)
		if active == nil {
			d.sendError(client, interfaces.ErrNotFound)
			return
		}
		alertID = active.ID
	}

	// An originator cancelling their own alert records a false alarm;
	// a dispatcher closing it records a resolution.
	status := models.AlertStatusResolved
	if active := d.emergency.ActiveAlert(identity.UserID); active != nil && active.ID == alertID {
		status = models.AlertStatusFalseAlarm
	}

	if _, err := d.emergency.Resolve(ctx, alertID, identity.UserID, models.UserRole(identity.Role), status, req.Notes); err != nil {
		d.sendError(client, err)
	}
}

func (d *Dispatcher) handleStatusUpdate(ctx context.Context, client *websocket.Client, userID primitive.ObjectID, req *events.StatusUpdate) {
	status := models.UserStatus(req.Status)
	if !models.ValidStatus(status) {
		d.sendError(client, ErrInvalidRequest)
		return
	}
	d.presence.SetStatus(ctx, userID, status)
}

// sendError converts an operation error into the error event. Sentinels
// keep their meaning; everything else is reported as a server fault.
func (d *Dispatcher) sendError(client *websocket.Client, err error) {
	message := "internal server error"
	switch {
	case errors.Is(err, ErrInvalidRequest):
		message = "invalid request"
	case errors.Is(err, ErrPermissionDenied):
		message = "permission denied"
	case errors.Is(err, ErrGroupBusy):
		message = "group busy"
	case errors.Is(err, interfaces.ErrNotFound):
		message = "not found"
	case errors.Is(err, ErrDependencyFailure):
		message = "service temporarily unavailable"
	}

	client.Send(events.NewEnvelope(events.TypeError, "", map[string]string{
		"message": message,
	}))
}
