package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/pkg/logger"
	"fieldlink/pkg/push"
	"fieldlink/pkg/sms"
)

// EmergencyService owns the alert state machine: ACTIVE -> RESOLVED or
// ACTIVE -> FALSE_ALARM, both terminal. It keeps an authoritative
// in-memory index of ACTIVE alerts only; everything resolved lives in
// the Store.
type EmergencyService struct {
	mu     sync.Mutex
	active map[primitive.ObjectID]*models.EmergencyAlert

	alerts      interfaces.EmergencyRepository
	users       interfaces.UserRepository
	membership  *MembershipService
	presence    *PresenceService
	broadcaster Broadcaster
	smsProvider sms.SMSProvider
	pushSender  push.PushProvider
	smsFrom     string
	log         *logger.Logger
}

func NewEmergencyService(
	alerts interfaces.EmergencyRepository,
	users interfaces.UserRepository,
	membership *MembershipService,
	presence *PresenceService,
	broadcaster Broadcaster,
	smsProvider sms.SMSProvider,
	pushSender push.PushProvider,
	smsFrom string,
	log *logger.Logger,
) *EmergencyService {
	return &EmergencyService{
		active:      make(map[primitive.ObjectID]*models.EmergencyAlert),
		alerts:      alerts,
		users:       users,
		membership:  membership,
		presence:    presence,
		broadcaster: broadcaster,
		smsProvider: smsProvider,
		pushSender:  pushSender,
		smsFrom:     smsFrom,
		log:         log,
	}
}

// Trigger opens an alert for the user, or folds a repeat trigger into
// the existing ACTIVE alert instead of creating a second one. Returns
// the alert and whether it was newly created.
func (s *EmergencyService) Trigger(ctx context.Context, userID primitive.ObjectID, alertType models.AlertType, notes string, location *models.LocationSample) (*models.EmergencyAlert, bool, error) {
	if alertType == "" {
		alertType = models.AlertTypeSOS
	}

	s.mu.Lock()
	if existing, ok := s.active[userID]; ok {
		if notes != "" {
			if existing.Notes != "" {
				existing.Notes = existing.Notes + "; " + notes
			} else {
				existing.Notes = notes
			}
		}
		if location != nil {
			existing.Location = location
		}
		existing.UpdatedAt = time.Now()
		updated := *existing
		s.mu.Unlock()

		updates := map[string]interface{}{"notes": updated.Notes}
		if location != nil {
			updates["location"] = location
		}
		if err := s.alerts.Update(ctx, updated.ID, updates); err != nil {
			s.log.WithAlertID(updated.ID).WithError(err).Error("Failed to persist alert update")
		}

		s.fanOut(ctx, &updated, false)
		return &updated, false, nil
	}

	alert := &models.EmergencyAlert{
		ID:       primitive.NewObjectID(),
		UserID:   userID,
		Type:     alertType,
		Status:   models.AlertStatusActive,
		Priority: models.PriorityForType(alertType),
		Notes:    notes,
		Location: location,
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}
	s.active[userID] = alert
	s.mu.Unlock()

	s.presence.SetStatus(ctx, userID, models.StatusEmergency)

	s.broadcaster.SendToUser(userID, events.NewEnvelope(events.TypeEmergencyConfirmed, userID.Hex(), map[string]interface{}{
		"alert_id":   alert.ID.Hex(),
		"alert_type": alert.Type,
		"priority":   alert.Priority,
	}))

	s.fanOut(ctx, alert, true)
	s.armEscalation(ctx, alert)

	s.log.LogEmergencyEvent(alert.ID, "triggered", alert.Priority, map[string]interface{}{
		"user_id":    userID.Hex(),
		"alert_type": alert.Type,
	})

	return alert, true, nil
}

// fanOut notifies every group the originator belongs to. Groups of kind
// dispatch or emergency additionally get a priority alert flagged for
// immediate action.
func (s *EmergencyService) fanOut(ctx context.Context, alert *models.EmergencyAlert, initial bool) {
	memberships, err := s.membership.Memberships(ctx, alert.UserID)
	if err != nil {
		s.log.WithAlertID(alert.ID).WithError(err).Error("Emergency fan-out membership lookup failed")
		return
	}

	payload := map[string]interface{}{
		"alert_id":   alert.ID.Hex(),
		"user_id":    alert.UserID.Hex(),
		"alert_type": alert.Type,
		"priority":   alert.Priority,
		"notes":      alert.Notes,
		"created_at": alert.CreatedAt.Unix(),
	}
	if alert.Location != nil {
		payload["location"] = alert.Location
	}

	env := events.NewEnvelope(events.TypeEmergencyAlert, alert.UserID.Hex(), payload)

	priorityPayload := map[string]interface{}{
		"alert_id":                  alert.ID.Hex(),
		"user_id":                   alert.UserID.Hex(),
		"alert_type":                alert.Type,
		"priority":                  alert.Priority,
		"requires_immediate_action": true,
	}
	priorityEnv := events.NewEnvelope(events.TypeEmergencyPriorityAlert, alert.UserID.Hex(), priorityPayload)

	for _, m := range memberships {
		s.broadcaster.SendToGroup(m.GroupID, env)
		if m.Kind.ReceivesLocation() {
			s.broadcaster.SendToGroup(m.GroupID, priorityEnv)
		}
	}
}

// Resolve moves an ACTIVE alert to a terminal status. The originator may
// resolve their own alert; operators and admins may resolve anyone's.
func (s *EmergencyService) Resolve(ctx context.Context, alertID, resolvedBy primitive.ObjectID, callerRole models.UserRole, status models.AlertStatus, notes string) (*models.EmergencyAlert, error) {
	if status != models.AlertStatusResolved && status != models.AlertStatusFalseAlarm {
		return nil, ErrInvalidRequest
	}

	alert, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.UserID != resolvedBy && callerRole != models.RoleOperator && callerRole != models.RoleAdmin {
		return nil, ErrPermissionDenied
	}

	if err := s.alerts.ResolveAlert(ctx, alertID, resolvedBy, status, notes); err != nil {
		return nil, err
	}

	now := time.Now()
	alert.Status = status
	alert.ResolvedBy = &resolvedBy
	alert.ResolvedAt = &now
	if notes != "" {
		alert.Notes = notes
	}

	s.mu.Lock()
	if current, ok := s.active[alert.UserID]; ok && current.ID == alertID {
		delete(s.active, alert.UserID)
	}
	s.mu.Unlock()

	if s.broadcaster.IsUserOnline(alert.UserID) {
		s.presence.SetStatus(ctx, alert.UserID, models.StatusOnline)
	}

	resolvedEnv := events.NewEnvelope(events.TypeEmergencyResolved, resolvedBy.Hex(), map[string]interface{}{
		"alert_id":    alert.ID.Hex(),
		"user_id":     alert.UserID.Hex(),
		"status":      status,
		"resolved_by": resolvedBy.Hex(),
	})

	memberships, err := s.membership.Memberships(ctx, alert.UserID)
	if err == nil {
		for _, m := range memberships {
			s.broadcaster.SendToGroup(m.GroupID, resolvedEnv)
		}
	}

	s.broadcaster.SendToUser(resolvedBy, events.NewEnvelope(events.TypeEmergencyCancelled, resolvedBy.Hex(), map[string]interface{}{
		"alert_id": alert.ID.Hex(),
		"status":   status,
	}))

	s.log.LogEmergencyEvent(alert.ID, "resolved", alert.Priority, map[string]interface{}{
		"resolved_by": resolvedBy.Hex(),
		"status":      status,
	})

	return alert, nil
}

// ActiveAlert returns the user's current ACTIVE alert from the in-memory
// index, or nil.
func (s *EmergencyService) ActiveAlert(userID primitive.ObjectID) *models.EmergencyAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[userID]
}

// ActiveAlerts lists all ACTIVE alerts, highest priority first.
func (s *EmergencyService) ActiveAlerts(ctx context.Context) ([]*models.EmergencyAlert, error) {
	return s.alerts.GetActiveAlerts(ctx)
}

// armEscalation schedules the user's escalation ladder against a fresh
// alert. Timers re-check alert state when they fire; a resolved alert
// makes the rung a no-op. Cancellation is never required for
// correctness, so nothing tracks the timers.
func (s *EmergencyService) armEscalation(ctx context.Context, alert *models.EmergencyAlert) {
	profile, err := s.users.GetEmergencyProfile(ctx, alert.UserID)
	if err != nil {
		s.log.WithAlertID(alert.ID).WithError(err).Debug("No escalation profile")
		return
	}

	for _, rule := range profile.EscalationRules {
		if !rule.IsActive {
			continue
		}
		rule := rule
		time.AfterFunc(time.Duration(rule.Delay)*time.Second, func() {
			s.fireEscalation(alert.ID, alert.UserID, rule, profile)
		})
	}
}

// fireEscalation runs one rung. A failed action is logged and the rest
// of the ladder keeps going independently.
func (s *EmergencyService) fireEscalation(alertID, userID primitive.ObjectID, rule models.EscalationRule, profile *models.EmergencyProfile) {
	s.mu.Lock()
	current, ok := s.active[userID]
	stillActive := ok && current.ID == alertID
	var priority int
	if stillActive {
		priority = current.Priority
	}
	s.mu.Unlock()

	if !stillActive {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch rule.Action {
	case models.EscalationNotifyOperator:
		err = s.notifyRole(ctx, models.RoleOperator, alertID, userID, rule)
	case models.EscalationNotifySupervisor:
		err = s.notifyRole(ctx, models.RoleAdmin, alertID, userID, rule)
	case models.EscalationSendSMS:
		err = s.sendEscalationSMS(ctx, alertID, userID, rule, profile)
	case models.EscalationSendPush:
		err = s.sendEscalationPush(ctx, alertID, userID, rule, profile)
	default:
		s.log.WithAlertID(alertID).Warnf("Unknown escalation action %q", rule.Action)
		return
	}

	if err != nil {
		s.log.WithAlertID(alertID).WithError(err).Error("Escalation action failed")
		return
	}

	s.log.LogEmergencyEvent(alertID, "escalated", priority, map[string]interface{}{
		"action": rule.Action,
		"delay":  rule.Delay,
	})
}

func (s *EmergencyService) notifyRole(ctx context.Context, role models.UserRole, alertID, userID primitive.ObjectID, rule models.EscalationRule) error {
	recipients, err := s.users.GetByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}

	env := events.NewEnvelope(events.TypeEmergencyEscalation, userID.Hex(), map[string]interface{}{
		"alert_id": alertID.Hex(),
		"user_id":  userID.Hex(),
		"action":   rule.Action,
		"delay":    rule.Delay,
	})
	for _, recipient := range recipients {
		s.broadcaster.SendToUser(recipient.ID, env)
	}
	return nil
}

func (s *EmergencyService) sendEscalationSMS(ctx context.Context, alertID, userID primitive.ObjectID, rule models.EscalationRule, profile *models.EmergencyProfile) error {
	if s.smsProvider == nil {
		return fmt.Errorf("%w: no sms provider configured", ErrDependencyFailure)
	}

	to := rule.Target
	if to == "" {
		to = profile.ContactPhone
	}
	if to == "" {
		return fmt.Errorf("%w: no sms target", ErrInvalidRequest)
	}

	_, err := s.smsProvider.SendSMS(ctx, &sms.SMSRequest{
		To:      to,
		From:    s.smsFrom,
		Message: fmt.Sprintf("Emergency alert %s is still active and unanswered.", alertID.Hex()),
		Type:    "transactional",
	})
	return err
}

func (s *EmergencyService) sendEscalationPush(ctx context.Context, alertID, userID primitive.ObjectID, rule models.EscalationRule, profile *models.EmergencyProfile) error {
	if s.pushSender == nil {
		return fmt.Errorf("%w: no push provider configured", ErrDependencyFailure)
	}
	if len(profile.DeviceTokens) == 0 {
		return fmt.Errorf("%w: no device tokens", ErrInvalidRequest)
	}

	var failures []string
	for _, token := range profile.DeviceTokens {
		_, err := s.pushSender.SendNotification(ctx, &push.NotificationRequest{
			Token:    token,
			Title:    "Emergency escalation",
			Body:     "An emergency alert is still active and unanswered.",
			Priority: "high",
			Data: map[string]string{
				"alert_id": alertID.Hex(),
				"user_id":  userID.Hex(),
			},
		})
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%w: %s", ErrDependencyFailure, strings.Join(failures, "; "))
	}
	return nil
}

// HandleDisconnect raises communication loss on any user who drops while
// their alert is ACTIVE. Losing contact during an emergency is itself an
// emergency signal, not a cleanup condition.
func (s *EmergencyService) HandleDisconnect(userID primitive.ObjectID, connectionID string) {
	s.mu.Lock()
	alert, ok := s.active[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	alertID := alert.ID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, _, err := s.Trigger(ctx, userID, models.AlertTypeCommunicationLost, "communication lost during active alert", nil); err != nil {
		s.log.WithAlertID(alertID).WithError(err).Error("Failed to raise communication loss")
	}
}
