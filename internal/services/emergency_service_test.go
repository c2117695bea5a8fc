package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
)

func TestTriggerCreatesActiveAlert(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	standard := primitive.NewObjectID()
	dispatch := primitive.NewObjectID()
	env.groups.addMembership(userID, standard, models.GroupKindStandard, models.PermissionMember)
	env.groups.addMembership(userID, dispatch, models.GroupKindDispatch, models.PermissionMember)

	alert, created, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "officer down", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.AlertStatusActive, alert.Status)
	assert.Equal(t, 5, alert.Priority)
	assert.Equal(t, models.StatusEmergency, env.presence.Status(userID))

	confirmed := env.broadcaster.ofType(events.TypeEmergencyConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, userID, confirmed[0].Target)

	// Every group hears the alert; only the dispatch group gets the
	// priority variant.
	alerts := env.broadcaster.ofType(events.TypeEmergencyAlert)
	require.Len(t, alerts, 2)
	priority := env.broadcaster.ofType(events.TypeEmergencyPriorityAlert)
	require.Len(t, priority, 1)
	assert.Equal(t, dispatch, priority[0].Target)
	assert.Equal(t, true, priority[0].Data["requires_immediate_action"])
}

func TestTriggerFoldsRepeatIntoExistingAlert(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	first, created, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "first", nil)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "second", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "first; second", second.Notes)

	// Only the original trigger confirms; the repeat just re-fans out.
	assert.Len(t, env.broadcaster.ofType(events.TypeEmergencyConfirmed), 1)
}

func TestResolveOwnAlert(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	env.broadcaster.setOnline(userID, true)

	alert, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeMedical, "", nil)
	require.NoError(t, err)

	resolved, err := env.emergency.Resolve(ctx, alert.ID, userID, models.RoleUser, models.AlertStatusFalseAlarm, "all clear")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusFalseAlarm, resolved.Status)
	assert.Nil(t, env.emergency.ActiveAlert(userID))
	assert.Equal(t, models.StatusOnline, env.presence.Status(userID))
}

func TestResolveRequiresOwnerOrOperator(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	operator := primitive.NewObjectID()

	alert, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "", nil)
	require.NoError(t, err)

	_, err = env.emergency.Resolve(ctx, alert.ID, stranger, models.RoleUser, models.AlertStatusResolved, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	require.NotNil(t, env.emergency.ActiveAlert(userID))

	_, err = env.emergency.Resolve(ctx, alert.ID, operator, models.RoleOperator, models.AlertStatusResolved, "")
	assert.NoError(t, err)
	assert.Nil(t, env.emergency.ActiveAlert(userID))
}

func TestResolveRejectsNonTerminalStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	alert, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "", nil)
	require.NoError(t, err)

	_, err = env.emergency.Resolve(ctx, alert.ID, userID, models.RoleUser, models.AlertStatusActive, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEscalationNotifiesOperators(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operator := &models.User{ID: primitive.NewObjectID(), Username: "ops1", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, env.users.Create(ctx, operator))

	alert, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "", nil)
	require.NoError(t, err)

	rule := models.EscalationRule{Delay: 30, Action: models.EscalationNotifyOperator, IsActive: true}
	env.emergency.fireEscalation(alert.ID, userID, rule, &models.EmergencyProfile{})

	escalations := env.broadcaster.ofType(events.TypeEmergencyEscalation)
	require.Len(t, escalations, 1)
	assert.Equal(t, operator.ID, escalations[0].Target)
}

func TestEscalationSkippedAfterResolve(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operator := &models.User{ID: primitive.NewObjectID(), Username: "ops1", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, env.users.Create(ctx, operator))

	alert, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "", nil)
	require.NoError(t, err)
	_, err = env.emergency.Resolve(ctx, alert.ID, userID, models.RoleUser, models.AlertStatusResolved, "")
	require.NoError(t, err)

	rule := models.EscalationRule{Delay: 30, Action: models.EscalationNotifyOperator, IsActive: true}
	env.emergency.fireEscalation(alert.ID, userID, rule, &models.EmergencyProfile{})

	assert.Empty(t, env.broadcaster.ofType(events.TypeEmergencyEscalation))
}

func TestEscalationSkippedForSupersededAlert(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operator := &models.User{ID: primitive.NewObjectID(), Username: "ops1", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, env.users.Create(ctx, operator))

	stale := primitive.NewObjectID()
	_, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "", nil)
	require.NoError(t, err)

	// A rung armed against an id that is no longer the user's active
	// alert must not fire.
	rule := models.EscalationRule{Delay: 30, Action: models.EscalationNotifyOperator, IsActive: true}
	env.emergency.fireEscalation(stale, userID, rule, &models.EmergencyProfile{})

	assert.Empty(t, env.broadcaster.ofType(events.TypeEmergencyEscalation))
}

func TestHandleDisconnectRaisesCommunicationLost(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	alert, _, err := env.emergency.Trigger(ctx, userID, models.AlertTypeSOS, "initial", nil)
	require.NoError(t, err)

	env.emergency.HandleDisconnect(userID, "conn-1")

	current := env.emergency.ActiveAlert(userID)
	require.NotNil(t, current)
	assert.Equal(t, alert.ID, current.ID)
	assert.Contains(t, current.Notes, "communication lost")
}

func TestHandleDisconnectNoAlertNoop(t *testing.T) {
	env := newTestEnv()
	userID := primitive.NewObjectID()

	env.emergency.HandleDisconnect(userID, "conn-1")

	assert.Nil(t, env.emergency.ActiveAlert(userID))
	assert.Empty(t, env.broadcaster.ofType(events.TypeEmergencyAlert))
}
