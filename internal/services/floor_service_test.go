package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/config"
	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
)

func TestFloorRequestGrantsSingleHolder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	groupID := primitive.NewObjectID()

	const contenders = 8
	users := make([]primitive.ObjectID, contenders)
	for i := range users {
		users[i] = primitive.NewObjectID()
		env.groups.addMembership(users[i], groupID, models.GroupKindStandard, models.PermissionMember)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	busy := 0

	for _, userID := range users {
		wg.Add(1)
		go func(userID primitive.ObjectID) {
			defer wg.Done()
			_, err := env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case err == ErrGroupBusy:
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(userID)
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, contenders-1, busy)
	assert.Len(t, env.broadcaster.ofType(events.TypePTTStarted), 1)
	require.NotNil(t, env.floor.ActiveSession(groupID))
}

func TestFloorRequestDeniedForNonMember(t *testing.T) {
	env := newTestEnv()
	groupID := primitive.NewObjectID()

	_, err := env.floor.Request(context.Background(), primitive.NewObjectID(), groupID, models.SessionTypeVoice)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, env.broadcaster.ofType(events.TypePTTStarted))
}

func TestFloorRequestDeniedForObserver(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(userID, groupID, models.GroupKindStandard, models.PermissionObserver)

	_, err := env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFloorRequestStoreFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(userID, groupID, models.GroupKindStandard, models.PermissionMember)

	env.sessions.createErr = assert.AnError
	_, err := env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
	assert.ErrorIs(t, err, ErrDependencyFailure)
	assert.Nil(t, env.floor.ActiveSession(groupID))

	// A failed grant must not jam the floor.
	env.sessions.createErr = nil
	_, err = env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
	assert.NoError(t, err)
}

func TestFloorReleaseRequiresHolder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	holder := primitive.NewObjectID()
	other := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(holder, groupID, models.GroupKindStandard, models.PermissionMember)
	env.groups.addMembership(other, groupID, models.GroupKindStandard, models.PermissionMember)

	session, err := env.floor.Request(ctx, holder, groupID, models.SessionTypeVoice)
	require.NoError(t, err)

	_, err = env.floor.Release(ctx, other, session.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	require.NotNil(t, env.floor.ActiveSession(groupID))
}

func TestFloorDoubleRelease(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(userID, groupID, models.GroupKindStandard, models.PermissionMember)

	session, err := env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
	require.NoError(t, err)

	ended, err := env.floor.Release(ctx, userID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, EndReasonReleased, ended.EndReason)
	assert.False(t, ended.IsActive)

	_, err = env.floor.Release(ctx, userID, session.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Len(t, env.broadcaster.ofType(events.TypePTTEnded), 1)
}

func TestFloorReleaseFreesGroup(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := primitive.NewObjectID()
	second := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(first, groupID, models.GroupKindStandard, models.PermissionMember)
	env.groups.addMembership(second, groupID, models.GroupKindStandard, models.PermissionMember)

	session, err := env.floor.Request(ctx, first, groupID, models.SessionTypeVoice)
	require.NoError(t, err)
	_, err = env.floor.Request(ctx, second, groupID, models.SessionTypeVoice)
	require.ErrorIs(t, err, ErrGroupBusy)

	_, err = env.floor.Release(ctx, first, session.ID)
	require.NoError(t, err)

	granted, err := env.floor.Request(ctx, second, groupID, models.SessionTypeVoice)
	require.NoError(t, err)
	assert.Equal(t, second, granted.CallerID)
}

func TestFloorRelayAudioFromNonHolderDropped(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	holder := primitive.NewObjectID()
	intruder := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(holder, groupID, models.GroupKindStandard, models.PermissionMember)
	env.groups.addMembership(intruder, groupID, models.GroupKindStandard, models.PermissionMember)

	session, err := env.floor.Request(ctx, holder, groupID, models.SessionTypeVoice)
	require.NoError(t, err)

	frame := &events.PTTAudioData{SessionID: session.ID.Hex(), AudioData: "q80=", SequenceNumber: 1}

	env.floor.RelayAudio(ctx, intruder, frame)
	assert.Empty(t, env.broadcaster.ofType(events.TypePTTAudio))

	env.floor.RelayAudio(ctx, holder, frame)
	relayed := env.broadcaster.ofType(events.TypePTTAudio)
	require.Len(t, relayed, 1)
	assert.Equal(t, "group_except", relayed[0].Kind)
	assert.Equal(t, holder, relayed[0].Exclude)
}

func TestFloorHandleDisconnectForcesRelease(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(userID, groupID, models.GroupKindStandard, models.PermissionMember)

	session, err := env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
	require.NoError(t, err)

	env.floor.HandleDisconnect(userID, "conn-1")

	assert.Nil(t, env.floor.ActiveSession(groupID))
	forced := env.broadcaster.ofType(events.TypePTTForceEnded)
	require.Len(t, forced, 1)
	assert.Equal(t, EndReasonDisconnected, forced[0].Data["reason"])

	stored, err := env.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, EndReasonDisconnected, stored.EndReason)
}

func TestFloorIndependentGroups(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userA := primitive.NewObjectID()
	userB := primitive.NewObjectID()
	groupA := primitive.NewObjectID()
	groupB := primitive.NewObjectID()
	env.groups.addMembership(userA, groupA, models.GroupKindStandard, models.PermissionMember)
	env.groups.addMembership(userB, groupB, models.GroupKindStandard, models.PermissionMember)

	_, err := env.floor.Request(ctx, userA, groupA, models.SessionTypeVoice)
	require.NoError(t, err)
	_, err = env.floor.Request(ctx, userB, groupB, models.SessionTypeVoice)
	require.NoError(t, err)
}

func TestFloorInactivityTimeout(t *testing.T) {
	env := newTestEnv()
	env.floor.cfg = &config.FloorConfig{
		InactivityTimeout: 30 * time.Millisecond,
		EnableInactivity:  true,
	}
	ctx := context.Background()
	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(userID, groupID, models.GroupKindStandard, models.PermissionMember)

	_, err := env.floor.Request(ctx, userID, groupID, models.SessionTypeVoice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.floor.ActiveSession(groupID) == nil
	}, time.Second, 5*time.Millisecond)

	forced := env.broadcaster.ofType(events.TypePTTForceEnded)
	require.Len(t, forced, 1)
	assert.Equal(t, EndReasonInactivity, forced[0].Data["reason"])
}
