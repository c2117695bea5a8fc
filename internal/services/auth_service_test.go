package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/models"
	"fieldlink/internal/utils"
)

const testSecret = "unit-test-secret"

func newAuthService(env *testEnv) *AuthService {
	return NewAuthService(env.users, env.membership, testSecret, testLogger())
}

func TestAuthenticateValidToken(t *testing.T) {
	env := newTestEnv()
	auth := newAuthService(env)
	ctx := context.Background()

	user := &models.User{ID: primitive.NewObjectID(), Username: "unit7", Role: models.RoleUser, IsActive: true}
	require.NoError(t, env.users.Create(ctx, user))
	groupID := primitive.NewObjectID()
	env.groups.addMembership(user.ID, groupID, models.GroupKindStandard, models.PermissionMember)

	pair, err := utils.GenerateTokenPair(user.ID, "radio-1", string(user.Role), user.Username, testSecret)
	require.NoError(t, err)

	identity, err := auth.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, "radio-1", identity.DeviceID)
	assert.Equal(t, "unit7", identity.Username)
	assert.Equal(t, []primitive.ObjectID{groupID}, identity.GroupIDs)
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	env := newTestEnv()
	auth := newAuthService(env)

	_, err := auth.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	env := newTestEnv()
	auth := newAuthService(env)

	pair, err := utils.GenerateTokenPair(primitive.NewObjectID(), "d", "user", "ghost", testSecret)
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthenticateRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv()
	auth := newAuthService(env)
	ctx := context.Background()

	user := &models.User{ID: primitive.NewObjectID(), Username: "benched", Role: models.RoleUser, IsActive: false}
	require.NoError(t, env.users.Create(ctx, user))

	pair, err := utils.GenerateTokenPair(user.ID, "d", string(user.Role), user.Username, testSecret)
	require.NoError(t, err)

	_, err = auth.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
