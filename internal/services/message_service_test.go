package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/utils"
)

func TestSendGroupMessage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sender := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(sender, groupID, models.GroupKindStandard, models.PermissionMember)

	message, err := env.message.Send(ctx, sender, &events.MessageSend{
		GroupID: groupID.Hex(),
		Content: "all units check in",
	})
	require.NoError(t, err)
	assert.True(t, message.Delivered)
	require.NotNil(t, message.GroupID)
	assert.Equal(t, groupID, *message.GroupID)

	received := env.broadcaster.ofType(events.TypeMessageReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "group_except", received[0].Kind)
	assert.Equal(t, sender, received[0].Exclude)
}

func TestSendGroupMessageRequiresTransmit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	observer := primitive.NewObjectID()
	outsider := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(observer, groupID, models.GroupKindStandard, models.PermissionObserver)

	_, err := env.message.Send(ctx, observer, &events.MessageSend{GroupID: groupID.Hex(), Content: "hi"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.message.Send(ctx, outsider, &events.MessageSend{GroupID: groupID.Hex(), Content: "hi"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Empty(t, env.broadcaster.ofType(events.TypeMessageReceived))
}

func TestSendDirectMessage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sender := primitive.NewObjectID()
	recipient := primitive.NewObjectID()

	message, err := env.message.Send(ctx, sender, &events.MessageSend{
		RecipientID: recipient.Hex(),
		Content:     "meet at staging",
	})
	require.NoError(t, err)
	require.NotNil(t, message.RecipientID)
	assert.Equal(t, recipient, *message.RecipientID)

	received := env.broadcaster.ofType(events.TypeMessageReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "user", received[0].Kind)
	assert.Equal(t, recipient, received[0].Target)

	stored, err := env.messages.GetByID(ctx, message.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered)
}

func TestSendRejectsOversizedContent(t *testing.T) {
	env := newTestEnv()
	sender := primitive.NewObjectID()

	_, err := env.message.Send(context.Background(), sender, &events.MessageSend{
		RecipientID: primitive.NewObjectID().Hex(),
		Content:     strings.Repeat("x", utils.MaxMessageLength+1),
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTypingGroupRequiresMembership(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	member := primitive.NewObjectID()
	outsider := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	env.groups.addMembership(member, groupID, models.GroupKindStandard, models.PermissionObserver)

	err := env.message.Typing(ctx, outsider, &events.MessageTyping{GroupID: groupID.Hex(), IsTyping: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Observers cannot transmit messages but may signal typing.
	err = env.message.Typing(ctx, member, &events.MessageTyping{GroupID: groupID.Hex(), IsTyping: true})
	require.NoError(t, err)
	assert.Len(t, env.broadcaster.ofType(events.TypeUserTyping), 1)
}

func TestTypingDirect(t *testing.T) {
	env := newTestEnv()
	sender := primitive.NewObjectID()
	recipient := primitive.NewObjectID()

	err := env.message.Typing(context.Background(), sender, &events.MessageTyping{
		RecipientID: recipient.Hex(),
		IsTyping:    true,
	})
	require.NoError(t, err)

	typing := env.broadcaster.ofType(events.TypeUserTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, recipient, typing[0].Target)
}
