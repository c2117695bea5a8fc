package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/pkg/logger"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return NewHub(log)
}

func drain(t *testing.T, c *Client) []events.Envelope {
	t.Helper()
	var out []events.Envelope
	for {
		select {
		case data := <-c.send:
			var env events.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	hub := testHub(t)
	client := NewClient("conn-1", hub, nil, nil)

	require.NoError(t, hub.Register(client))
	assert.ErrorIs(t, hub.Register(NewClient("conn-1", hub, nil, nil)), ErrDuplicateConnection)
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestLookupRequiresAuthentication(t *testing.T) {
	hub := testHub(t)
	client := NewClient("conn-1", hub, nil, nil)
	require.NoError(t, hub.Register(client))

	_, err := hub.Lookup("conn-1")
	assert.ErrorIs(t, err, ErrNotFound)

	userID := primitive.NewObjectID()
	hub.Admit(client, Identity{UserID: userID, Username: "unit7"}, nil)

	identity, err := hub.Lookup("conn-1")
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)

	_, err = hub.Lookup("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdmitJoinsRooms(t *testing.T) {
	hub := testHub(t)
	client := NewClient("conn-1", hub, nil, nil)
	require.NoError(t, hub.Register(client))

	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	hub.Admit(client, Identity{UserID: userID}, []primitive.ObjectID{groupID})

	assert.Equal(t, 1, hub.RoomSize(UserRoom(userID)))
	assert.Equal(t, 1, hub.RoomSize(GroupRoom(groupID)))
	assert.True(t, hub.IsUserOnline(userID))
}

func TestUnregisterRunsHooksExactlyOnce(t *testing.T) {
	hub := testHub(t)
	var calls []string
	hub.OnDisconnect(func(userID primitive.ObjectID, connectionID string) {
		calls = append(calls, "first:"+connectionID)
	})
	hub.OnDisconnect(func(userID primitive.ObjectID, connectionID string) {
		calls = append(calls, "second:"+connectionID)
	})

	client := NewClient("conn-1", hub, nil, nil)
	require.NoError(t, hub.Register(client))
	userID := primitive.NewObjectID()
	hub.Admit(client, Identity{UserID: userID}, nil)

	identity, err := hub.Unregister("conn-1")
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, []string{"first:conn-1", "second:conn-1"}, calls)

	_, err = hub.Unregister("conn-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, calls, 2, "hooks must not run again")
	assert.False(t, hub.IsUserOnline(userID))
}

func TestUnregisterSkipsHooksForUnauthenticated(t *testing.T) {
	hub := testHub(t)
	hookRan := false
	hub.OnDisconnect(func(userID primitive.ObjectID, connectionID string) {
		hookRan = true
	})

	client := NewClient("conn-1", hub, nil, nil)
	require.NoError(t, hub.Register(client))

	_, err := hub.Unregister("conn-1")
	require.NoError(t, err)
	assert.False(t, hookRan, "a connection that never authenticated has nothing to clean up")
}

func TestSendToGroupReachesAllMembers(t *testing.T) {
	hub := testHub(t)
	groupID := primitive.NewObjectID()

	var clients []*Client
	for i := 0; i < 3; i++ {
		client := NewClient("conn-"+string(rune('a'+i)), hub, nil, nil)
		require.NoError(t, hub.Register(client))
		hub.Admit(client, Identity{UserID: primitive.NewObjectID()}, []primitive.ObjectID{groupID})
		clients = append(clients, client)
	}

	hub.SendToGroup(groupID, events.NewEnvelope("test_event", "", nil))

	for _, client := range clients {
		got := drain(t, client)
		require.Len(t, got, 1)
		assert.Equal(t, "test_event", got[0].Type)
		assert.Equal(t, GroupRoom(groupID), got[0].RoomID)
	}
}

func TestSendToGroupExceptSkipsExcludedUser(t *testing.T) {
	hub := testHub(t)
	groupID := primitive.NewObjectID()
	speaker := primitive.NewObjectID()
	listener := primitive.NewObjectID()

	speakerClient := NewClient("conn-speaker", hub, nil, nil)
	require.NoError(t, hub.Register(speakerClient))
	hub.Admit(speakerClient, Identity{UserID: speaker}, []primitive.ObjectID{groupID})

	listenerClient := NewClient("conn-listener", hub, nil, nil)
	require.NoError(t, hub.Register(listenerClient))
	hub.Admit(listenerClient, Identity{UserID: listener}, []primitive.ObjectID{groupID})

	hub.SendToGroupExcept(groupID, speaker, events.NewEnvelope("audio", speaker.Hex(), nil))

	assert.Empty(t, drain(t, speakerClient), "the speaker must not hear their own frames")
	assert.Len(t, drain(t, listenerClient), 1)
}

func TestSendToUserHitsEveryConnection(t *testing.T) {
	hub := testHub(t)
	userID := primitive.NewObjectID()

	phone := NewClient("conn-phone", hub, nil, nil)
	require.NoError(t, hub.Register(phone))
	hub.Admit(phone, Identity{UserID: userID, DeviceID: "phone"}, nil)

	radio := NewClient("conn-radio", hub, nil, nil)
	require.NoError(t, hub.Register(radio))
	hub.Admit(radio, Identity{UserID: userID, DeviceID: "radio"}, nil)

	hub.SendToUser(userID, events.NewEnvelope("ping", "", nil))

	assert.Len(t, drain(t, phone), 1)
	assert.Len(t, drain(t, radio), 1)
}

func TestOnlineUserIDsDeduplicates(t *testing.T) {
	hub := testHub(t)
	userID := primitive.NewObjectID()

	for _, id := range []string{"conn-1", "conn-2"} {
		client := NewClient(id, hub, nil, nil)
		require.NoError(t, hub.Register(client))
		hub.Admit(client, Identity{UserID: userID}, nil)
	}

	ids := hub.OnlineUserIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, userID, ids[0])
}

func TestLeaveGroupStopsDelivery(t *testing.T) {
	hub := testHub(t)
	groupID := primitive.NewObjectID()

	client := NewClient("conn-1", hub, nil, nil)
	require.NoError(t, hub.Register(client))
	hub.Admit(client, Identity{UserID: primitive.NewObjectID()}, []primitive.ObjectID{groupID})

	hub.LeaveGroup(client, groupID)
	hub.SendToGroup(groupID, events.NewEnvelope("test_event", "", nil))

	assert.Empty(t, drain(t, client))
	assert.Equal(t, 0, hub.RoomSize(GroupRoom(groupID)))
}
