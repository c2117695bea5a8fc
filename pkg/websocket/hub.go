package websocket

import (
	"encoding/json"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/pkg/logger"
)

// DisconnectHook is invoked after a registered connection is torn down.
// Hooks run sequentially in registration order, exactly once per
// disconnection, and must not call back into the hub's write lock.
type DisconnectHook func(userID primitive.ObjectID, connectionID string)

// Identity is what the registry knows about an authenticated connection.
type Identity struct {
	UserID   primitive.ObjectID
	DeviceID string
	Role     string
	Username string
}

// Hub tracks live connections and the rooms used for all fan-out
// targeting. Every authenticated connection joins a room per group it
// belongs to plus a personal room keyed by its user id.
type Hub struct {
	mutex           sync.RWMutex
	clients         map[string]*Client
	rooms           map[string]map[*Client]bool
	disconnectHooks []DisconnectHook

	log *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]bool),
		log:     log,
	}
}

// OnDisconnect registers a cleanup hook. Call during startup wiring,
// before any connection is accepted.
func (h *Hub) OnDisconnect(hook DisconnectHook) {
	h.disconnectHooks = append(h.disconnectHooks, hook)
}

// UserRoom and GroupRoom name the two logical room families.
func UserRoom(userID primitive.ObjectID) string  { return "user_" + userID.Hex() }
func GroupRoom(groupID primitive.ObjectID) string { return "group_" + groupID.Hex() }

// Register admits a connection before it has authenticated. The
// connection joins no rooms until Admit runs.
func (h *Hub) Register(client *Client) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.clients[client.ID]; exists {
		return ErrDuplicateConnection
	}

	h.clients[client.ID] = client
	h.log.WithConnectionID(client.ID).Debug("Connection registered")
	return nil
}

// Admit binds an authenticated identity to the connection and joins its
// rooms. Idempotent per connection; a second call rebinds rooms.
func (h *Hub) Admit(client *Client, identity Identity, groupIDs []primitive.ObjectID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client.setIdentity(identity)

	h.joinRoom(client, UserRoom(identity.UserID))
	for _, groupID := range groupIDs {
		h.joinRoom(client, GroupRoom(groupID))
	}

	h.log.WithConnectionID(client.ID).WithUserID(identity.UserID).Info("Connection authenticated")
}

// Unregister removes a connection and runs disconnect hooks exactly
// once. The freed identity is returned so callers can act on it; the
// second and later calls for the same id return ErrNotFound and run
// nothing.
func (h *Hub) Unregister(connectionID string) (Identity, error) {
	h.mutex.Lock()

	client, exists := h.clients[connectionID]
	if !exists {
		h.mutex.Unlock()
		return Identity{}, ErrNotFound
	}

	delete(h.clients, connectionID)
	for roomID, room := range h.rooms {
		if _, ok := room[client]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	client.closeSend()

	identity, authenticated := client.identity()
	h.mutex.Unlock()

	h.log.WithConnectionID(connectionID).Debug("Connection unregistered")

	// Hooks run outside the hub lock so they can fan out through the hub.
	if authenticated {
		for _, hook := range h.disconnectHooks {
			hook(identity.UserID, connectionID)
		}
	}

	return identity, nil
}

// Lookup resolves a connection id to its authenticated identity.
func (h *Hub) Lookup(connectionID string) (Identity, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, exists := h.clients[connectionID]
	if !exists {
		return Identity{}, ErrNotFound
	}
	identity, authenticated := client.identity()
	if !authenticated {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

// JoinGroup and LeaveGroup adjust room membership after a membership
// change without reconnecting.
func (h *Hub) JoinGroup(client *Client, groupID primitive.ObjectID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.joinRoom(client, GroupRoom(groupID))
}

func (h *Hub) LeaveGroup(client *Client, groupID primitive.ObjectID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	roomID := GroupRoom(groupID)
	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		delete(client.rooms, roomID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// joinRoom requires h.mutex held.
func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

// SendToUser delivers an event to every connection in the user's
// personal room. Best effort; a saturated receiver is skipped.
func (h *Hub) SendToUser(userID primitive.ObjectID, env events.Envelope) {
	h.SendToRoom(UserRoom(userID), env)
}

// SendToGroup delivers an event to every connection in the group room.
func (h *Hub) SendToGroup(groupID primitive.ObjectID, env events.Envelope) {
	h.SendToRoom(GroupRoom(groupID), env)
}

// SendToGroupExcept delivers to the group room, skipping the named
// user's connections. Used for relaying a holder's audio frames.
func (h *Hub) SendToGroupExcept(groupID primitive.ObjectID, exclude primitive.ObjectID, env events.Envelope) {
	env.RoomID = GroupRoom(groupID)
	data, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	room, exists := h.rooms[env.RoomID]
	if !exists {
		return
	}
	for client := range room {
		if id, ok := client.identity(); ok && id.UserID == exclude {
			continue
		}
		client.trySend(data)
	}
}

// SendToRoom delivers an event to every connection in a room.
func (h *Hub) SendToRoom(roomID string, env events.Envelope) {
	env.RoomID = roomID
	data, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	room, exists := h.rooms[roomID]
	if !exists {
		return
	}
	for client := range room {
		client.trySend(data)
	}
}

// Broadcast delivers an event to every authenticated connection.
func (h *Hub) Broadcast(env events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.clients {
		if _, ok := client.identity(); !ok {
			continue
		}
		client.trySend(data)
	}
}

// IsUserOnline reports whether the user has at least one live
// authenticated connection.
func (h *Hub) IsUserOnline(userID primitive.ObjectID) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	room, exists := h.rooms[UserRoom(userID)]
	return exists && len(room) > 0
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomSize reports how many connections a room currently holds.
func (h *Hub) RoomSize(roomID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}

// OnlineUserIDs lists users with at least one authenticated connection.
func (h *Hub) OnlineUserIDs() []primitive.ObjectID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	seen := make(map[primitive.ObjectID]bool)
	ids := make([]primitive.ObjectID, 0, len(h.clients))
	for _, client := range h.clients {
		identity, ok := client.identity()
		if !ok || seen[identity.UserID] {
			continue
		}
		seen[identity.UserID] = true
		ids = append(ids, identity.UserID)
	}
	return ids
}
