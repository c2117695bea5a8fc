package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/config"
	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
	"fieldlink/pkg/logger"
)

func testLogger() *logger.Logger {
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
	if err != nil {
		panic(err)
	}
	return log
}

// sentEvent is one recorded broadcast.
type sentEvent struct {
	Kind    string // "user", "group", "group_except"
	Target  primitive.ObjectID
	Exclude primitive.ObjectID
	Type    string
	Data    map[string]interface{}
}

// fakeBroadcaster records every fan-out instead of touching a socket.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
	online map[primitive.ObjectID]bool
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{online: make(map[primitive.ObjectID]bool)}
}

func (b *fakeBroadcaster) record(kind string, target, exclude primitive.ObjectID, env events.Envelope) {
	var data map[string]interface{}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{Kind: kind, Target: target, Exclude: exclude, Type: env.Type, Data: data})
}

func (b *fakeBroadcaster) SendToUser(userID primitive.ObjectID, env events.Envelope) {
	b.record("user", userID, primitive.NilObjectID, env)
}

func (b *fakeBroadcaster) SendToGroup(groupID primitive.ObjectID, env events.Envelope) {
	b.record("group", groupID, primitive.NilObjectID, env)
}

func (b *fakeBroadcaster) SendToGroupExcept(groupID, exclude primitive.ObjectID, env events.Envelope) {
	b.record("group_except", groupID, exclude, env)
}

func (b *fakeBroadcaster) IsUserOnline(userID primitive.ObjectID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online[userID]
}

func (b *fakeBroadcaster) setOnline(userID primitive.ObjectID, online bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online[userID] = online
}

func (b *fakeBroadcaster) ofType(eventType string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeGroupRepo serves memberships from a fixed slice.
type fakeGroupRepo struct {
	mu          sync.Mutex
	memberships []*models.GroupMembership
	queryCalls  int
}

func (r *fakeGroupRepo) addMembership(userID, groupID primitive.ObjectID, kind models.GroupKind, permission models.GroupPermission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships = append(r.memberships, &models.GroupMembership{
		GroupID:    groupID,
		UserID:     userID,
		Kind:       kind,
		Permission: permission,
		JoinedAt:   time.Now(),
	})
}

func (r *fakeGroupRepo) Create(ctx context.Context, group *models.Group) error { return nil }
func (r *fakeGroupRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	return nil, interfaces.ErrNotFound
}
func (r *fakeGroupRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}
func (r *fakeGroupRepo) Delete(ctx context.Context, id primitive.ObjectID) error { return nil }
func (r *fakeGroupRepo) AddMember(ctx context.Context, membership *models.GroupMembership) error {
	return nil
}
func (r *fakeGroupRepo) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	return nil
}

func (r *fakeGroupRepo) QueryGroupMembership(ctx context.Context, userID primitive.ObjectID) ([]*models.GroupMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryCalls++
	var out []*models.GroupMembership
	for _, m := range r.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeGroupRepo) GetMembers(ctx context.Context, groupID primitive.ObjectID) ([]*models.GroupMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.GroupMembership
	for _, m := range r.memberships {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeSessionRepo stores floor sessions in a map. createErr simulates a
// Store outage.
type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[primitive.ObjectID]*models.PTTSession
	createErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[primitive.ObjectID]*models.PTTSession)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.PTTSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PTTSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeSessionRepo) EndSession(ctx context.Context, id primitive.ObjectID, endReason string, duration int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || !session.IsActive {
		return fmt.Errorf("end session: %w", interfaces.ErrNotFound)
	}
	now := time.Now()
	session.IsActive = false
	session.EndTime = &now
	session.EndReason = endReason
	session.Duration = duration
	return nil
}

func (r *fakeSessionRepo) GetActiveByGroup(ctx context.Context, groupID primitive.ObjectID) (*models.PTTSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.GroupID == groupID && session.IsActive {
			copied := *session
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *fakeSessionRepo) GetByGroupID(ctx context.Context, groupID primitive.ObjectID, params *utils.PaginationParams) ([]*models.PTTSession, int64, error) {
	return nil, 0, nil
}

func (r *fakeSessionRepo) GetByCallerID(ctx context.Context, callerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.PTTSession, int64, error) {
	return nil, 0, nil
}

// fakeUserRepo carries statuses, escalation profiles, and role rosters.
type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[primitive.ObjectID]*models.User
	statuses map[primitive.ObjectID]models.UserStatus
	profiles map[primitive.ObjectID]*models.EmergencyProfile
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[primitive.ObjectID]*models.User),
		statuses: make(map[primitive.ObjectID]models.UserStatus),
		profiles: make(map[primitive.ObjectID]*models.EmergencyProfile),
	}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeUserRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	return nil
}

func (r *fakeUserRepo) GetEmergencyProfile(ctx context.Context, userID primitive.ObjectID) (*models.EmergencyProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return profile, nil
}

func (r *fakeUserRepo) GetByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, user := range r.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	return out, nil
}

// fakeEmergencyRepo stores alerts in a map.
type fakeEmergencyRepo struct {
	mu        sync.Mutex
	alerts    map[primitive.ObjectID]*models.EmergencyAlert
	createErr error
}

func newFakeEmergencyRepo() *fakeEmergencyRepo {
	return &fakeEmergencyRepo{alerts: make(map[primitive.ObjectID]*models.EmergencyAlert)}
}

func (r *fakeEmergencyRepo) Create(ctx context.Context, alert *models.EmergencyAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = alert.CreatedAt
	copied := *alert
	r.alerts[alert.ID] = &copied
	return nil
}

func (r *fakeEmergencyRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *alert
	return &copied, nil
}

func (r *fakeEmergencyRepo) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if notes, ok := updates["notes"].(string); ok {
		alert.Notes = notes
	}
	return nil
}

func (r *fakeEmergencyRepo) ResolveAlert(ctx context.Context, id primitive.ObjectID, resolvedBy primitive.ObjectID, status models.AlertStatus, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok || alert.Status != models.AlertStatusActive {
		return fmt.Errorf("resolve alert: %w", interfaces.ErrNotFound)
	}
	now := time.Now()
	alert.Status = status
	alert.ResolvedBy = &resolvedBy
	alert.ResolvedAt = &now
	if notes != "" {
		alert.Notes = notes
	}
	return nil
}

func (r *fakeEmergencyRepo) GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (*models.EmergencyAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alert := range r.alerts {
		if alert.UserID == userID && alert.Status == models.AlertStatusActive {
			copied := *alert
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *fakeEmergencyRepo) GetActiveAlerts(ctx context.Context) ([]*models.EmergencyAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.EmergencyAlert
	for _, alert := range r.alerts {
		if alert.Status == models.AlertStatusActive {
			copied := *alert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeEmergencyRepo) GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error) {
	return nil, 0, nil
}

func (r *fakeEmergencyRepo) GetByStatus(ctx context.Context, status models.AlertStatus, params *utils.PaginationParams) ([]*models.EmergencyAlert, int64, error) {
	return nil, 0, nil
}

// fakeLocationRepo keeps samples in insertion order.
type fakeLocationRepo struct {
	mu      sync.Mutex
	samples []*models.LocationSample
}

func (r *fakeLocationRepo) Create(ctx context.Context, sample *models.LocationSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sample
	r.samples = append(r.samples, &copied)
	return nil
}

func (r *fakeLocationRepo) GetLatestByUser(ctx context.Context, userID primitive.ObjectID) (*models.LocationSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.samples) - 1; i >= 0; i-- {
		if r.samples[i].UserID == userID {
			copied := *r.samples[i]
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *fakeLocationRepo) GetByUserID(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.LocationSample, int64, error) {
	return nil, 0, nil
}

// fakeMessageRepo stores messages in a map.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[primitive.ObjectID]*models.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[primitive.ObjectID]*models.Message)}
}

func (r *fakeMessageRepo) Create(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	message.Timestamp = time.Now()
	copied := *message
	r.messages[message.ID] = &copied
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.messages[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *message
	return &copied, nil
}

func (r *fakeMessageRepo) GetByGroupID(ctx context.Context, groupID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	return nil, 0, nil
}

func (r *fakeMessageRepo) GetDirectHistory(ctx context.Context, userA, userB primitive.ObjectID, params *utils.PaginationParams) ([]*models.Message, int64, error) {
	return nil, 0, nil
}

func (r *fakeMessageRepo) MarkDelivered(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message, ok := r.messages[id]; ok {
		message.Delivered = true
	}
	return nil
}

func (r *fakeMessageRepo) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message, ok := r.messages[id]; ok {
		message.Read = true
	}
	return nil
}

func (r *fakeMessageRepo) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, message := range r.messages {
		if message.RecipientID != nil && *message.RecipientID == userID && !message.Read {
			count++
		}
	}
	return count, nil
}

// fakeGeoCache is an in-memory stand-in for the Redis cache, round
// tripping values through JSON the way the real one does.
type fakeGeoCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	geo     map[string][]*redis.GeoLocation
}

func newFakeGeoCache() *fakeGeoCache {
	return &fakeGeoCache{
		entries: make(map[string][]byte),
		geo:     make(map[string][]*redis.GeoLocation),
	}
}

func (c *fakeGeoCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeGeoCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *fakeGeoCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *fakeGeoCache) GeoAdd(ctx context.Context, key string, geoLocation *redis.GeoLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.geo[key] = append(c.geo[key], geoLocation)
	return nil
}

// testEnv wires the services against the fakes.
type testEnv struct {
	broadcaster *fakeBroadcaster
	groups      *fakeGroupRepo
	sessions    *fakeSessionRepo
	users       *fakeUserRepo
	alerts      *fakeEmergencyRepo
	locations   *fakeLocationRepo
	messages    *fakeMessageRepo
	cache       *fakeGeoCache

	membership *MembershipService
	presence   *PresenceService
	floor      *FloorService
	emergency  *EmergencyService
	location   *LocationService
	message    *MessageService
}

func newTestEnv() *testEnv {
	log := testLogger()
	env := &testEnv{
		broadcaster: newFakeBroadcaster(),
		groups:      &fakeGroupRepo{},
		sessions:    newFakeSessionRepo(),
		users:       newFakeUserRepo(),
		alerts:      newFakeEmergencyRepo(),
		locations:   &fakeLocationRepo{},
		messages:    newFakeMessageRepo(),
		cache:       newFakeGeoCache(),
	}

	env.membership = NewMembershipService(env.groups, env.cache, log)
	env.presence = NewPresenceService(env.users, env.membership, env.broadcaster, env.cache, log)
	env.floor = NewFloorService(env.sessions, env.membership, env.presence, env.broadcaster, &config.FloorConfig{
		InactivityTimeout: 50 * time.Millisecond,
		EnableInactivity:  false,
	}, log)
	env.emergency = NewEmergencyService(env.alerts, env.users, env.membership, env.presence, env.broadcaster, nil, nil, "", log)
	env.location = NewLocationService(env.locations, env.membership, env.broadcaster, env.cache, log)
	env.message = NewMessageService(env.messages, env.membership, env.broadcaster, log)
	return env
}
