package services

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
	"fieldlink/pkg/logger"
)

// PresenceService owns the per-user status map. Last writer wins; the
// map is rebuilt from live connections after a restart, so OFFLINE is
// the safe default for any user it has never seen.
type PresenceService struct {
	mutex    sync.RWMutex
	statuses map[primitive.ObjectID]models.UserStatus

	users       interfaces.UserRepository
	membership  *MembershipService
	broadcaster Broadcaster
	cache       CacheService
	log         *logger.Logger
}

func NewPresenceService(users interfaces.UserRepository, membership *MembershipService, broadcaster Broadcaster, cache CacheService, log *logger.Logger) *PresenceService {
	return &PresenceService{
		statuses:    make(map[primitive.ObjectID]models.UserStatus),
		users:       users,
		membership:  membership,
		broadcaster: broadcaster,
		cache:       cache,
		log:         log,
	}
}

// Status returns the user's last known status, OFFLINE when unknown.
func (s *PresenceService) Status(userID primitive.ObjectID) models.UserStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if status, ok := s.statuses[userID]; ok {
		return status
	}
	return models.StatusOffline
}

// SetStatus overwrites the user's status and broadcasts it to the rooms
// of every group the user shares, plus the user's own room. Scoping to
// shared groups keeps fan-out proportional to the user's reach instead
// of the whole connection set.
func (s *PresenceService) SetStatus(ctx context.Context, userID primitive.ObjectID, status models.UserStatus) {
	s.mutex.Lock()
	previous := s.statuses[userID]
	s.statuses[userID] = status
	s.mutex.Unlock()

	if previous == status {
		return
	}

	// Store and cache writes are best effort; presence is rebuilt from
	// live connections.
	if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
		s.log.WithUserID(userID).WithError(err).Debug("Presence store write failed")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, utils.CachePresencePrefix+userID.Hex(), status, utils.PresenceCacheTTL); err != nil {
			s.log.WithUserID(userID).WithError(err).Debug("Presence cache write failed")
		}
	}

	env := events.NewEnvelope(events.TypeUserStatus, userID.Hex(), map[string]interface{}{
		"user_id": userID.Hex(),
		"status":  status,
	})

	s.broadcaster.SendToUser(userID, env)

	memberships, err := s.membership.Memberships(ctx, userID)
	if err != nil {
		s.log.WithUserID(userID).WithError(err).Warn("Presence broadcast membership lookup failed")
		return
	}
	for _, m := range memberships {
		s.broadcaster.SendToGroup(m.GroupID, env)
	}
}

// HandleConnect marks a newly authenticated user ONLINE.
func (s *PresenceService) HandleConnect(ctx context.Context, userID primitive.ObjectID) {
	s.SetStatus(ctx, userID, models.StatusOnline)
}

// HandleDisconnect marks the user OFFLINE unless another live connection
// remains for the same user.
func (s *PresenceService) HandleDisconnect(userID primitive.ObjectID, connectionID string) {
	if s.broadcaster.IsUserOnline(userID) {
		return
	}
	s.SetStatus(context.Background(), userID, models.StatusOffline)
}
