package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
	"fieldlink/pkg/logger"
)

// CacheService is the slice of the Redis cache the services use.
// Satisfied by *cache.RedisCache.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// MembershipService is the read-mostly user -> groups index. The Store
// is authoritative; a short-TTL Redis entry absorbs the hot path.
type MembershipService struct {
	groups interfaces.GroupRepository
	cache  CacheService
	log    *logger.Logger
}

func NewMembershipService(groups interfaces.GroupRepository, cache CacheService, log *logger.Logger) *MembershipService {
	return &MembershipService{
		groups: groups,
		cache:  cache,
		log:    log,
	}
}

// Memberships returns every group the user belongs to, with kind and
// permission. Cache first, Store on a miss.
func (s *MembershipService) Memberships(ctx context.Context, userID primitive.ObjectID) ([]*models.GroupMembership, error) {
	cacheKey := utils.CacheMembershipPrefix + userID.Hex()

	if s.cache != nil {
		var cached []*models.GroupMembership
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached != nil {
			return cached, nil
		}
	}

	memberships, err := s.groups.QueryGroupMembership(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, memberships, utils.MembershipCacheTTL); err != nil {
			s.log.WithError(err).Debug("Membership cache write failed")
		}
	}

	return memberships, nil
}

// MembershipFor returns the user's membership row for one group, or nil
// when the user is not a member.
func (s *MembershipService) MembershipFor(ctx context.Context, userID, groupID primitive.ObjectID) (*models.GroupMembership, error) {
	memberships, err := s.Memberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.GroupID == groupID {
			return m, nil
		}
	}
	return nil, nil
}

// GroupIDs returns just the group ids, used to join rooms on connect.
func (s *MembershipService) GroupIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	memberships, err := s.Memberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}

// Invalidate drops the cached index for a user after a membership change.
func (s *MembershipService) Invalidate(ctx context.Context, userID primitive.ObjectID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, utils.CacheMembershipPrefix+userID.Hex()); err != nil {
		s.log.WithError(err).Debug("Membership cache invalidation failed")
	}
}
