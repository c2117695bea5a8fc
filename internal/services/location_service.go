package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
	"fieldlink/pkg/logger"
)

// GeoCache adds the geo index on top of the plain cache contract.
// Satisfied by *cache.RedisCache.
type GeoCache interface {
	CacheService
	GeoAdd(ctx context.Context, key string, geoLocation *redis.GeoLocation) error
}

// LocationService ingests position fixes, keeps the latest sample per
// user in a short-TTL cache, and fans updates out to dispatch and
// emergency groups only. Standard groups never see location.
type LocationService struct {
	locations   interfaces.LocationRepository
	membership  *MembershipService
	broadcaster Broadcaster
	cache       GeoCache
	log         *logger.Logger
}

func NewLocationService(
	locations interfaces.LocationRepository,
	membership *MembershipService,
	broadcaster Broadcaster,
	cache GeoCache,
	log *logger.Logger,
) *LocationService {
	return &LocationService{
		locations:   locations,
		membership:  membership,
		broadcaster: broadcaster,
		cache:       cache,
		log:         log,
	}
}

// Update records a sample and relays it to the user's dispatch and
// emergency groups. The history write is the durable record; the cache
// is a convenience superseded by every new sample.
func (s *LocationService) Update(ctx context.Context, userID primitive.ObjectID, upd *events.LocationUpdate) (*models.LocationSample, error) {
	sample := &models.LocationSample{
		UserID:    userID,
		Latitude:  *upd.Latitude,
		Longitude: *upd.Longitude,
		Accuracy:  upd.Accuracy,
		Altitude:  upd.Altitude,
		Speed:     upd.Speed,
		Heading:   upd.Heading,
		Source:    upd.Source,
		Timestamp: time.Now(),
	}

	if err := s.locations.Create(ctx, sample); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, utils.CacheLocationPrefix+userID.Hex(), sample, utils.LocationCacheTTL); err != nil {
			s.log.WithUserID(userID).WithError(err).Debug("Location cache write failed")
		}
		if err := s.cache.GeoAdd(ctx, utils.CacheGeoIndexKey, &redis.GeoLocation{
			Name:      userID.Hex(),
			Longitude: sample.Longitude,
			Latitude:  sample.Latitude,
		}); err != nil {
			s.log.WithUserID(userID).WithError(err).Debug("Geo index write failed")
		}
	}

	memberships, err := s.membership.Memberships(ctx, userID)
	if err != nil {
		s.log.WithUserID(userID).WithError(err).Warn("Location fan-out membership lookup failed")
		return sample, nil
	}

	env := events.NewEnvelope(events.TypeLocationUpdate, userID.Hex(), map[string]interface{}{
		"user_id":  userID.Hex(),
		"location": sample,
	})
	for _, m := range memberships {
		if m.Kind.ReceivesLocation() {
			s.broadcaster.SendToGroup(m.GroupID, env)
		}
	}

	return sample, nil
}

// Latest returns the freshest known sample for one user, cache first,
// Store on a miss. Returns nil when the user has never reported.
func (s *LocationService) Latest(ctx context.Context, userID primitive.ObjectID) (*models.LocationSample, error) {
	if s.cache != nil {
		var cached models.LocationSample
		if err := s.cache.Get(ctx, utils.CacheLocationPrefix+userID.Hex(), &cached); err == nil {
			return &cached, nil
		}
	}

	sample, err := s.locations.GetLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrDependencyFailure, err)
	}
	return sample, nil
}

// Request resolves latest locations for a set of users or a whole
// group. Users with no known position are omitted, not errors.
func (s *LocationService) Request(ctx context.Context, requesterID primitive.ObjectID, req *events.LocationRequest) ([]*models.LocationSample, error) {
	var targets []primitive.ObjectID

	if req.GroupID != "" {
		groupID, err := primitive.ObjectIDFromHex(req.GroupID)
		if err != nil {
			return nil, ErrInvalidRequest
		}
		member, err := s.membership.MembershipFor(ctx, requesterID, groupID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, ErrPermissionDenied
		}
		members, err := s.membership.groups.GetMembers(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDependencyFailure, err)
		}
		for _, m := range members {
			targets = append(targets, m.UserID)
		}
	} else {
		for _, raw := range req.UserIDs {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				continue
			}
			targets = append(targets, id)
		}
	}

	samples := make([]*models.LocationSample, 0, len(targets))
	for _, target := range targets {
		sample, err := s.Latest(ctx, target)
		if err != nil {
			s.log.WithUserID(target).WithError(err).Debug("Location lookup failed")
			continue
		}
		if sample != nil {
			samples = append(samples, sample)
		}
	}

	return samples, nil
}
