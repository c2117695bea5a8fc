package services

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/config"
	"fieldlink/internal/events"
	"fieldlink/internal/models"
	"fieldlink/internal/repositories/interfaces"
	"fieldlink/pkg/logger"
)

// End reasons recorded on a floor session.
const (
	EndReasonReleased     = "released"
	EndReasonDisconnected = "holder_disconnected"
	EndReasonInactivity   = "inactivity_timeout"
	EndReasonForced       = "forced"
)

// groupFloor is the per-group arbitration state. Its mutex serializes
// request/release/forceRelease for one group; different groups proceed
// in parallel.
type groupFloor struct {
	mu         sync.Mutex
	session    *models.PTTSession
	lastFrame  time.Time
	inactivity *time.Timer
}

// FloorService is the half-duplex floor arbiter. At most one active
// session exists per group; concurrent requests for the same group are
// first come, first served, the rest denied.
type FloorService struct {
	mu             sync.Mutex
	floors         map[primitive.ObjectID]*groupFloor
	sessionToGroup map[primitive.ObjectID]primitive.ObjectID

	sessions    interfaces.PTTSessionRepository
	membership  *MembershipService
	presence    *PresenceService
	broadcaster Broadcaster
	cfg         *config.FloorConfig
	log         *logger.Logger
}

func NewFloorService(
	sessions interfaces.PTTSessionRepository,
	membership *MembershipService,
	presence *PresenceService,
	broadcaster Broadcaster,
	cfg *config.FloorConfig,
	log *logger.Logger,
) *FloorService {
	return &FloorService{
		floors:         make(map[primitive.ObjectID]*groupFloor),
		sessionToGroup: make(map[primitive.ObjectID]primitive.ObjectID),
		sessions:       sessions,
		membership:     membership,
		presence:       presence,
		broadcaster:    broadcaster,
		cfg:            cfg,
		log:            log,
	}
}

func (s *FloorService) floorFor(groupID primitive.ObjectID) *groupFloor {
	s.mu.Lock()
	defer s.mu.Unlock()

	floor, ok := s.floors[groupID]
	if !ok {
		floor = &groupFloor{}
		s.floors[groupID] = floor
	}
	return floor
}

// Request asks for the floor on a group. Returns the granted session or
// ErrPermissionDenied / ErrGroupBusy / ErrDependencyFailure.
func (s *FloorService) Request(ctx context.Context, userID, groupID primitive.ObjectID, sessionType models.SessionType) (*models.PTTSession, error) {
	member, err := s.membership.MembershipFor(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.Permission.CanTransmit() {
		return nil, ErrPermissionDenied
	}

	if sessionType == "" {
		sessionType = models.SessionTypeVoice
	}

	floor := s.floorFor(groupID)
	floor.mu.Lock()

	if floor.session != nil {
		floor.mu.Unlock()
		return nil, ErrGroupBusy
	}

	session := &models.PTTSession{
		ID:          primitive.NewObjectID(),
		GroupID:     groupID,
		CallerID:    userID,
		SessionType: sessionType,
		IsActive:    true,
		StartTime:   time.Now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		floor.mu.Unlock()
		s.log.LogFloorEvent(groupID, "grant_failed", map[string]interface{}{"error": err.Error()})
		return nil, ErrDependencyFailure
	}

	floor.session = session
	floor.lastFrame = session.StartTime
	if s.cfg.EnableInactivity {
		floor.inactivity = time.AfterFunc(s.cfg.InactivityTimeout, func() {
			s.checkInactivity(groupID, session.ID)
		})
	}
	floor.mu.Unlock()

	s.mu.Lock()
	s.sessionToGroup[session.ID] = groupID
	s.mu.Unlock()

	s.presence.SetStatus(ctx, userID, models.StatusInCall)

	s.broadcaster.SendToGroup(groupID, events.NewEnvelope(events.TypePTTStarted, userID.Hex(), map[string]interface{}{
		"session_id":   session.ID.Hex(),
		"group_id":     groupID.Hex(),
		"caller_id":    userID.Hex(),
		"session_type": session.SessionType,
	}))

	s.log.LogFloorEvent(groupID, "granted", map[string]interface{}{
		"session_id": session.ID.Hex(),
		"caller_id":  userID.Hex(),
	})

	return session, nil
}

// Release gives the floor back. Only the holder may release; a second
// release of the same session returns ErrNotFound rather than emitting
// a duplicate broadcast.
func (s *FloorService) Release(ctx context.Context, userID, sessionID primitive.ObjectID) (*models.PTTSession, error) {
	s.mu.Lock()
	groupID, ok := s.sessionToGroup[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	floor := s.floorFor(groupID)
	floor.mu.Lock()

	if floor.session == nil || floor.session.ID != sessionID {
		floor.mu.Unlock()
		return nil, interfaces.ErrNotFound
	}
	if floor.session.CallerID != userID {
		floor.mu.Unlock()
		return nil, ErrPermissionDenied
	}

	session := s.endLocked(ctx, floor, EndReasonReleased)
	floor.mu.Unlock()

	s.presence.SetStatus(ctx, userID, models.StatusOnline)

	s.broadcaster.SendToGroup(groupID, events.NewEnvelope(events.TypePTTEnded, userID.Hex(), map[string]interface{}{
		"session_id": session.ID.Hex(),
		"group_id":   groupID.Hex(),
		"duration":   session.Duration,
	}))

	s.log.LogFloorEvent(groupID, "released", map[string]interface{}{
		"session_id": session.ID.Hex(),
		"duration":   session.Duration,
	})

	return session, nil
}

// ForceRelease revokes the floor regardless of the holder. Used by the
// disconnect hook and the inactivity timer; receivers get
// ptt_force_ended so they can tell abnormal termination from a release.
func (s *FloorService) ForceRelease(ctx context.Context, groupID primitive.ObjectID, reason string) {
	floor := s.floorFor(groupID)
	floor.mu.Lock()

	if floor.session == nil {
		floor.mu.Unlock()
		return
	}

	holder := floor.session.CallerID
	session := s.endLocked(ctx, floor, reason)
	floor.mu.Unlock()

	s.presence.SetStatus(ctx, holder, models.StatusOnline)

	s.broadcaster.SendToGroup(groupID, events.NewEnvelope(events.TypePTTForceEnded, holder.Hex(), map[string]interface{}{
		"session_id": session.ID.Hex(),
		"group_id":   groupID.Hex(),
		"duration":   session.Duration,
		"reason":     reason,
	}))

	s.log.LogFloorEvent(groupID, "force_released", map[string]interface{}{
		"session_id": session.ID.Hex(),
		"reason":     reason,
	})
}

// endLocked stamps the session end and persists it. Caller holds the
// group lock. In-memory state is cleared even when the Store write
// fails; a jammed floor is worse than a lost history row.
func (s *FloorService) endLocked(ctx context.Context, floor *groupFloor, reason string) *models.PTTSession {
	session := floor.session
	now := time.Now()
	end := now
	session.IsActive = false
	session.EndTime = &end
	session.EndReason = reason
	session.Duration = int(now.Sub(session.StartTime).Seconds())

	if floor.inactivity != nil {
		floor.inactivity.Stop()
		floor.inactivity = nil
	}
	floor.session = nil

	s.mu.Lock()
	delete(s.sessionToGroup, session.ID)
	s.mu.Unlock()

	if err := s.sessions.EndSession(ctx, session.ID, reason, session.Duration); err != nil {
		s.log.WithSessionID(session.ID).WithError(err).Error("Failed to persist session end")
	}

	return session
}

// RelayAudio forwards a frame from the holder to the rest of the group.
// Frames from anyone but the current holder are silently dropped; the
// relay authorizes origin and never inspects payload content.
func (s *FloorService) RelayAudio(ctx context.Context, userID primitive.ObjectID, frame *events.PTTAudioData) {
	sessionID, err := primitive.ObjectIDFromHex(frame.SessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	groupID, ok := s.sessionToGroup[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	floor := s.floorFor(groupID)
	floor.mu.Lock()
	if floor.session == nil || floor.session.ID != sessionID || floor.session.CallerID != userID {
		floor.mu.Unlock()
		return
	}
	floor.lastFrame = time.Now()
	floor.mu.Unlock()

	s.broadcaster.SendToGroupExcept(groupID, userID, events.NewEnvelope(events.TypePTTAudio, userID.Hex(), map[string]interface{}{
		"session_id":      frame.SessionID,
		"audio_data":      frame.AudioData,
		"sequence_number": frame.SequenceNumber,
		"sender_id":       userID.Hex(),
	}))
}

// checkInactivity fires after the configured quiet period and force
// releases the floor if the holder has gone silent. Rearms itself when
// frames arrived since scheduling.
func (s *FloorService) checkInactivity(groupID, sessionID primitive.ObjectID) {
	floor := s.floorFor(groupID)
	floor.mu.Lock()

	if floor.session == nil || floor.session.ID != sessionID {
		floor.mu.Unlock()
		return
	}

	quiet := time.Since(floor.lastFrame)
	if quiet < s.cfg.InactivityTimeout {
		floor.inactivity = time.AfterFunc(s.cfg.InactivityTimeout-quiet, func() {
			s.checkInactivity(groupID, sessionID)
		})
		floor.mu.Unlock()
		return
	}
	floor.mu.Unlock()

	s.ForceRelease(context.Background(), groupID, EndReasonInactivity)
}

// ActiveSession reports the current holder of a group's floor, if any.
func (s *FloorService) ActiveSession(groupID primitive.ObjectID) *models.PTTSession {
	floor := s.floorFor(groupID)
	floor.mu.Lock()
	defer floor.mu.Unlock()
	return floor.session
}

// HandleDisconnect force releases every floor the departed user held.
// Registered as a connection registry hook at startup.
func (s *FloorService) HandleDisconnect(userID primitive.ObjectID, connectionID string) {
	s.mu.Lock()
	groups := make([]primitive.ObjectID, 0, len(s.sessionToGroup))
	for _, groupID := range s.sessionToGroup {
		groups = append(groups, groupID)
	}
	s.mu.Unlock()

	for _, groupID := range groups {
		floor := s.floorFor(groupID)
		floor.mu.Lock()
		held := floor.session != nil && floor.session.CallerID == userID
		floor.mu.Unlock()
		if held {
			s.ForceRelease(context.Background(), groupID, EndReasonDisconnected)
		}
	}
}
