package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fieldlink/internal/repositories/interfaces"
	"fieldlink/internal/utils"
	"fieldlink/pkg/logger"
)

// ConnectionIdentity is what a verified token yields: who the
// connection is and which group rooms it should join.
type ConnectionIdentity struct {
	UserID   primitive.ObjectID
	DeviceID string
	Role     string
	Username string
	GroupIDs []primitive.ObjectID
}

// AuthService verifies connection tokens. Credential issuance happens
// elsewhere; this only turns a token into a verified identity plus the
// membership snapshot taken at connect time.
type AuthService struct {
	users      interfaces.UserRepository
	membership *MembershipService
	jwtSecret  string
	log        *logger.Logger
}

func NewAuthService(users interfaces.UserRepository, membership *MembershipService, jwtSecret string, log *logger.Logger) *AuthService {
	return &AuthService{
		users:      users,
		membership: membership,
		jwtSecret:  jwtSecret,
		log:        log,
	}
}

// Authenticate validates the token and loads the user's memberships.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*ConnectionIdentity, error) {
	claims, err := utils.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !user.IsActive {
		return nil, ErrPermissionDenied
	}

	groupIDs, err := s.membership.GroupIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &ConnectionIdentity{
		UserID:   user.ID,
		DeviceID: claims.DeviceID,
		Role:     string(user.Role),
		Username: user.Username,
		GroupIDs: groupIDs,
	}, nil
}

// IssueTokens mints a token pair for a user, used by the HTTP surface.
func (s *AuthService) IssueTokens(ctx context.Context, userID primitive.ObjectID, deviceID string) (*utils.TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return utils.GenerateTokenPair(user.ID, deviceID, string(user.Role), user.Username, s.jwtSecret)
}
