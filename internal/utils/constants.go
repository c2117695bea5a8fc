package utils

import "time"

// Application Constants
const (
	AppName    = "FieldLink"
	AppVersion = "1.0.0"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL  = 24 * time.Hour
	JWTRefreshTokenTTL = 7 * 24 * time.Hour

	// Floor control
	FloorSessionCacheTTL = time.Hour
	FloorInactivityLimit = 30 * time.Second
	MaxMessageLength     = 1000

	// Location
	LocationCacheTTL       = 5 * time.Minute
	LocationHistoryDefault = 100

	// Emergency
	ActiveAlertCacheTTL = time.Hour
	MembershipCacheTTL  = time.Minute
	PresenceCacheTTL    = 2 * time.Minute

	// Notification
	NotificationRetryAttempts = 3
	NotificationTimeout       = 30 * time.Second
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusFailed  = "failed"
)

// Error Messages
const (
	ErrInvalidCredentials = "invalid credentials"
	ErrUserNotFound       = "user not found"
	ErrInvalidToken       = "invalid token"
	ErrTokenExpired       = "token expired"
	ErrInvalidInput       = "invalid input"
	ErrInternalServer     = "internal server error"
	ErrUnauthorized       = "unauthorized"
	ErrForbidden          = "forbidden"
	ErrNotFound           = "not found"
	ErrConflict           = "conflict"
	ErrValidationFailed   = "validation failed"
	ErrGroupNotFound      = "group not found"
	ErrAlertNotFound      = "alert not found"
	ErrSessionNotFound    = "session not found"
)

// Cache Keys
const (
	CacheUserPrefix       = "user:"
	CacheLocationPrefix   = "location:"
	CacheFloorPrefix      = "ptt:group:"
	CacheEmergencyPrefix  = "emergency:"
	CacheMembershipPrefix = "membership:"
	CachePresencePrefix   = "presence:"
	CacheGeoIndexKey      = "geo:latest"
)
