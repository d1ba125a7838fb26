package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"zedflip/internal/domain/user"
)

var (
	ErrTokenRequired   = errors.New("auth: token is required")
	ErrTokenInvalid    = errors.New("auth: token is invalid")
	ErrUserRequired    = errors.New("auth: user is required")
	ErrTTLInvalid      = errors.New("auth: ttl must be positive")
	ErrSessionNotFound = errors.New("auth: session not found")
	ErrSessionExpired  = errors.New("auth: session expired")
)

// SessionID is the token identifier (JWT "jti") a session is tracked by.
type SessionID string

type Session struct {
	ID        SessionID
	UserID    user.ID
	Roles     []user.Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

type CreateSessionParams struct {
	ID     SessionID
	UserID user.ID
	Roles  []user.Role
	TTL    time.Duration
	Now    time.Time
}

func NewSession(params CreateSessionParams) (*Session, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrTokenRequired
	}
	if strings.TrimSpace(string(params.UserID)) == "" {
		return nil, ErrUserRequired
	}
	if params.TTL <= 0 {
		return nil, ErrTTLInvalid
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Session{
		ID:        SessionID(id),
		UserID:    params.UserID,
		Roles:     append([]user.Role(nil), params.Roles...),
		CreatedAt: now,
		ExpiresAt: now.Add(params.TTL),
	}, nil
}

func (s *Session) Expired(at time.Time) bool {
	if at.IsZero() {
		at = time.Now()
	}
	return !s.ExpiresAt.After(at.UTC())
}

// Claims is what a signed access token carries once verified.
type Claims struct {
	SessionID SessionID
	UserID    user.ID
	Roles     []user.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies access tokens.
type TokenIssuer interface {
	Issue(claims Claims) (string, error)
	Verify(token string) (Claims, error)
}

type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id SessionID) (*Session, error)
	Delete(ctx context.Context, id SessionID) error
	DeleteByUser(ctx context.Context, userID user.ID) error
}
