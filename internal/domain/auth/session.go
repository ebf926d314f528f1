package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"rigshare/internal/domain/user"
)

var (
	ErrTokenRequired   = errors.New("auth: token is required")
	ErrUserRequired    = errors.New("auth: user is required")
	ErrTTLInvalid      = errors.New("auth: ttl must be positive")
	ErrSessionNotFound = errors.New("auth: session not found")
)

// Token is an opaque bearer credential. Only its holder and the session
// store ever see it.
type Token string

// Session binds a bearer token to a user for a fixed lifetime. Roles are
// copied at login so a role change takes effect on the next login.
type Session struct {
	Token     Token       `json:"token"`
	UserID    user.ID     `json:"user_id"`
	Roles     []user.Role `json:"roles"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type CreateSessionParams struct {
	Token  Token
	UserID user.ID
	Roles  []user.Role
	TTL    time.Duration
	Now    time.Time
}

func NewSession(p CreateSessionParams) (*Session, error) {
	token := Token(strings.TrimSpace(string(p.Token)))
	switch {
	case token == "":
		return nil, ErrTokenRequired
	case strings.TrimSpace(string(p.UserID)) == "":
		return nil, ErrUserRequired
	case p.TTL <= 0:
		return nil, ErrTTLInvalid
	}
	now := p.Now.UTC()
	return &Session{
		Token:     token,
		UserID:    p.UserID,
		Roles:     slices.Clone(p.Roles),
		CreatedAt: now,
		ExpiresAt: now.Add(p.TTL),
	}, nil
}

func (s *Session) Expired(at time.Time) bool {
	return !s.ExpiresAt.After(at.UTC())
}

// Remaining is the lifetime left at the given instant, never negative.
func (s *Session) Remaining(at time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(at.UTC()); d > 0 {
		return d
	}
	return 0
}

// SessionStore persists sessions. Get returns ErrSessionNotFound for
// unknown and expired tokens alike.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, token Token) (*Session, error)
	Delete(ctx context.Context, token Token) error
	DeleteByUser(ctx context.Context, userID user.ID) error
}
