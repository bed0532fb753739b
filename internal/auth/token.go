// Package auth mints and verifies the signed credentials used by the HTTP API
// and by WebSocket upgrades. Tokens are stateless: expiry is the only way a
// token stops being valid.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "jobchat"

var (
	// ErrUnauthenticated is returned for any token that is missing, malformed,
	// expired, or not signed with the active key.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTokenGeneration is returned when a token cannot be signed.
	ErrTokenGeneration = errors.New("token generation failed")
)

// Purpose distinguishes the long-lived login token from the short-lived
// token handed out for socket upgrades.
type Purpose string

const (
	PurposeAccess Purpose = "access"
	PurposeSocket Purpose = "socket"
)

// Identity is the user a verified token resolves to.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Claims defines the data stored inside the JWT.
type Claims struct {
	UserID  int64   `json:"userId"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Token is a signed credential together with its expiry.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service issues and verifies tokens with a single HMAC key.
type Service struct {
	key       []byte
	accessTTL time.Duration
	socketTTL time.Duration
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp issued tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service signing with key. Both TTLs must be positive.
func NewService(key string, accessTTL, socketTTL time.Duration, opts ...Option) (*Service, error) {
	if key == "" {
		return nil, errors.New("signing key is required")
	}
	if accessTTL <= 0 || socketTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	s := &Service{
		key:       []byte(key),
		accessTTL: accessTTL,
		socketTTL: socketTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessToken mints the long-lived login token.
func (s *Service) IssueAccessToken(id Identity) (Token, error) {
	return s.issue(id, PurposeAccess, s.accessTTL)
}

// IssueSocketToken mints the short-lived token a client presents when it
// opens its socket.
func (s *Service) IssueSocketToken(id Identity) (Token, error) {
	return s.issue(id, PurposeSocket, s.socketTTL)
}

func (s *Service) issue(id Identity, purpose Purpose, ttl time.Duration) (Token, error) {
	if id.ID <= 0 {
		return Token{}, fmt.Errorf("%w: user id is required", ErrTokenGeneration)
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		UserID:  id.ID,
		Email:   id.Email,
		Role:    id.Role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}, nil
}

// Verify parses tokenString and resolves it to an Identity. Any failure is
// reported as ErrUnauthenticated.
func (s *Service) Verify(tokenString string) (Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: token is missing", ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: token carries no user", ErrUnauthenticated)
	}
	switch claims.Purpose {
	case PurposeAccess, PurposeSocket:
	default:
		return nil, fmt.Errorf("%w: unknown token purpose %q", ErrUnauthenticated, claims.Purpose)
	}
	return claims, nil
}
