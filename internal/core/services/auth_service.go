package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventsphere/internal/core/domain"
	apperrors "eventsphere/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret  = errors.New("jwt secret must not be empty")
	ErrMissingSubject = errors.New("token has no subject")
	ErrUnknownRole    = errors.New("token carries an unknown role")
)

// Claims is what the token issuer signs. The subject is read from "id",
// falling back to the registered "sub" claim.
type Claims struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Authenticate(ctx context.Context, handshake domain.Handshake) (domain.Identity, error)
	GenerateToken(identity domain.Identity, ttl time.Duration) (string, error)
}

type AuthOption func(*authService)

// WithoutExpiryRequirement accepts tokens that carry no exp claim.
// Tokens that do carry one are still checked.
func WithoutExpiryRequirement() AuthOption {
	return func(s *authService) { s.requireExpiry = false }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) AuthOption {
	return func(s *authService) { s.now = now }
}

type authService struct {
	jwtSecret     []byte
	requireExpiry bool
	now           func() time.Time
}

// NewAuthService fails fast when secret is empty.
func NewAuthService(jwtSecret string, opts ...AuthOption) (AuthService, error) {
	if jwtSecret == "" {
		return nil, ErrMissingSecret
	}
	s := &authService{
		jwtSecret:     []byte(jwtSecret),
		requireExpiry: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate verifies the handshake token. Every verification failure
// yields the same AUTH_FAILED signal; the cause stays server side.
func (s *authService) Authenticate(_ context.Context, handshake domain.Handshake) (domain.Identity, error) {
	token := strings.TrimSpace(handshake.Token)
	if token == "" {
		return domain.Identity{}, apperrors.AuthRequired()
	}

	claims, err := s.parse(token)
	if err != nil {
		return domain.Identity{}, apperrors.AuthFailed(err)
	}

	subject := claims.ID
	if subject == "" {
		subject = claims.Subject
	}
	if strings.TrimSpace(subject) == "" {
		return domain.Identity{}, apperrors.AuthFailed(ErrMissingSubject)
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Identity{}, apperrors.AuthFailed(fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role))
	}

	return domain.Identity{ID: domain.UserID(subject), Role: role}, nil
}

func (s *authService) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.requireExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// GenerateToken signs a token the way the API issues them. Used by tests and local tooling.
func (s *authService) GenerateToken(identity domain.Identity, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		ID:   string(identity.ID),
		Role: string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
