package services

import (
	"context"
	"testing"
	"time"

	"eventsphere/internal/core/domain"
	apperrors "eventsphere/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestAuth(t *testing.T, opts ...AuthOption) AuthService {
	t.Helper()
	auth, err := NewAuthService(testSecret, opts...)
	require.NoError(t, err)
	return auth
}

func signClaims(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func signalCode(t *testing.T, err error) apperrors.Code {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperrors.IsSignal(err), "expected a signal, got %v", err)
	return apperrors.From(err).Code
}

func TestNewAuthService_RequiresSecret(t *testing.T) {
	_, err := NewAuthService("")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestAuthenticate_Success(t *testing.T) {
	auth := newTestAuth(t)
	token, err := auth.GenerateToken(domain.Identity{ID: "u1", Role: domain.RoleOrganizer}, time.Minute)
	require.NoError(t, err)

	identity, err := auth.Authenticate(context.Background(), domain.Handshake{Token: token})
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: "u1", Role: domain.RoleOrganizer}, identity)
}

func TestAuthenticate_MissingToken(t *testing.T) {
	auth := newTestAuth(t)

	for _, token := range []string{"", "   "} {
		_, err := auth.Authenticate(context.Background(), domain.Handshake{Token: token})
		assert.Equal(t, apperrors.CodeAuthRequired, signalCode(t, err))
	}
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	auth := newTestAuth(t)
	now := time.Now()

	valid := func() Claims {
		return Claims{
			ID:   "u1",
			Role: "USER",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	noSubject := valid()
	noSubject.ID = ""

	badRole := valid()
	badRole.Role = "ROOT"

	notYet := valid()
	notYet.NotBefore = jwt.NewNumericDate(now.Add(time.Hour))

	cases := map[string]string{
		"wrong secret":     signClaims(t, "other", jwt.SigningMethodHS256, valid()),
		"wrong algorithm":  signClaims(t, testSecret, jwt.SigningMethodHS512, valid()),
		"expired":          signClaims(t, testSecret, jwt.SigningMethodHS256, expired),
		"no expiry":        signClaims(t, testSecret, jwt.SigningMethodHS256, noExpiry),
		"no subject":       signClaims(t, testSecret, jwt.SigningMethodHS256, noSubject),
		"unknown role":     signClaims(t, testSecret, jwt.SigningMethodHS256, badRole),
		"not yet valid":    signClaims(t, testSecret, jwt.SigningMethodHS256, notYet),
		"garbage":          "not-a-jwt",
		"truncated":        signClaims(t, testSecret, jwt.SigningMethodHS256, valid())[:20],
		"alg none":         "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJpZCI6InUxIn0.",
		"tampered payload": tamper(signClaims(t, testSecret, jwt.SigningMethodHS256, valid())),
	}

	var messages []string
	for name, token := range cases {
		_, err := auth.Authenticate(context.Background(), domain.Handshake{Token: token})
		assert.Equal(t, apperrors.CodeAuthFailed, signalCode(t, err), name)
		messages = append(messages, apperrors.From(err).Message)
	}

	for _, msg := range messages {
		assert.Equal(t, messages[0], msg, "auth failure messages must be identical")
	}
}

func TestAuthenticate_SubFallbackAndDefaultRole(t *testing.T) {
	auth := newTestAuth(t)
	token := signClaims(t, testSecret, jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := auth.Authenticate(context.Background(), domain.Handshake{Token: token})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u7"), identity.ID)
	assert.Equal(t, domain.RoleUser, identity.Role)
}

func TestAuthenticate_LowercaseRoleNormalized(t *testing.T) {
	auth := newTestAuth(t)
	token := signClaims(t, testSecret, jwt.SigningMethodHS256, Claims{
		ID:   "a1",
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := auth.Authenticate(context.Background(), domain.Handshake{Token: token})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, identity.Role)
}

func TestAuthenticate_WithoutExpiryRequirement(t *testing.T) {
	auth := newTestAuth(t, WithoutExpiryRequirement())
	token := signClaims(t, testSecret, jwt.SigningMethodHS256, Claims{ID: "u1"})

	identity, err := auth.Authenticate(context.Background(), domain.Handshake{Token: token})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), identity.ID)
}

func TestAuthenticate_ExpiryUsesClock(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issuedAt
	auth := newTestAuth(t, WithClock(func() time.Time { return clock }))

	token, err := auth.GenerateToken(domain.Identity{ID: "u1", Role: domain.RoleUser}, time.Minute)
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), domain.Handshake{Token: token})
	require.NoError(t, err)

	clock = issuedAt.Add(2 * time.Minute)
	_, err = auth.Authenticate(context.Background(), domain.Handshake{Token: token})
	assert.Equal(t, apperrors.CodeAuthFailed, signalCode(t, err))
}

func tamper(token string) string {
	b := []byte(token)
	// flip a character in the payload segment
	for i := len(b) / 2; i < len(b); i++ {
		if b[i] != '.' {
			if b[i] == 'A' {
				b[i] = 'B'
			} else {
				b[i] = 'A'
			}
			break
		}
	}
	return string(b)
}
