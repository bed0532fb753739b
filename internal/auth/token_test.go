package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testKey = "a-test-signing-key-that-is-long-enough"

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(testKey, time.Hour, time.Minute, opts...)
	require.NoError(t, err)
	return svc
}

var candidate = Identity{ID: 7, Email: "ada@example.com", Role: "candidate"}

func TestIssueAndVerify(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)

	for _, issue := range []func(Identity) (Token, error){svc.IssueAccessToken, svc.IssueSocketToken} {
		token, err := issue(candidate)
		req.NoError(err)
		req.NotEmpty(token.Value)
		req.True(token.ExpiresAt.After(time.Now()))

		id, err := svc.Verify(token.Value)
		req.NoError(err)
		req.Equal(candidate, id)
	}
}

// TestSocketTokenIsShortLived verifies that the socket token expires before
// the access token issued at the same instant.
func TestSocketTokenIsShortLived(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)

	access, err := svc.IssueAccessToken(candidate)
	req.NoError(err)
	socket, err := svc.IssueSocketToken(candidate)
	req.NoError(err)

	req.True(socket.ExpiresAt.Before(access.ExpiresAt))
}

func TestIssueRequiresUser(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.IssueSocketToken(Identity{Email: "nobody@example.com"})
	require.ErrorIs(t, err, ErrTokenGeneration)
}

func TestVerifyRejects(t *testing.T) {
	svc := newTestService(t)

	expiredSvc := newTestService(t, WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	expired, err := expiredSvc.IssueSocketToken(candidate)
	require.NoError(t, err)

	otherSvc, err := NewService("some-other-key", time.Hour, time.Minute)
	require.NoError(t, err)
	foreign, err := otherSvc.IssueSocketToken(candidate)
	require.NoError(t, err)

	valid, err := svc.IssueSocketToken(candidate)
	require.NoError(t, err)
	parts := strings.Split(valid.Value, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID:  candidate.ID,
		Purpose: PurposeSocket,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    issuer,
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           candidate.ID,
		Purpose:          PurposeSocket,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	unknownPurpose, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:  candidate.ID,
		Purpose: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    issuer,
		},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired.Value},
		{"signed with another key", foreign.Value},
		{"tampered payload", tampered},
		{"alg none", noneToken},
		{"missing expiry", noExpiry},
		{"unknown purpose", unknownPurpose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.Verify(tt.token)
			require.ErrorIs(t, err, ErrUnauthenticated)
			require.Zero(t, id)
		})
	}
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService("", time.Hour, time.Minute)
	require.Error(t, err)
	_, err = NewService(testKey, 0, time.Minute)
	require.Error(t, err)
	_, err = NewService(testKey, time.Hour, -time.Minute)
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer  abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		require.Equal(t, tt.want, BearerToken(r), "header %q", tt.header)
	}
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)
	token, err := svc.IssueAccessToken(candidate)
	req.NoError(err)

	var seen Identity
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, r)
	req.Equal(http.StatusUnauthorized, rr.Code)

	r = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set("Authorization", "Bearer "+token.Value)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, r)
	req.Equal(http.StatusNoContent, rr.Code)
	req.Equal(candidate, seen)
}
