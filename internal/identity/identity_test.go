package identity

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func tokens() *TokenService {
	return &TokenService{Secret: []byte("test-secret"), Issuer: "storygate", Duration: time.Hour}
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFrom(context.Background())
	require.False(t, ok)

	id, ok := CallerFrom(WithCaller(context.Background(), "alice"))
	require.True(t, ok)
	require.Equal(t, "alice", id)
}

func TestResolveHeader(t *testing.T) {
	r := Resolver{Header: "X-User-ID"}
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-ID", " alice ")

	id, err := r.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, "alice", id)
}

func TestResolveAnonymous(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)

	id, err := Resolver{Header: "X-User-ID", AllowAnonymous: true}.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, Anonymous, id)

	_, err = Resolver{Header: "X-User-ID"}.Resolve(req)
	require.ErrorIs(t, err, ErrNoCaller)
}

func TestResolveBearerWinsOverHeader(t *testing.T) {
	ts := tokens()
	tok, _, err := ts.Sign("u-42")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-User-ID", "spoofed")

	id, err := Resolver{Header: "X-User-ID", Tokens: ts}.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, "u-42", id)
}

func TestResolveIgnoresHeaderWhenTokensConfigured(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-ID", "alice")

	_, err := Resolver{Header: "X-User-ID", Tokens: tokens()}.Resolve(req)
	require.ErrorIs(t, err, ErrNoCaller)

	id, err := Resolver{Header: "X-User-ID", Tokens: tokens(), AllowAnonymous: true}.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, Anonymous, id)
}

func TestResolveRejectsBadToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	_, err := Resolver{Tokens: tokens(), AllowAnonymous: true}.Resolve(req)
	require.Error(t, err)
}

func TestParseSubjectFallback(t *testing.T) {
	ts := tokens()
	claims := jwt.RegisteredClaims{
		Issuer:    "storygate",
		Subject:   "sub-only",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.Secret)
	require.NoError(t, err)

	got, err := ts.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "sub-only", got.CallerID())
}

func TestParseRejects(t *testing.T) {
	ts := tokens()

	expired := TokenService{Secret: ts.Secret, Issuer: ts.Issuer, Duration: -time.Minute}
	raw, _, err := expired.Sign("alice")
	require.NoError(t, err)
	_, err = ts.Parse(raw)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired), "got %v", err)

	other := TokenService{Secret: []byte("other"), Issuer: ts.Issuer, Duration: time.Minute}
	raw, _, err = other.Sign("alice")
	require.NoError(t, err)
	_, err = ts.Parse(raw)
	require.Error(t, err)

	wrongIssuer := TokenService{Secret: ts.Secret, Issuer: "elsewhere", Duration: time.Minute}
	raw, _, err = wrongIssuer.Sign("alice")
	require.NoError(t, err)
	_, err = ts.Parse(raw)
	require.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ts.Parse(none)
	require.Error(t, err)
}
