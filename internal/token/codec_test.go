package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
)

func newTestCodec(t *testing.T, opts Options) *Codec {
	t.Helper()

	c, err := New(testAccessSecret, testRefreshSecret, opts)
	require.NoError(t, err)

	return c
}

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "user@example.com"}
}

func TestNew_Secrets(t *testing.T) {
	t.Parallel()

	_, err := New("", "r", Options{})
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = New("a", "", Options{})
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = New("same", "same", Options{})
	require.ErrorIs(t, err, ErrSameSecret)

	c, err := New("a", "r", Options{})
	require.NoError(t, err)
	require.Equal(t, DefaultAccessTTL, c.AccessTTL())
	require.Equal(t, DefaultRefreshTTL, c.RefreshTTL())
}

func TestIssue_Lifetimes(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, Options{Issuer: "goal-tracker", Audience: "goal-tracker-app"})
	user := testUser()
	sid := uuid.New()

	pair, err := c.Issue(user, sid)
	require.NoError(t, err)
	require.Equal(t, int64(900), pair.ExpiresIn)

	access, ok := c.VerifyAccess(pair.AccessToken)
	require.True(t, ok)
	require.Equal(t, user.ID, access.UserID)
	require.Equal(t, user.Email, access.Email)
	require.Equal(t, sid, access.SessionID)
	require.Equal(t, int64(900), access.ExpiresAt.Unix()-access.IssuedAt.Unix())

	refresh, ok := c.VerifyRefresh(pair.RefreshToken)
	require.True(t, ok)
	require.Equal(t, sid, refresh.SessionID)
	require.Equal(t, user.ID, refresh.UserID)
	require.Equal(t, int64(2_592_000), refresh.ExpiresAt.Unix()-refresh.IssuedAt.Unix())
}

func TestIssue_Deterministic(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(t, Options{Now: func() time.Time { return fixed }})
	user := testUser()
	sid := uuid.New()

	p1, err := c.Issue(user, sid)
	require.NoError(t, err)
	p2, err := c.Issue(user, sid)
	require.NoError(t, err)

	require.Equal(t, p1, p2)
}

func TestVerify_FailsClosed(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, Options{})
	pair, err := c.Issue(testUser(), uuid.New())
	require.NoError(t, err)

	other, err := New("another-access", "another-refresh", Options{})
	require.NoError(t, err)

	past := time.Now().Add(-31 * 24 * time.Hour)
	stale := newTestCodec(t, Options{Now: func() time.Time { return past }})
	expired, err := stale.Issue(testUser(), uuid.New())
	require.NoError(t, err)

	tests := []struct {
		name    string
		access  string
		refresh string
	}{
		{name: "empty", access: "", refresh: ""},
		{name: "garbage", access: "not.a.jwt", refresh: "%%%"},
		{name: "wrong secret", access: pair.AccessToken, refresh: pair.RefreshToken},
		{name: "expired", access: expired.AccessToken, refresh: expired.RefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := c
			if tt.name == "wrong secret" {
				verifier = other
			}

			_, ok := verifier.VerifyAccess(tt.access)
			require.False(t, ok)

			_, ok = verifier.VerifyRefresh(tt.refresh)
			require.False(t, ok)
		})
	}
}

func TestVerify_KindsAreNotInterchangeable(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, Options{})
	pair, err := c.Issue(testUser(), uuid.New())
	require.NoError(t, err)

	_, ok := c.VerifyRefresh(pair.AccessToken)
	require.False(t, ok)

	_, ok = c.VerifyAccess(pair.RefreshToken)
	require.False(t, ok)
}

func TestVerifyAccess_WrongAlg_WrongIssuer_WrongAudience(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, Options{Issuer: "goal-tracker", Audience: "goal-tracker-app"})
	uid := uuid.New()
	now := time.Now().UTC()

	sign := func(t *testing.T, method jwt.SigningMethod, iss string, aud []string) string {
		t.Helper()

		claims := accessJWT{
			UserID:    uid.String(),
			Email:     "a@b.c",
			SessionID: uuid.NewString(),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uid.String(),
				Issuer:    iss,
				Audience:  aud,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}

		signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)

		return signed
	}

	t.Run("sanity", func(t *testing.T) {
		_, ok := c.VerifyAccess(sign(t, jwt.SigningMethodHS256, "goal-tracker", []string{"goal-tracker-app"}))
		require.True(t, ok)
	})

	t.Run("wrong alg", func(t *testing.T) {
		_, ok := c.VerifyAccess(sign(t, jwt.SigningMethodHS512, "goal-tracker", []string{"goal-tracker-app"}))
		require.False(t, ok)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, ok := c.VerifyAccess(sign(t, jwt.SigningMethodHS256, "another-issuer", []string{"goal-tracker-app"}))
		require.False(t, ok)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, ok := c.VerifyAccess(sign(t, jwt.SigningMethodHS256, "goal-tracker", []string{"unexpected-aud"}))
		require.False(t, ok)
	})
}

func TestVerifyAccess_InvalidIDClaims(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, Options{})
	now := time.Now().UTC()

	claims := accessJWT{
		UserID:    "not-a-uuid",
		Email:     "a@b.c",
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, ok := c.VerifyAccess(signed)
	require.False(t, ok)
}

func TestVerify_MissingExpiration(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, Options{})

	claims := refreshJWT{
		SessionID: uuid.NewString(),
		UserID:    uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testRefreshSecret))
	require.NoError(t, err)

	_, ok := c.VerifyRefresh(signed)
	require.False(t, ok)
}
