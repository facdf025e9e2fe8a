package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://appleid.example.test"
	testClientID = "com.example.goals"
)

type provider struct {
	key *rsa.PrivateKey
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &provider{key: key}
}

func (p *provider) keySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&p.key.PublicKey}}
}

// sign выпускает RS256 identity token; mutate позволяет испортить claims.
func (p *provider) sign(t *testing.T, sub string, mutate func(jwt.MapClaims)) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            sub,
		"email":          "user@example.com",
		"email_verified": "true",
		"iat":            now.Unix(),
		"exp":            now.Add(10 * time.Minute).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.key)
	require.NoError(t, err)

	return raw
}

func newTestVerifier(t *testing.T, p *provider, cfg Config) *Verifier {
	t.Helper()

	if cfg.Issuer == "" {
		cfg.Issuer = testIssuer
	}
	if len(cfg.ClientIDs) == 0 {
		cfg.ClientIDs = []string{testClientID}
	}

	v, err := New(p.keySet(), cfg)
	require.NoError(t, err)

	return v
}

func TestNew_Misconfigured(t *testing.T) {
	t.Parallel()

	p := newProvider(t)

	_, err := New(p.keySet(), Config{Issuer: testIssuer})
	require.ErrorIs(t, err, ErrMisconfigured)

	_, err = New(nil, Config{Issuer: testIssuer, ClientIDs: []string{testClientID}})
	require.ErrorIs(t, err, ErrMisconfigured)
}

func TestVerify_OK(t *testing.T) {
	t.Parallel()

	p := newProvider(t)
	v := newTestVerifier(t, p, Config{})

	id, err := v.Verify(context.Background(), models.Assertion{IdentityToken: p.sign(t, "apple-sub-1", nil)})
	require.NoError(t, err)
	require.Equal(t, "apple-sub-1", id.Subject)
	require.Equal(t, "user@example.com", id.Email)
	require.True(t, id.EmailVerified)
}

func TestVerify_BoolEmailVerified_AndSecondClientID(t *testing.T) {
	t.Parallel()

	p := newProvider(t)
	v := newTestVerifier(t, p, Config{ClientIDs: []string{"com.example.web", testClientID}})

	raw := p.sign(t, "apple-sub-2", func(c jwt.MapClaims) { c["email_verified"] = false })

	id, err := v.Verify(context.Background(), models.Assertion{IdentityToken: raw})
	require.NoError(t, err)
	require.False(t, id.EmailVerified)
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()

	p := newProvider(t)
	other := newProvider(t)
	v := newTestVerifier(t, p, Config{})

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "definitely.not.jwt"},
		{name: "foreign key", token: other.sign(t, "sub", nil)},
		{name: "wrong issuer", token: p.sign(t, "sub", func(c jwt.MapClaims) { c["iss"] = "https://evil.test" })},
		{name: "wrong audience", token: p.sign(t, "sub", func(c jwt.MapClaims) { c["aud"] = "com.other.app" })},
		{name: "expired", token: p.sign(t, "sub", func(c jwt.MapClaims) {
			c["iat"] = time.Now().Add(-2 * time.Hour).Unix()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
		})},
		{name: "no subject", token: p.sign(t, "", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), models.Assertion{IdentityToken: tt.token})
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidAssertion)
		})
	}
}

// tokenEndpoint имитирует token endpoint провайдера.
func tokenEndpoint(t *testing.T, status int, idToken string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil || status != http.StatusOK || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestVerify_CodeExchange(t *testing.T) {
	t.Parallel()

	p := newProvider(t)

	t.Run("subject matches", func(t *testing.T) {
		srv := tokenEndpoint(t, http.StatusOK, p.sign(t, "sub-x", nil))
		v := newTestVerifier(t, p, Config{TokenURL: srv.URL, ClientSecret: "secret"})

		id, err := v.Verify(context.Background(), models.Assertion{
			IdentityToken:     p.sign(t, "sub-x", nil),
			AuthorizationCode: "good-code",
		})
		require.NoError(t, err)
		require.Equal(t, "sub-x", id.Subject)
	})

	t.Run("subject mismatch", func(t *testing.T) {
		srv := tokenEndpoint(t, http.StatusOK, p.sign(t, "sub-other", nil))
		v := newTestVerifier(t, p, Config{TokenURL: srv.URL, ClientSecret: "secret"})

		_, err := v.Verify(context.Background(), models.Assertion{
			IdentityToken:     p.sign(t, "sub-x", nil),
			AuthorizationCode: "good-code",
		})
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("code rejected", func(t *testing.T) {
		srv := tokenEndpoint(t, http.StatusOK, p.sign(t, "sub-x", nil))
		v := newTestVerifier(t, p, Config{TokenURL: srv.URL, ClientSecret: "secret"})

		_, err := v.Verify(context.Background(), models.Assertion{
			IdentityToken:     p.sign(t, "sub-x", nil),
			AuthorizationCode: "stale-code",
		})
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("endpoint unreachable is not an assertion error", func(t *testing.T) {
		srv := tokenEndpoint(t, http.StatusOK, "")
		url := srv.URL
		srv.Close()

		v := newTestVerifier(t, p, Config{TokenURL: url, ClientSecret: "secret"})

		_, err := v.Verify(context.Background(), models.Assertion{
			IdentityToken:     p.sign(t, "sub-x", nil),
			AuthorizationCode: "good-code",
		})
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrInvalidAssertion))
	})

	t.Run("exchange disabled ignores code", func(t *testing.T) {
		v := newTestVerifier(t, p, Config{})

		_, err := v.Verify(context.Background(), models.Assertion{
			IdentityToken:     p.sign(t, "sub-x", nil),
			AuthorizationCode: "anything",
		})
		require.NoError(t, err)
	})
}

// jwksEndpoint отдаёт JWKS с ключом p; при status != 200 отвечает ошибкой.
func jwksEndpoint(t *testing.T, p *provider, status int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "try later", status)
			return
		}

		pub := p.key.PublicKey
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newRemoteVerifier(t *testing.T, jwksURL string) *Verifier {
	t.Helper()

	v, err := New(oidc.NewRemoteKeySet(context.Background(), jwksURL), Config{
		Issuer:    testIssuer,
		ClientIDs: []string{testClientID},
	})
	require.NoError(t, err)

	return v
}

func TestVerify_RemoteKeySet(t *testing.T) {
	t.Parallel()

	p := newProvider(t)

	t.Run("keys fetched", func(t *testing.T) {
		v := newRemoteVerifier(t, jwksEndpoint(t, p, http.StatusOK).URL)

		id, err := v.Verify(context.Background(), models.Assertion{IdentityToken: p.sign(t, "sub-remote", nil)})
		require.NoError(t, err)
		require.Equal(t, "sub-remote", id.Subject)
	})

	t.Run("foreign key is an assertion error", func(t *testing.T) {
		v := newRemoteVerifier(t, jwksEndpoint(t, p, http.StatusOK).URL)

		_, err := v.Verify(context.Background(), models.Assertion{IdentityToken: newProvider(t).sign(t, "sub", nil)})
		require.ErrorIs(t, err, ErrInvalidAssertion)
		require.False(t, errors.Is(err, ErrProviderUnavailable))
	})

	t.Run("jwks 503 is not an assertion error", func(t *testing.T) {
		v := newRemoteVerifier(t, jwksEndpoint(t, p, http.StatusServiceUnavailable).URL)

		_, err := v.Verify(context.Background(), models.Assertion{IdentityToken: p.sign(t, "sub", nil)})
		require.Error(t, err)
		require.ErrorIs(t, err, ErrProviderUnavailable)
		require.False(t, errors.Is(err, ErrInvalidAssertion))
	})

	t.Run("jwks unreachable is not an assertion error", func(t *testing.T) {
		srv := jwksEndpoint(t, p, http.StatusOK)
		url := srv.URL
		srv.Close()

		v := newRemoteVerifier(t, url)

		_, err := v.Verify(context.Background(), models.Assertion{IdentityToken: p.sign(t, "sub", nil)})
		require.ErrorIs(t, err, ErrProviderUnavailable)
		require.False(t, errors.Is(err, ErrInvalidAssertion))
	})

	t.Run("garbage token never reaches jwks", func(t *testing.T) {
		v := newRemoteVerifier(t, jwksEndpoint(t, p, http.StatusServiceUnavailable).URL)

		_, err := v.Verify(context.Background(), models.Assertion{IdentityToken: "definitely.not.jwt"})
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})
}
