// token подписывает и проверяет access/refresh-токены (JWT, HS256).
//
// Access и refresh подписываются разными секретами: утечка одного не позволяет
// выпускать токены другого вида. Проверка никогда не возвращает ошибку:
// любой сбой (подпись, формат, срок, issuer/audience) даёт ok=false.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrEmptySecret = errors.New("token secret is empty")
	ErrSameSecret  = errors.New("access and refresh secrets must differ")
)

// AccessClaims — проверенное содержимое access-токена.
type AccessClaims struct {
	UserID    uuid.UUID
	Email     string
	SessionID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims — проверенное содержимое refresh-токена.
type RefreshClaims struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessJWT struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

type refreshJWT struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	jwt.RegisteredClaims
}

// Options — необязательные параметры Codec.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	// Now — источник времени; по умолчанию time.Now.
	Now func() time.Time
}

// Codec выпускает и проверяет токены. Безопасен для конкурентного использования.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

// New создаёт Codec. Секреты обязательны и должны различаться.
func New(accessSecret, refreshSecret string, opts Options) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, ErrEmptySecret
	}

	if accessSecret == refreshSecret {
		return nil, ErrSameSecret
	}

	c := &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		issuer:        opts.Issuer,
		audience:      opts.Audience,
		now:           opts.Now,
	}

	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	if c.now == nil {
		c.now = time.Now
	}

	return c, nil
}

// AccessTTL возвращает время жизни access-токена.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL возвращает время жизни refresh-токена.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue подписывает пару токенов, привязанных к сессии sessionID.
func (c *Codec) Issue(user *models.User, sessionID uuid.UUID) (*models.TokenPair, error) {
	now := c.now().UTC()

	access := accessJWT{
		UserID:           user.ID.String(),
		Email:            user.Email,
		SessionID:        sessionID.String(),
		RegisteredClaims: c.registered(user.ID, now, c.accessTTL),
	}

	refresh := refreshJWT{
		SessionID:        sessionID.String(),
		UserID:           user.ID.String(),
		RegisteredClaims: c.registered(user.ID, now, c.refreshTTL),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(c.accessSecret)
	if err != nil {
		return nil, err
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(c.refreshSecret)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(c.accessTTL / time.Second),
	}, nil
}

// VerifyAccess проверяет access-токен.
func (c *Codec) VerifyAccess(raw string) (AccessClaims, bool) {
	var claims accessJWT
	if !c.parse(raw, &claims, c.accessSecret) {
		return AccessClaims{}, false
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return AccessClaims{}, false
	}

	sid, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return AccessClaims{}, false
	}

	return AccessClaims{
		UserID:    uid,
		Email:     claims.Email,
		SessionID: sid,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, true
}

// VerifyRefresh проверяет refresh-токен.
func (c *Codec) VerifyRefresh(raw string) (RefreshClaims, bool) {
	var claims refreshJWT
	if !c.parse(raw, &claims, c.refreshSecret) {
		return RefreshClaims{}, false
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return RefreshClaims{}, false
	}

	sid, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return RefreshClaims{}, false
	}

	return RefreshClaims{
		SessionID: sid,
		UserID:    uid,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, true
}

func (c *Codec) registered(userID uuid.UUID, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	if c.audience != "" {
		rc.Audience = jwt.ClaimStrings{c.audience}
	}

	return rc
}

func (c *Codec) parse(raw string, claims jwt.Claims, secret []byte) bool {
	if raw == "" {
		return false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)

	return err == nil && token.Valid
}
