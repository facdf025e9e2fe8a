// identity проверяет assertion внешнего провайдера (Sign in with Apple).
//
// Подпись identity token сверяется с ключами провайдера через go-oidc
// (issuer, audience, срок действия). Если задан обмен authorization code,
// код меняется на id_token через token endpoint провайдера, и subject
// обоих токенов обязан совпасть.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"golang.org/x/oauth2"
)

const AppleIssuer = "https://appleid.apple.com"

var (
	// ErrInvalidAssertion — assertion не прошла проверку (подпись, issuer,
	// audience, срок, обмен кода, отсутствующие claims).
	ErrInvalidAssertion = errors.New("invalid identity assertion")
	// ErrMisconfigured — не заданы обязательные параметры проверки.
	ErrMisconfigured = errors.New("identity verifier misconfigured")
	// ErrProviderUnavailable — ключи провайдера не получены (сеть, 5xx).
	// Не оборачивает ErrInvalidAssertion: assertion при этом не проверена.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Config — параметры проверки.
type Config struct {
	Issuer    string
	ClientIDs []string

	// Обмен authorization code. Выключен, если TokenURL пуст.
	ClientSecret string
	TokenURL     string
	RedirectURL  string

	// Now — источник времени для проверки срока; по умолчанию time.Now.
	Now func() time.Time
}

// Verifier проверяет identity token и (опционально) authorization code.
type Verifier struct {
	verifier  *oidc.IDTokenVerifier
	clientIDs []string
	exchange  *oauth2.Config
}

// Discover загружает метаданные провайдера (jwks_uri) и создаёт Verifier
// с удалённым набором ключей.
func Discover(ctx context.Context, cfg Config) (*Verifier, error) {
	const op = "identity.identity.Discover"

	if cfg.Issuer == "" {
		cfg.Issuer = AppleIssuer
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(cfg.ClientIDs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrMisconfigured)
	}

	var meta oidc.ProviderConfig
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if meta.JWKSURL == "" {
		return nil, fmt.Errorf("%s: no jwks_uri: %w", op, ErrMisconfigured)
	}

	// ctx ограничивает только discovery; ключи подгружаются всё время работы.
	keys := oidc.NewRemoteKeySet(context.WithoutCancel(ctx), meta.JWKSURL)

	oc := oidcConfig(cfg)
	oc.SupportedSigningAlgs = meta.Algorithms

	return newVerifier(oidc.NewVerifier(cfg.Issuer, trackedKeySet{keys}, oc), cfg), nil
}

// New создаёт Verifier с заданным набором ключей (например, oidc.StaticKeySet).
func New(keySet oidc.KeySet, cfg Config) (*Verifier, error) {
	const op = "identity.identity.New"

	if cfg.Issuer == "" || keySet == nil || len(cfg.ClientIDs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrMisconfigured)
	}

	return newVerifier(oidc.NewVerifier(cfg.Issuer, trackedKeySet{keySet}, oidcConfig(cfg)), cfg), nil
}

type fetchFailureKey struct{}

// fetchFailure — ошибка загрузки ключей в рамках одного вызова verifyToken.
// IDTokenVerifier теряет цепочку ошибок набора ключей, поэтому причина
// передаётся в обход него, через контекст.
type fetchFailure struct {
	err error
}

// trackedKeySet отличает сбой загрузки ключей от неверной подписи.
// RemoteKeySet оборачивает (%w) только ошибки получения JWKS и отмену
// контекста; отказ в подписи и разбор токена приходят без причины.
type trackedKeySet struct {
	oidc.KeySet
}

func (k trackedKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.KeySet.VerifySignature(ctx, jwt)
	if err != nil && errors.Unwrap(err) != nil {
		if f, ok := ctx.Value(fetchFailureKey{}).(*fetchFailure); ok {
			f.err = err
		}
	}

	return payload, err
}

func newVerifier(v *oidc.IDTokenVerifier, cfg Config) *Verifier {
	out := &Verifier{
		verifier:  v,
		clientIDs: slices.Clone(cfg.ClientIDs),
	}

	if cfg.TokenURL != "" {
		out.exchange = &oauth2.Config{
			ClientID:     cfg.ClientIDs[0],
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}

	return out
}

// Audience проверяется вручную: у одного приложения может быть несколько
// client id (bundle id и services id).
func oidcConfig(cfg Config) *oidc.Config {
	return &oidc.Config{
		SkipClientIDCheck: true,
		Now:               cfg.Now,
	}
}

// claims — поля identity token, которые читает сервис. Apple отдаёт
// email_verified то строкой, то булевым значением.
type claims struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
}

type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return err
		}
		*b = flexBool(parsed)
	default:
		*b = false
	}

	return nil
}

// Verify проверяет assertion и возвращает подтверждённую идентичность.
// Ошибки проверки оборачивают ErrInvalidAssertion. Недоступность ключей
// даёт ErrProviderUnavailable; сбой сети до token endpoint возвращается как есть.
func (v *Verifier) Verify(ctx context.Context, a models.Assertion) (*models.Identity, error) {
	const op = "identity.identity.Verify"

	c, err := v.verifyToken(ctx, a.IdentityToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if v.exchange != nil && a.AuthorizationCode != "" {
		sub, err := v.exchangeCode(ctx, a.AuthorizationCode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if sub != c.Subject {
			return nil, fmt.Errorf("%s: subject mismatch: %w", op, ErrInvalidAssertion)
		}
	}

	return &models.Identity{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: bool(c.EmailVerified),
	}, nil
}

func (v *Verifier) verifyToken(ctx context.Context, raw string) (*claims, error) {
	if raw == "" {
		return nil, ErrInvalidAssertion
	}

	failure := &fetchFailure{}
	tok, err := v.verifier.Verify(context.WithValue(ctx, fetchFailureKey{}, failure), raw)
	if err != nil {
		if failure.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, failure.err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	if !slices.ContainsFunc(tok.Audience, func(aud string) bool {
		return slices.Contains(v.clientIDs, aud)
	}) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidAssertion)
	}

	var c claims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidAssertion)
	}

	return &c, nil
}

func (v *Verifier) exchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := v.exchange.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return "", fmt.Errorf("%w: code rejected: %v", ErrInvalidAssertion, err)
		}
		return "", fmt.Errorf("exchange code: %w", err)
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: no id_token in token response", ErrInvalidAssertion)
	}

	c, err := v.verifyToken(ctx, raw)
	if err != nil {
		return "", err
	}

	return c.Subject, nil
}
