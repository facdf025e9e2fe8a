package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pribylovaa/go-goal-tracker/internal/identity"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/pkg/hasher"
	"github.com/pribylovaa/go-goal-tracker/internal/storage/memory"
	"github.com/pribylovaa/go-goal-tracker/internal/token"
	"github.com/stretchr/testify/require"
)

// fakeVerifier принимает identity token как ключ в таблице идентичностей.
type fakeVerifier struct {
	mu  sync.Mutex
	ids map[string]*models.Identity
	err error
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{ids: make(map[string]*models.Identity)}
}

func (f *fakeVerifier) add(raw, sub, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ids[raw] = &models.Identity{Subject: sub, Email: email, EmailVerified: true}
}

func (f *fakeVerifier) Verify(_ context.Context, a models.Assertion) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	id, ok := f.ids[a.IdentityToken]
	if !ok {
		return nil, fmt.Errorf("fake: %w", identity.ErrInvalidAssertion)
	}

	cp := *id
	return &cp, nil
}

// clock — управляемые часы для тестов истечения.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Now().UTC()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func newCodec(t *testing.T) *token.Codec {
	t.Helper()

	c, err := token.New("unit-access-secret", "unit-refresh-secret", token.Options{Issuer: "goal-tracker"})
	require.NoError(t, err)

	return c
}

func newHasher() *hasher.Hasher {
	return hasher.New(hasher.MinCost, 4, nil)
}

type memoryEnv struct {
	svc      *Service
	store    *memory.Storage
	verifier *fakeVerifier
	codec    *token.Codec
}

func newMemoryService(t *testing.T) *memoryEnv {
	t.Helper()

	st := memory.New()
	v := newFakeVerifier()
	codec := newCodec(t)

	svc := New(Deps{
		Users:    st,
		Sessions: st,
		Codec:    codec,
		Identity: v,
		Hasher:   newHasher(),
	})

	return &memoryEnv{svc: svc, store: st, verifier: v, codec: codec}
}

func assertion(raw string) models.Assertion {
	return models.Assertion{IdentityToken: raw, AuthorizationCode: "code"}
}
