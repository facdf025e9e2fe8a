package hasher

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	t.Parallel()

	h := New(bcrypt.MinCost, 2, nil)
	require.Equal(t, DefaultCost, h.Cost(), "cost ниже минимума заменяется на DefaultCost")

	h = New(MinCost, 2, nil)
	ctx := context.Background()

	secret := "refresh." + strings.Repeat("x", 200)
	hash, err := h.Hash(ctx, secret)
	require.NoError(t, err)
	require.NotEqual(t, secret, hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, MinCost, cost)

	require.NoError(t, h.Compare(ctx, hash, secret))
	require.ErrorIs(t, h.Compare(ctx, hash, secret+"y"), ErrMismatch)

	// Секреты длиннее 72 байт различаются по хвосту.
	other := "refresh." + strings.Repeat("x", 199) + "z"
	require.ErrorIs(t, h.Compare(ctx, hash, other), ErrMismatch)
}

func TestCompare_MalformedHash(t *testing.T) {
	t.Parallel()

	h := New(MinCost, 1, nil)
	err := h.Compare(context.Background(), "not-a-bcrypt-hash", "s")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMismatch)
}

func TestHash_CanceledContext(t *testing.T) {
	t.Parallel()

	h := New(MinCost, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "s")
	require.ErrorIs(t, err, context.Canceled)
}

func TestObserver_CalledPerOperation(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		ops  []string
		durs []time.Duration
	)
	h := New(MinCost, 1, func(op string, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		ops = append(ops, op)
		durs = append(durs, d)
	})

	ctx := context.Background()
	hash, err := h.Hash(ctx, "s")
	require.NoError(t, err)
	require.NoError(t, h.Compare(ctx, hash, "s"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"hash", "compare"}, ops)
	for _, d := range durs {
		require.Greater(t, d, time.Duration(0))
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	h := New(MinCost, 1, nil)

	// Слот занят — ожидающий вызов завершается по дедлайну.
	require.NoError(t, h.sem.Acquire(context.Background(), 1))
	defer h.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Hash(ctx, "s")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
