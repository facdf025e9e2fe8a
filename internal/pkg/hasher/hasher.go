// hasher выполняет медленное одностороннее хэширование секретов (bcrypt)
// в ограниченном пуле: одновременно работает не больше workers вычислений,
// остальные ждут слот, уважая отмену контекста.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultCost = 12
	MinCost     = 10
)

// ErrMismatch — секрет не соответствует хэшу.
var ErrMismatch = errors.New("secret does not match hash")

// Observer получает длительность каждого вычисления (для метрик).
type Observer func(op string, d time.Duration)

// Hasher — пул bcrypt-вычислений.
type Hasher struct {
	cost    int
	sem     *semaphore.Weighted
	observe Observer
}

// New создаёт Hasher. cost вне [MinCost, bcrypt.MaxCost] заменяется на DefaultCost,
// workers <= 0 — на GOMAXPROCS.
func New(cost, workers int, observe Observer) *Hasher {
	if cost < MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Hasher{
		cost:    cost,
		sem:     semaphore.NewWeighted(int64(workers)),
		observe: observe,
	}
}

// Cost возвращает фактический cost bcrypt.
func (h *Hasher) Cost() int { return h.cost }

// Hash возвращает bcrypt-хэш секрета.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	const op = "hasher.Hash"

	var out []byte
	err := h.run(ctx, "hash", func() error {
		var err error
		out, err = bcrypt.GenerateFromPassword(prehash(secret), h.cost)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(out), nil
}

// Compare сверяет секрет с хэшем. Несовпадение — ErrMismatch.
func (h *Hasher) Compare(ctx context.Context, hash, secret string) error {
	const op = "hasher.Compare"

	err := h.run(ctx, "compare", func() error {
		return bcrypt.CompareHashAndPassword([]byte(hash), prehash(secret))
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// run занимает слот пула и выполняет fn в отдельной горутине.
// При отмене ctx вызывающий получает ctx.Err() сразу, а вычисление
// дорабатывает и освобождает слот само.
func (h *Hasher) run(ctx context.Context, op string, fn func() error) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer h.sem.Release(1)

		start := time.Now()
		err := fn()
		if h.observe != nil {
			h.observe(op, time.Since(start))
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// prehash приводит секрет произвольной длины к 64 hex-символам:
// bcrypt учитывает не больше 72 байт входа.
func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	dst := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(dst, sum[:])
	return dst
}
