package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-goal-tracker/internal/pkg/log"
)

// RunJanitor периодически вычищает истёкшие сессии, пока не отменён ctx.
// onSwept (может быть nil) получает число удалённых за проход сессий.
func (s *SessionStore) RunJanitor(ctx context.Context, period time.Duration, onSwept func(int64)) {
	const op = "service.janitor.RunJanitor"

	if period <= 0 {
		return
	}

	lg := log.From(ctx)
	lg.Info("janitor_start", slog.String("op", op), slog.Duration("period", period))

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("janitor_stop", slog.String("op", op))
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				lg.Error("janitor_sweep_failed",
					slog.String("op", op),
					slog.String("err", err.Error()),
				)
				continue
			}

			if onSwept != nil {
				onSwept(n)
			}
			if n > 0 {
				lg.Info("janitor_swept", slog.String("op", op), slog.Int64("sessions", n))
			}
		}
	}
}
