package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-goal-tracker/internal/config"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
	"github.com/pribylovaa/go-goal-tracker/internal/storage/memory"
	"github.com/pribylovaa/go-goal-tracker/internal/storage/postgres"
	"github.com/pribylovaa/go-goal-tracker/internal/storage/redis"
)

// backend — хранилища пользователей и сессий, выбранные конфигурацией.
type backend struct {
	users    storage.UserStorage
	sessions storage.SessionStorage
	pingers  []func(context.Context) error
	closers  []func()
}

// Ping проверяет все подключённые хранилища.
func (b *backend) Ping(ctx context.Context) error {
	for _, p := range b.pingers {
		if err := p(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Close закрывает хранилища в обратном порядке открытия.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	b := &backend{}

	var pg *postgres.Storage
	var mem *memory.Storage

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.DB.Migrate {
			if err := postgres.Migrate(cfg.DB.DatabaseURL); err != nil {
				return nil, err
			}
			log.Info("postgres_migrated")
		}

		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		st, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
		cancel()
		if err != nil {
			return nil, err
		}
		log.Info("postgres_connected")

		pg = st
		b.users = st
		b.pingers = append(b.pingers, st.Ping)
		b.closers = append(b.closers, st.Close)
	case config.DriverMemory:
		mem = memory.New()
		b.users = mem
		log.Warn("memory_storage_in_use", slog.String("scope", "users"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.Storage.Sessions {
	case config.DriverPostgres:
		if pg == nil {
			b.Close()
			return nil, fmt.Errorf("postgres sessions require postgres driver")
		}
		b.sessions = pg
	case config.DriverRedis:
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rs, err := redis.New(rctx, cfg.Redis.RedisURL, cfg.Redis.KeyPrefix)
		cancel()
		if err != nil {
			b.Close()
			return nil, err
		}
		log.Info("redis_connected")

		b.sessions = rs
		b.pingers = append(b.pingers, rs.Ping)
		b.closers = append(b.closers, rs.Close)
	case config.DriverMemory:
		if mem == nil {
			mem = memory.New()
		}
		b.sessions = mem
		log.Warn("memory_storage_in_use", slog.String("scope", "sessions"))
	default:
		b.Close()
		return nil, fmt.Errorf("unknown sessions driver %q", cfg.Storage.Sessions)
	}

	return b, nil
}
