package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
)

const insertSession = `
	INSERT INTO sessions(id, user_id, device_id, refresh_secret_hash, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func execInsertSession(ctx context.Context, db execer, sess *models.Session) error {
	_, err := db.Exec(ctx, insertSession,
		sess.ID,
		sess.UserID,
		sess.DeviceID,
		sess.RefreshSecretHash,
		sess.ExpiresAt,
		sess.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return storage.ErrAlreadyExists
		}

		return err
	}

	return nil
}

// SaveSession сохраняет новую сессию.
func (s *Storage) SaveSession(ctx context.Context, session *models.Session) error {
	const op = "storage.postgres.SaveSession"

	if err := execInsertSession(ctx, s.db, session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SessionByID находит действующую сессию по первичному ключу.
func (s *Storage) SessionByID(ctx context.Context, id uuid.UUID, now time.Time) (*models.Session, error) {
	const op = "storage.postgres.SessionByID"

	query := `
		SELECT id, user_id, device_id, refresh_secret_hash, expires_at, created_at
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`

	var sess models.Session
	err := s.db.QueryRow(ctx, query, id, now).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.DeviceID,
		&sess.RefreshSecretHash,
		&sess.ExpiresAt,
		&sess.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sess, nil
}

// RotateSession выполняет условную замену в одной транзакции:
// DELETE старой строки с проверкой хэша и срока, затем INSERT новой.
// Конкурентный DELETE той же строки ждёт коммита первой транзакции
// и видит 0 затронутых строк.
func (s *Storage) RotateSession(ctx context.Context, oldID uuid.UUID, oldHash string, next *models.Session, now time.Time) error {
	const op = "storage.postgres.RotateSession"

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		DELETE FROM sessions
		WHERE id = $1 AND refresh_secret_hash = $2 AND expires_at > $3
	`

	tag, err := tx.Exec(ctx, query, oldID, oldHash, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}

	if err := execInsertSession(ctx, tx, next); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// DeleteSession удаляет сессию по ID.
func (s *Storage) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.postgres.DeleteSession"

	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteUserSessions удаляет все сессии пользователя.
func (s *Storage) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.postgres.DeleteUserSessions"

	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// DeleteExpiredSessions удаляет все просроченные сессии.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredSessions"

	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}
