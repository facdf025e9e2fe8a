// redis — хранилище сессий в Redis.
//
// Раскладка ключей:
//   - <prefix>s:<session_id> — Hash с полями uid, dev, hash, exp (unix ms), cat (unix ms);
//     ключ живёт до exp (PEXPIREAT);
//   - <prefix>u:<user_id> — Set идентификаторов сессий пользователя.
//
// Все многошаговые изменения выполняются Lua-скриптами, поэтому каждая
// операция атомарна относительно остальных клиентов. Скрипты объявляют
// каждый затрагиваемый ключ в KEYS и не собирают имена ключей внутри Lua.
//
// Хранилище рассчитано на одиночный Redis или Sentinel (redis.Client):
// ключ сессии и индекс пользователя лежат в разных hash slot, и в
// Redis Cluster скрипты над ними завершатся ошибкой CROSSSLOT.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-goal-tracker/internal/models"
	"github.com/pribylovaa/go-goal-tracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "auth:"

var saveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'uid', ARGV[2], 'dev', ARGV[3], 'hash', ARGV[4], 'exp', ARGV[5], 'cat', ARGV[6])
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// KEYS: old, oldUserSet, next, nextUserSet.
// ARGV: oldHash, nowMs, oldID, nextID, uid, dev, hash, exp, cat.
var rotateScript = redis.NewScript(`
local h = redis.call('HGET', KEYS[1], 'hash')
if not h or h ~= ARGV[1] then
	return 0
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'exp'))
if not exp or exp <= tonumber(ARGV[2]) then
	return 0
end
if redis.call('EXISTS', KEYS[3]) == 1 then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[3])
redis.call('HSET', KEYS[3], 'uid', ARGV[5], 'dev', ARGV[6], 'hash', ARGV[7], 'exp', ARGV[8], 'cat', ARGV[9])
redis.call('PEXPIREAT', KEYS[3], ARGV[8])
redis.call('SADD', KEYS[4], ARGV[4])
return 1
`)

// KEYS: session, userSet. ARGV: sessionID, uid.
var deleteScript = redis.NewScript(`
local uid = redis.call('HGET', KEYS[1], 'uid')
if not uid then
	return 0
end
if uid ~= ARGV[2] then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return 1
`)

// KEYS: userSet, session1..sessionN. ARGV: sessionID1..sessionIDN.
var deleteUserScript = redis.NewScript(`
local n = 0
for i = 2, #KEYS do
	n = n + redis.call('DEL', KEYS[i])
	redis.call('SREM', KEYS[1], ARGV[i - 1])
end
if redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1])
end
return n
`)

type Storage struct {
	rdb    *redis.Client
	prefix string
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:".
func New(ctx context.Context, redisURL, prefix string) (*Storage, error) {
	const op = "storage.redis.New"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(rdb, prefix), nil
}

// NewWithClient оборачивает готовый клиент.
func NewWithClient(rdb *redis.Client, prefix string) *Storage {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Storage{rdb: rdb, prefix: prefix}
}

// Ping проверяет доступность Redis.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.redis.Ping"

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close закрывает клиент Redis.
func (s *Storage) Close() {
	_ = s.rdb.Close()
}

func (s *Storage) sessionKey(id uuid.UUID) string { return s.prefix + "s:" + id.String() }
func (s *Storage) userKey(id uuid.UUID) string    { return s.prefix + "u:" + id.String() }

func sessionArgs(sess *models.Session) []any {
	return []any{
		sess.UserID.String(),
		sess.DeviceID,
		sess.RefreshSecretHash,
		strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
	}
}

// SaveSession сохраняет новую сессию.
func (s *Storage) SaveSession(ctx context.Context, session *models.Session) error {
	const op = "storage.redis.SaveSession"

	keys := []string{s.sessionKey(session.ID), s.userKey(session.UserID)}
	args := append([]any{session.ID.String()}, sessionArgs(session)...)

	n, err := saveScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	return nil
}

// SessionByID находит действующую сессию по ID.
func (s *Storage) SessionByID(ctx context.Context, id uuid.UUID, now time.Time) (*models.Session, error) {
	const op = "storage.redis.SessionByID"

	m, err := s.rdb.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	sess, err := decodeSession(id, m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if sess.Expired(now) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return sess, nil
}

// RotateSession атомарно заменяет сессию oldID на next.
func (s *Storage) RotateSession(ctx context.Context, oldID uuid.UUID, oldHash string, next *models.Session, now time.Time) error {
	const op = "storage.redis.RotateSession"

	// Пользователь сессии при ротации не меняется.
	keys := []string{
		s.sessionKey(oldID),
		s.userKey(next.UserID),
		s.sessionKey(next.ID),
		s.userKey(next.UserID),
	}
	args := append([]any{
		oldHash,
		strconv.FormatInt(now.UnixMilli(), 10),
		oldID.String(),
		next.ID.String(),
	}, sessionArgs(next)...)

	n, err := rotateScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch n {
	case 1:
		return nil
	case -1:
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
}

// DeleteSession удаляет сессию по ID.
func (s *Storage) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.redis.DeleteSession"

	// Владелец читается заранее, чтобы передать индекс пользователя в KEYS;
	// скрипт перепроверяет его уже атомарно.
	raw, err := s.rdb.HGet(ctx, s.sessionKey(id), "uid").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	uid, err := uuid.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("%s: decode uid: %w", op, err)
	}

	keys := []string{s.sessionKey(id), s.userKey(uid)}

	n, err := deleteScript.Run(ctx, s.rdb, keys, id.String(), uid.String()).Int64()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if n < 0 {
		return false, fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}

	return n == 1, nil
}

// DeleteUserSessions удаляет все сессии пользователя.
func (s *Storage) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.redis.DeleteUserSessions"

	ids, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	// Сессии, созданные после SMEMBERS, остаются: вход произошёл позже выхода.
	keys := make([]string, 0, len(ids)+1)
	args := make([]any, 0, len(ids))
	keys = append(keys, s.userKey(userID))
	for _, id := range ids {
		keys = append(keys, s.prefix+"s:"+id)
		args = append(args, id)
	}

	n, err := deleteUserScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// DeleteExpiredSessions вычищает из индексов пользователей идентификаторы
// сессий, ключи которых Redis уже удалил по TTL.
//
// now не используется: сами сессии удаляет Redis (PEXPIREAT). Возвращается
// число убранных висячих записей индекса, а не число истёкших сессий, поэтому
// счётчик auth_sessions_swept_total здесь считает именно их.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, _ time.Time) (int64, error) {
	const op = "storage.redis.DeleteExpiredSessions"

	var removed int64

	iter := s.rdb.Scan(ctx, 0, s.prefix+"u:*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()

		ids, err := s.rdb.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, fmt.Errorf("%s: %w", op, err)
		}

		for _, id := range ids {
			exists, err := s.rdb.Exists(ctx, s.prefix+"s:"+id).Result()
			if err != nil {
				return removed, fmt.Errorf("%s: %w", op, err)
			}

			if exists == 0 {
				n, err := s.rdb.SRem(ctx, userKey, id).Result()
				if err != nil {
					return removed, fmt.Errorf("%s: %w", op, err)
				}
				removed += n
			}
		}
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%s: %w", op, err)
	}

	return removed, nil
}

func decodeSession(id uuid.UUID, m map[string]string) (*models.Session, error) {
	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, fmt.Errorf("decode uid: %w", err)
	}

	exp, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode exp: %w", err)
	}

	cat, err := strconv.ParseInt(m["cat"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode cat: %w", err)
	}

	hash := m["hash"]
	if hash == "" {
		return nil, errors.New("decode hash: empty")
	}

	return &models.Session{
		ID:                id,
		UserID:            uid,
		DeviceID:          m["dev"],
		RefreshSecretHash: hash,
		ExpiresAt:         time.UnixMilli(exp).UTC(),
		CreatedAt:         time.UnixMilli(cat).UTC(),
	}, nil
}

// Проверка на соответствие интерфейсу SessionStorage.
var _ storage.SessionStorage = (*Storage)(nil)
