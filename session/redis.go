package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// expiryGrace keeps a record in Redis slightly past ExpiresAt so that the
// lazy expiry check on refresh can still observe and report it.
const expiryGrace = time.Minute

const sweepBatchSize = 256

const (
	fieldPrincipalID   = "pid"
	fieldAccessTokenID = "ati"
	fieldRefreshToken  = "rt"
	fieldRefreshDigest = "rd"
	fieldBindingID     = "rbi"
	fieldName          = "name"
	fieldRole          = "role"
	fieldStoreName     = "sn"
	fieldStoreCategory = "sc"
	fieldExpiresAt     = "exp"
	fieldCreatedAt     = "cat"
	fieldLastUsedAt    = "lua"
)

const upsertSessionScript = `
local old_digest = redis.call("HGET", KEYS[1], "rd")
if old_digest then
  redis.call("DEL", ARGV[12] .. old_digest)
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "pid", ARGV[1], "ati", ARGV[2], "rt", ARGV[3], "rd", ARGV[4],
  "name", ARGV[5], "role", ARGV[6], "sn", ARGV[7], "sc", ARGV[8],
  "exp", ARGV[9], "cat", ARGV[10], "lua", ARGV[11], "rbi", ARGV[14])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[13])
redis.call("PEXPIREAT", KEYS[2], ARGV[13])
redis.call("ZADD", KEYS[3], ARGV[9], ARGV[1])
return 1
`

var upsertSessionLua = redis.NewScript(upsertSessionScript)

const findByRefreshScript = `
local pid = redis.call("GET", KEYS[1])
if not pid then
  return false
end
return redis.call("HGETALL", ARGV[1] .. pid)
`

var findByRefreshLua = redis.NewScript(findByRefreshScript)

const rotateAccessScript = `
local cur = redis.call("HMGET", KEYS[1], "rt", "ati")
if not cur[1] or cur[1] ~= ARGV[3] then
  return 0
end
if ARGV[4] ~= "" and cur[2] ~= ARGV[4] then
  return 0
end
redis.call("HSET", KEYS[1], "ati", ARGV[1], "lua", ARGV[2])
return 1
`

var rotateAccessLua = redis.NewScript(rotateAccessScript)

const touchSessionScript = `
if redis.call("HGET", KEYS[1], "ati") ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "lua", ARGV[2])
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const deleteSessionScript = `
local digest = redis.call("HGET", KEYS[1], "rd")
if digest then
  redis.call("DEL", ARGV[2] .. digest)
end
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const (
	sweepStatusKept    int64 = 0
	sweepStatusDeleted int64 = 1
	sweepStatusStale   int64 = 2
)

const deleteIfExpiredScript = `
local exp = redis.call("HGET", KEYS[1], "exp")
if not exp then
  redis.call("ZREM", KEYS[2], ARGV[1])
  return 2
end
if tonumber(exp) > tonumber(ARGV[2]) then
  return 0
end
local digest = redis.call("HGET", KEYS[1], "rd")
if digest then
  redis.call("DEL", ARGV[3] .. digest)
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return 1
`

var deleteIfExpiredLua = redis.NewScript(deleteIfExpiredScript)

// RedisStore is a Redis-backed [Store]. Each principal's record is a hash;
// a digest-keyed string indexes refresh tokens and a sorted set indexes
// expiry for the sweep. All mutations run as Lua scripts so each one is
// atomic on the server.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store that namespaces its keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tas"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) recordKey(principalID string) string {
	return s.recordPrefix() + principalID
}

func (s *RedisStore) recordPrefix() string {
	return s.prefix + ":p:"
}

func (s *RedisStore) refreshKey(digest string) string {
	return s.refreshPrefix() + digest
}

func (s *RedisStore) refreshPrefix() string {
	return s.prefix + ":r:"
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":exp"
}

func (s *RedisStore) UpsertSingleSession(ctx context.Context, rec *Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	digest := refreshDigest(rec.RefreshToken)
	expireAt := rec.ExpiresAt.Add(expiryGrace).UnixMilli()

	err := upsertSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(rec.PrincipalID), s.refreshKey(digest), s.expiryKey()},
		rec.PrincipalID,
		rec.AccessTokenID,
		rec.RefreshToken,
		digest,
		rec.Name,
		rec.Role,
		rec.StoreName,
		rec.StoreCategory,
		rec.ExpiresAt.UnixMicro(),
		rec.CreatedAt.UnixMicro(),
		rec.LastUsedAt.UnixMicro(),
		s.refreshPrefix(),
		expireAt,
		rec.RefreshBindingID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) FindByRefreshToken(ctx context.Context, token string) (*Record, error) {
	result, err := findByRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(refreshDigest(token))},
		s.recordPrefix(),
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fields := make(map[string]string, len(result)/2)
	for i := 0; i+1 < len(result); i += 2 {
		k, _ := result[i].(string)
		v, _ := result[i+1].(string)
		fields[k] = v
	}

	rec, err := recordFromFields(fields)
	if err != nil {
		return nil, err
	}
	if rec.RefreshToken != token {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) FindByPrincipalID(ctx context.Context, principalID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(principalID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return recordFromFields(fields)
}

func (s *RedisStore) RotateAccessTokenID(ctx context.Context, rot Rotation) error {
	updated, err := rotateAccessLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(rot.PrincipalID)},
		rot.AccessTokenID,
		rot.LastUsedAt.UnixMicro(),
		rot.RefreshToken,
		rot.PreviousAccessTokenID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) TouchSession(ctx context.Context, principalID, accessTokenID string, lastUsedAt time.Time) error {
	touched, err := touchSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(principalID)},
		accessTokenID,
		lastUsedAt.UnixMicro(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if touched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) DeleteByPrincipalID(ctx context.Context, principalID string) error {
	err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(principalID), s.expiryKey()},
		principalID,
		s.refreshPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteExpired walks the expiry index in batches. Each candidate is
// re-checked inside a script, so a record re-issued mid-sweep survives.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	maxScore := strconv.FormatInt(now.UnixMicro(), 10)
	deleted := 0

	for {
		members, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: sweepBatchSize,
		}).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(members) == 0 {
			return deleted, nil
		}

		progressed := false
		for _, principalID := range members {
			status, err := deleteIfExpiredLua.Run(
				ctx,
				s.redis,
				[]string{s.recordKey(principalID), s.expiryKey()},
				principalID,
				now.UnixMicro(),
				s.refreshPrefix(),
			).Int64()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			switch status {
			case sweepStatusDeleted:
				deleted++
				progressed = true
			case sweepStatusStale:
				progressed = true
			}
		}

		if !progressed || len(members) < sweepBatchSize {
			return deleted, nil
		}
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func recordFromFields(fields map[string]string) (*Record, error) {
	if len(fields) == 0 || fields[fieldPrincipalID] == "" {
		return nil, ErrNotFound
	}

	rec := &Record{
		PrincipalID:      fields[fieldPrincipalID],
		AccessTokenID:    fields[fieldAccessTokenID],
		RefreshToken:     fields[fieldRefreshToken],
		RefreshBindingID: fields[fieldBindingID],
		Name:             fields[fieldName],
		Role:             fields[fieldRole],
		StoreName:        fields[fieldStoreName],
		StoreCategory:    fields[fieldStoreCategory],
	}

	for name, dst := range map[string]*time.Time{
		fieldExpiresAt:  &rec.ExpiresAt,
		fieldCreatedAt:  &rec.CreatedAt,
		fieldLastUsedAt: &rec.LastUsedAt,
	} {
		micros, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt %s field", ErrUnavailable, name)
		}
		*dst = time.UnixMicro(micros).UTC()
	}

	return rec, nil
}
