package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session matches the lookup.
	ErrNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps Redis transport and script failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidLimit is returned for a per-actor limit below one.
	ErrInvalidLimit = errors.New("session limit must be at least 1")
	// ErrCorrupt is returned when a stored session cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

// Store persists sessions. Implementations must make CreateWithLimit atomic
// with respect to concurrent calls for the same actor.
type Store interface {
	// CreateWithLimit deactivates the oldest live sessions of sess.ActorID
	// until at most limit-1 remain, then inserts sess. It returns the IDs
	// it deactivated, oldest first.
	CreateWithLimit(ctx context.Context, sess *Session, limit int, now time.Time) ([]string, error)
	// Get returns ErrNotFound for unknown IDs. Inactive and expired
	// sessions are returned as stored.
	Get(ctx context.Context, id string) (*Session, error)
	GetByTokenHash(ctx context.Context, hash [32]byte) (*Session, error)
	// Deactivate reports whether the session was live before the call.
	// Unknown or already inactive sessions are not an error.
	Deactivate(ctx context.Context, id, reason string) (bool, error)
	// DeactivateAll deactivates every active session of actorID except
	// exceptID and returns the deactivated IDs.
	DeactivateAll(ctx context.Context, actorID, exceptID, reason string) ([]string, error)
	// ListActive returns live sessions of actorID at now, oldest first.
	ListActive(ctx context.Context, actorID string, now time.Time) ([]*Session, error)
}

// createScript prunes dead index entries, evicts the oldest live sessions
// down to limit-1 and inserts the new session.
//
// KEYS: actor index, session hash, token index, sequence counter.
// ARGV: id, limit, now ms, ttl ms, session key prefix, eviction reason,
// then field/value pairs.
const createScript = `
local zkey = KEYS[1]
local id = ARGV[1]
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local prefix = ARGV[5]
local reason = ARGV[6]

local live = {}
local ids = redis.call("ZRANGE", zkey, 0, -1)
for _, sid in ipairs(ids) do
  local vals = redis.call("HMGET", prefix .. sid, "active", "expires")
  local expires = tonumber(vals[2])
  if vals[1] == "1" and expires and expires > now then
    table.insert(live, sid)
  else
    redis.call("ZREM", zkey, sid)
  end
end

local evicted = {}
local excess = #live - (limit - 1)
local i = 1
while excess > 0 do
  local sid = live[i]
  redis.call("HSET", prefix .. sid, "active", "0", "reason", reason)
  redis.call("ZREM", zkey, sid)
  table.insert(evicted, sid)
  i = i + 1
  excess = excess - 1
end

local fields = {}
for j = 7, #ARGV do
  table.insert(fields, ARGV[j])
end
redis.call("HSET", KEYS[2], unpack(fields))
redis.call("PEXPIRE", KEYS[2], ttl)
redis.call("SET", KEYS[3], id, "PX", ttl)

local seq = redis.call("INCR", KEYS[4])
redis.call("ZADD", zkey, seq, id)
local cur = redis.call("PTTL", zkey)
if cur < ttl then
  redis.call("PEXPIRE", zkey, ttl)
end
return evicted
`

var createLua = redis.NewScript(createScript)

// KEYS: session hash. ARGV: reason, actor index prefix, id.
const deactivateScript = `
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0", "reason", ARGV[1])
local actor = redis.call("HGET", KEYS[1], "actor")
if actor then
  redis.call("ZREM", ARGV[2] .. actor, ARGV[3])
end
return 1
`

var deactivateLua = redis.NewScript(deactivateScript)

// KEYS: actor index. ARGV: reason, except id, session key prefix.
const deactivateAllScript = `
local out = {}
local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, sid in ipairs(ids) do
  if sid ~= ARGV[2] then
    local k = ARGV[3] .. sid
    if redis.call("HGET", k, "active") == "1" then
      redis.call("HSET", k, "active", "0", "reason", ARGV[1])
      table.insert(out, sid)
    end
    redis.call("ZREM", KEYS[1], sid)
  end
end
return out
`

var deactivateAllLua = redis.NewScript(deactivateAllScript)

// RedisStore is a Redis-backed Store.
//
// Layout under prefix p: p:s:<id> is a hash per session, p:t:<hex hash>
// maps the token hash to the ID, p:a:<actor> is a sorted set of the
// actor's active session IDs scored by p:seq.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore using key prefix (default "azs").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "azs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) sessionPrefix() string { return s.prefix + ":s:" }
func (s *RedisStore) actorPrefix() string   { return s.prefix + ":a:" }

func (s *RedisStore) key(id string) string {
	return s.sessionPrefix() + id
}

func (s *RedisStore) tokenKey(hash [32]byte) string {
	return s.prefix + ":t:" + hex.EncodeToString(hash[:])
}

func (s *RedisStore) actorKey(actorID string) string {
	return s.actorPrefix() + actorID
}

func (s *RedisStore) seqKey() string {
	return s.prefix + ":seq"
}

// CreateWithLimit implements Store in one Lua script.
func (s *RedisStore) CreateWithLimit(ctx context.Context, sess *Session, limit int, now time.Time) ([]string, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	ttl := sess.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	args := []interface{}{
		sess.ID,
		limit,
		now.UnixMilli(),
		ttl.Milliseconds(),
		s.sessionPrefix(),
		ReasonSessionLimit,
	}
	args = append(args, encodeFields(sess)...)

	res, err := createLua.Run(ctx, s.redis,
		[]string{s.actorKey(sess.ActorID), s.key(sess.ID), s.tokenKey(sess.TokenHash), s.seqKey()},
		args...,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(id, fields)
}

// GetByTokenHash implements Store.
func (s *RedisStore) GetByTokenHash(ctx context.Context, hash [32]byte) (*Session, error) {
	id, err := s.redis.Get(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, id)
}

// Deactivate implements Store.
func (s *RedisStore) Deactivate(ctx context.Context, id, reason string) (bool, error) {
	n, err := deactivateLua.Run(ctx, s.redis, []string{s.key(id)}, reason, s.actorPrefix(), id).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// DeactivateAll implements Store.
func (s *RedisStore) DeactivateAll(ctx context.Context, actorID, exceptID, reason string) ([]string, error) {
	ids, err := deactivateAllLua.Run(ctx, s.redis, []string{s.actorKey(actorID)}, reason, exceptID, s.sessionPrefix()).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ListActive implements Store.
func (s *RedisStore) ListActive(ctx context.Context, actorID string, now time.Time) ([]*Session, error) {
	ids, err := s.redis.ZRange(ctx, s.actorKey(actorID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		sess, err := decodeFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if sess.Live(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func encodeFields(sess *Session) []interface{} {
	active := "0"
	if sess.Active {
		active = "1"
	}
	return []interface{}{
		"actor", sess.ActorID,
		"token_hash", hex.EncodeToString(sess.TokenHash[:]),
		"created", strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
		"expires", strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
		"ip", sess.IPAddress,
		"ua", sess.UserAgent,
		"device_type", string(sess.Device.Type),
		"browser", sess.Device.Browser,
		"os", sess.Device.OS,
		"fingerprint", sess.Fingerprint,
		"active", active,
		"reason", sess.TerminatedReason,
	}
}

func decodeFields(id string, f map[string]string) (*Session, error) {
	created, err := strconv.ParseInt(f["created"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: created: %v", ErrCorrupt, err)
	}
	expires, err := strconv.ParseInt(f["expires"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expires: %v", ErrCorrupt, err)
	}
	raw, err := hex.DecodeString(f["token_hash"])
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: token hash", ErrCorrupt)
	}

	sess := &Session{
		ID:        id,
		ActorID:   f["actor"],
		IPAddress: f["ip"],
		UserAgent: f["ua"],
		Device: Device{
			Type:    DeviceType(f["device_type"]),
			Browser: f["browser"],
			OS:      f["os"],
		},
		Fingerprint:      f["fingerprint"],
		Active:           f["active"] == "1",
		TerminatedReason: f["reason"],
		CreatedAt:        time.UnixMilli(created),
		ExpiresAt:        time.UnixMilli(expires),
	}
	copy(sess.TokenHash[:], raw)
	return sess, nil
}
