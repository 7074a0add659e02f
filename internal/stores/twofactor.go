package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goAuthz/mfa"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTwoFactorBackend = errors.New("two-factor backend unavailable")
	ErrTwoFactorCorrupt = errors.New("two-factor record corrupt")
)

// KEYS: secret hash. ARGV: counter.
const advanceCounterScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local cur = tonumber(redis.call("HGET", KEYS[1], "ctr") or "0")
if tonumber(ARGV[1]) <= cur then
  return 0
end
redis.call("HSET", KEYS[1], "ctr", ARGV[1])
return 1
`

var advanceCounterLua = redis.NewScript(advanceCounterScript)

// TwoFactorStore keeps each actor's TOTP secret in a hash and the unused
// backup codes in a second hash keyed by code hash. Consuming a code is a
// single HDEL, so two concurrent consumers can never both succeed.
type TwoFactorStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTwoFactorStore(redisClient redis.UniversalClient, prefix string) *TwoFactorStore {
	if prefix == "" {
		prefix = "azm"
	}
	return &TwoFactorStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

var _ mfa.Store = (*TwoFactorStore)(nil)

func (s *TwoFactorStore) secretKey(actorID string) string {
	return s.prefix + ":sec:" + actorID
}

func (s *TwoFactorStore) codesKey(actorID string) string {
	return s.prefix + ":bc:" + actorID
}

func (s *TwoFactorStore) GetTwoFactor(ctx context.Context, actorID string) (*mfa.Secret, error) {
	fields, err := s.redis.HGetAll(ctx, s.secretKey(actorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := &mfa.Secret{
		ActorID: actorID,
		Secret:  fields["secret"],
		Enabled: fields["enabled"] == "1",
	}
	if rec.CreatedAt, err = parseMillis(fields["created"]); err != nil {
		return nil, err
	}
	if rec.EnabledAt, err = parseMillis(fields["enabled_at"]); err != nil {
		return nil, err
	}
	if v := fields["ctr"]; v != "" {
		if rec.LastUsedCounter, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTwoFactorCorrupt, err)
		}
	}
	return rec, nil
}

func (s *TwoFactorStore) SaveTwoFactorSecret(ctx context.Context, actorID, secret string, now time.Time) error {
	key := s.secretKey(actorID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"secret", secret,
			"enabled", "0",
			"created", strconv.FormatInt(now.UnixMilli(), 10),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return nil
}

func (s *TwoFactorStore) SetTwoFactorEnabled(ctx context.Context, actorID string, now time.Time) error {
	key := s.secretKey(actorID)
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	if n == 0 {
		return nil
	}
	err = s.redis.HSet(ctx, key,
		"enabled", "1",
		"enabled_at", strconv.FormatInt(now.UnixMilli(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return nil
}

// AdvanceTOTPCounter compares and sets the counter in one script so two
// requests carrying the same code cannot both advance it.
func (s *TwoFactorStore) AdvanceTOTPCounter(ctx context.Context, actorID string, counter int64) (bool, error) {
	n, err := advanceCounterLua.Run(ctx, s.redis, []string{s.secretKey(actorID)}, counter).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return n == 1, nil
}

func (s *TwoFactorStore) DeleteTwoFactor(ctx context.Context, actorID string) error {
	if err := s.redis.Del(ctx, s.secretKey(actorID), s.codesKey(actorID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return nil
}

func (s *TwoFactorStore) ReplaceBackupCodes(ctx context.Context, actorID string, codes []mfa.BackupCode) error {
	key := s.codesKey(actorID)
	values := make([]interface{}, 0, len(codes)*2)
	for _, c := range codes {
		values = append(values, c.CodeHash, c.ID)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return nil
}

func (s *TwoFactorStore) ConsumeBackupCode(ctx context.Context, actorID, codeHash string, _ time.Time) (bool, error) {
	n, err := s.redis.HDel(ctx, s.codesKey(actorID), codeHash).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return n == 1, nil
}

func (s *TwoFactorStore) CountUnusedBackupCodes(ctx context.Context, actorID string) (int, error) {
	n, err := s.redis.HLen(ctx, s.codesKey(actorID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTwoFactorBackend, err)
	}
	return int(n), nil
}

func parseMillis(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTwoFactorCorrupt, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
