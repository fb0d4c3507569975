package counter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// opTimeout bounds every store call so a stalled backend surfaces as
// ErrStoreUnavailable instead of blocking admission checks.
const opTimeout = 2 * time.Second

// incrWithWindowScript combines INCR and the first-increment EXPIRE into a
// single store-side step. Two concurrent first-increments can therefore not
// race on expiry-setting, and a key can never be created without a TTL.
const incrWithWindowScript = `local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count`

// incrByWithWindowScript is the INCRBY variant; the key is new exactly when
// the post-increment value equals the delta.
const incrByWithWindowScript = `local count = redis.call("INCRBY", KEYS[1], ARGV[1])
if count == tonumber(ARGV[1]) then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return count`

// sortedReplaceScript swaps one member for another in a single step.
const sortedReplaceScript = `redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
return 1`

// rangeAppendScript appends a sample, trims the history to its bound and
// refreshes the window in one step.
const rangeAppendScript = `redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("LTRIM", KEYS[1], -tonumber(ARGV[2]), -1)
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1`

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
}

// RedisStore implements Store against a shared Redis backend, making limits
// and detections globally consistent across engine instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(config Config, logger *logrus.Logger) (*RedisStore, error) {
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	}
	if config.TLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true, // #nosec G402
		}
	}
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"host":  config.Host,
			"port":  config.Port,
			"error": err.Error(),
		}).Error("failed to connect to redis")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	logger.WithFields(logrus.Fields{
		"host": config.Host,
		"port": config.Port,
	}).Info("redis connected successfully")

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) IncrementWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	result, err := s.client.Eval(ctx, incrWithWindowScript, []string{key}, windowSeconds(window)).Result()
	if err != nil {
		return 0, storeErr(err)
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected increment reply %T", ErrStoreUnavailable, result)
	}
	return count, nil
}

func (s *RedisStore) IncrementByWithWindow(ctx context.Context, key string, delta int64, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	result, err := s.client.Eval(ctx, incrByWithWindowScript, []string{key}, delta, windowSeconds(window)).Result()
	if err != nil {
		return 0, storeErr(err)
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected increment reply %T", ErrStoreUnavailable, result)
	}
	return count, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	value, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr(err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) TimeToLive(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, storeErr(err)
	}
	// -1 (no expiry) and -2 (absent) both report as no active window.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) RangeAppend(ctx context.Context, key string, value int64, window time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	err := s.client.Eval(ctx, rangeAppendScript, []string{key}, value, historyMaxLen, windowSeconds(window)).Err()
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) RangeQuery(ctx context.Context, key string) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	values := make([]int64, 0, len(raw))
	for _, item := range raw {
		value, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed history sample %q", ErrStoreUnavailable, item)
		}
		values = append(values, value)
	}
	return values, nil
}

func (s *RedisStore) SortedAdd(ctx context.Context, key string, score float64, member string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) SortedRemove(ctx context.Context, key string, member string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) SortedReplace(ctx context.Context, key string, oldMember string, score float64, newMember string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Eval(ctx, sortedReplaceScript, []string{key}, oldMember, score, newMember).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisStore) SortedRange(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	members, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	return members, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func windowSeconds(window time.Duration) int64 {
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
