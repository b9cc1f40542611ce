package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	minBackoff = 10 * time.Millisecond
	maxBackoff = 500 * time.Millisecond
)

// deletes the key only when the caller still owns it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// extends the key only when the caller still owns it
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}

// Redis is a Locker shared by every fern instance, built on SET NX with owner-checked release
type Redis struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
	timeout   time.Duration
	logger    ectologger.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis locker. Zero durations use the defaults.
func NewRedis(rdb *redis.Client, keyPrefix string, ttl, timeout time.Duration, logger ectologger.Logger) *Redis {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &Redis{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		timeout:   timeout,
		logger:    logger,
	}
}

// Acquire retries SET NX with exponential backoff until the lock is held or the timeout passes
func (r *Redis) Acquire(ctx context.Context, key string) (Lock, error) {
	deadline := time.Now().Add(r.timeout)
	backoff := minBackoff

	for {
		l, err := r.tryAcquire(ctx, key)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			r.logger.WithContext(ctx).WithFields(map[string]any{"lock_key": key}).Warn("Timed out waiting for lock")
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

func (r *Redis) tryAcquire(ctx context.Context, key string) (*redisLock, error) {
	lockKey := r.keyPrefix + key
	value := uuid.New().String()

	ok, err := r.rdb.SetNX(ctx, lockKey, value, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	r.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
	return &redisLock{owner: r, key: lockKey, value: value}, nil
}

type redisLock struct {
	owner *Redis
	key   string
	value string
}

// Release deletes the lock key if this holder still owns it
func (l *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.owner.rdb, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.owner.logger.WithContext(ctx).Debugf("Released lock: %s", l.key)
	return nil
}

// Extend resets the TTL of a held lock
func (l *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.owner.rdb, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}
