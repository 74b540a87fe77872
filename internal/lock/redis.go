package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// defaultTTL должен превышать чтение и запись строки вместе (по 10s на запрос к Sheets).
const (
	defaultTTL       = 30 * time.Second
	defaultWait      = 5 * time.Second
	defaultRetry     = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
	defaultKeyPrefix = "impulsaweb:lock:"
)

// ErrTimeout возвращается, если ключ не удалось захватить за отведённое время.
var ErrTimeout = errors.New("lock wait timeout")

// Redis — распределённая блокировка через SET NX PX с проверкой токена при освобождении.
type Redis struct {
	client *redis.Client
	script *redis.Script
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// RedisOption настраивает Redis.
type RedisOption func(*Redis)

// WithTTL задаёт время жизни блокировки.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithWait задаёт максимальное время ожидания захвата.
func WithWait(wait time.Duration) RedisOption {
	return func(r *Redis) {
		r.wait = wait
	}
}

// WithKeyPrefix задаёт префикс ключей в Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis создаёт распределённую блокировку поверх клиента Redis.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		prefix: defaultKeyPrefix,
		ttl:    defaultTTL,
		wait:   defaultWait,
		retry:  defaultRetry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryLock делает одну попытку захвата и возвращает токен владельца.
func (r *Redis) TryLock(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if r.ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release снимает блокировку, только если она всё ещё принадлежит владельцу токена.
func (r *Redis) Release(ctx context.Context, key, token string) error {
	if r == nil || r.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return r.script.Run(ctx, r.client, []string{r.prefix + key}, token).Err()
}

// Lock повторяет попытки захвата до успеха, отмены контекста или ErrTimeout.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(r.wait)

	for {
		token, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
				defer cancel()
				_ = r.Release(releaseCtx, key, token)
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}
