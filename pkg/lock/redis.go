package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the caller still owns it,
// so an expired lock re-acquired by another instance is never released by
// the original holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a distributed per-event advisory lock for deployments
// where several engine instances may receive the same event. Acquisition
// does not wait: a held lock fails fast with ErrHeld and the caller treats
// the attempt as already-handled.
type RedisLocker struct {
	client *redis.Client
	expiry time.Duration
}

// NewRedisLocker builds a locker over the given client. Expiry bounds how
// long a crashed holder can block the event; it must comfortably exceed
// one posting attempt.
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 30 * time.Second
	}
	return &RedisLocker{client: client, expiry: expiry}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, eventID string) (func(), error) {
	key := "hedgeledger:posting:" + eventID
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.expiry).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire posting lock %s: %w", eventID, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Result()
	}
	return release, nil
}
