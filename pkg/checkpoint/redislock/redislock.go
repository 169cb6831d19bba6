// Package redislock is a cross-process advisory lock for the checkpoint
// sealer, backed by a Redis SET NX PX so only one writer process seals
// at a time even when several run behind a shared immutable store.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

// releaseScript deletes the lock key only if it still holds this
// instance's token, so a lock that expired and was re-acquired by
// another process is never released out from under it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Lock is a Redis-backed checkpoint.Locker.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
}

// New creates a Lock over client, guarding the given key with the given
// TTL. retryInterval controls how often Lock polls while the key is held
// by another process.
func New(client *redis.Client, key string, ttl, retryInterval time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl, retry: retryInterval}
}

// Lock blocks until the advisory lock is acquired or ctx is done,
// returning a function that releases it.
func (l *Lock) Lock(ctx context.Context) (func(), error) {
	token, err := randomToken()
	if err != nil {
		return nil, auditerr.New("redislock.Lock", auditerr.KindConnectionFailed, err)
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, auditerr.New("redislock.Lock", auditerr.KindConnectionFailed, err)
		}
		if ok {
			return func() {
				releaseScript.Run(context.Background(), l.client, []string{l.key}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, auditerr.New("redislock.Lock", auditerr.KindConnectionFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("redislock: generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
