package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is a per-call processing lock. Concurrent redelivery of the same
// call id (visibility timeout firing while the first worker is still alive)
// would otherwise let two jobs own one call; the loser requeues without
// touching call state.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

func (l *Locker) key(callID string) string {
	return l.prefix + ":lock:" + callID
}

var unlockScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = fencing token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Acquire takes the lock for a call id. The returned token fences the release
// so an expired holder cannot free a lock it no longer owns. The TTL bounds
// leaks on worker crash.
func (l *Locker) Acquire(ctx context.Context, callID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(callID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock only when the token still matches.
func (l *Locker) Release(ctx context.Context, callID, token string) error {
	return unlockScript.Run(ctx, l.client, []string{l.key(callID)}, token).Err()
}
