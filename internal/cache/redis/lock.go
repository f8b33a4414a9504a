package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"perparb/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// InstanceLock serializes instances per market using Redis SETNX with a TTL
// and a Lua-based conditional unlock. Each running instance trades exactly
// one instrument; the lock makes that property hold across hosts and
// restarts.
type InstanceLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewInstanceLock creates an InstanceLock backed by the given Client.
func NewInstanceLock(c *Client) *InstanceLock {
	return &InstanceLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(market string) string {
	return "arb:lock:" + market
}

// Acquire attempts to take the lock for the market. A zero ttl means the
// lock has no expiry and is held until released. On success it returns an
// unlock function that is safe to call multiple times; when another
// instance already trades the market it returns domain.ErrLockHeld.
func (l *InstanceLock) Acquire(ctx context.Context, market string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(market)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", market, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: market %s: %w", market, domain.ErrLockHeld)
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Background context so unlock succeeds even when the caller's
		// context is already cancelled during shutdown.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}

	return unlock, nil
}
