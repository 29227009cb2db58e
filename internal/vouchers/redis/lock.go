package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-attendance/internal/logger"
)

const defaultLockTTL = time.Minute

// releaseScript deletes the key only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IssuanceLock keeps two callers from running bulk issuance for the same
// event at once. The database unique key is what guarantees one voucher per
// holder and category; the lock only avoids duplicate work.
type IssuanceLock struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
}

func NewIssuanceLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *IssuanceLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &IssuanceLock{
		Client: client,
		Logger: log,
		TTL:    ttl,
	}
}

func lockKey(eventID string) string {
	return "voucher_issuance_lock:" + eventID
}

// Acquire takes the lock under a fresh token. It returns ok=false without
// error when someone else holds it; the token is only meaningful when ok.
func (l *IssuanceLock) Acquire(ctx context.Context, eventID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, lockKey(eventID), token, l.TTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire issuance lock: %w", err)
	}
	if !ok {
		l.Logger.Debug("REDIS", fmt.Sprintf("Issuance lock for event %s is held elsewhere", eventID))
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lock only when it is still held under token. An expired
// lock taken over by another caller is left alone.
func (l *IssuanceLock) Release(ctx context.Context, eventID, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.Client, []string{lockKey(eventID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release issuance lock: %w", err)
	}
	return nil
}
