package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeServiceUnavailable, "lock is held by another process")
	ErrLockNotHeld     = errors.New(errors.ErrCodeCacheError, "lock not held by this owner")
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Lock is a single-owner lease on a key.
type Lock struct {
	client *Client
	key    string
	token  string
}

var (
	defaultToken = uuid.NewString
	newToken     = defaultToken
)

// TryLock acquires key for ttl or fails with ErrLockNotAcquired.  The lease
// expires on its own if the holder dies.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	token := newToken()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquisition failed").WithDetail(key)
	}
	if !ok {
		return nil, ErrLockNotAcquired.WithDetail(key)
	}
	c.logger.Debug("lock acquired", logOwner(key, token)...)
	return &Lock{client: c, key: key, token: token}, nil
}

// Release frees the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	n, err := l.client.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock release failed").WithDetail(l.key)
	}
	if n == 0 {
		return ErrLockNotHeld.WithDetail(l.key)
	}
	l.client.logger.Debug("lock released", logOwner(l.key, l.token)...)
	return nil
}

func logOwner(key, token string) []logging.Field {
	return []logging.Field{logging.String("key", key), logging.String("token", token)}
}
