package redisad

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"aparthotel/internal/domain"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lease lock shared by every process using the same Redis.
type Locker struct {
	c      *redis.Client
	prefix string
}

func NewLocker(c *redis.Client) *Locker {
	return &Locker{c: c, prefix: "lock:"}
}

var _ domain.Locker = (*Locker)(nil)

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSyncInProgress
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.c, []string{k}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("lock release failed; lease will expire")
		}
	}, nil
}
