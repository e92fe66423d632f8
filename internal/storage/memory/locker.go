package memory

import (
	"context"
	"sync"
	"time"

	"aparthotel/internal/domain"
)

// Locker hands out leases within one process.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	token uint64
	now   func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), now: time.Now}
}

var _ domain.Locker = (*Locker)(nil)

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, domain.ErrSyncInProgress
	}
	l.token++
	tok := l.token
	l.held[key] = lease{token: tok, expires: now.Add(ttl)}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == tok {
			delete(l.held, key)
		}
	}, nil
}
