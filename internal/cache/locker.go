package cache

import (
	"context"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/google/uuid"
)

// Locker hands out per-resource try-locks shared by every API instance
type Locker struct {
	cache  *Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewLocker creates a distributed locker whose locks expire after ttl
func NewLocker(cache *Cache, ttl time.Duration, logger *logging.Logger) *Locker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Locker{cache: cache, ttl: ttl, logger: logger}
}

// TryLock acquires key without waiting. When acquired is false another
// holder owns the lock.
func (l *Locker) TryLock(ctx context.Context, key string) (release func(), acquired bool, err error) {
	token := uuid.New().String()

	ok, err := l.cache.AcquireLock(ctx, key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.cache.ReleaseLock(ctx, key, token); err != nil {
			l.logger.WithError(err).Warnf("Failed to release lock %s", key)
		}
	}, true, nil
}
