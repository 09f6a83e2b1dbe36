package utils

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/sirupsen/logrus"
)

// Locker serialises work on one key across instances. Release must be safe
// to call once.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

var ErrLockNotObtained = errors.New("lock not obtained")

type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

// BestEffortLock takes the lock when it can and otherwise proceeds without
// it; correctness is still guaranteed by the database transaction.
func BestEffortLock(ctx context.Context, locker Locker, logger *logrus.Logger, key string, field string) func() {
	if locker == nil {
		return func() {}
	}
	release, err := locker.Obtain(ctx, key, 30*time.Second)
	if err != nil {
		config.LoggerOrDefault(logger).WithFields(logrus.Fields{
			"field":    field,
			"lock_key": key,
		}).Warn("could not obtain redis lock; proceeding without redis lock: " + err.Error())
		return func() {}
	}
	return release
}
