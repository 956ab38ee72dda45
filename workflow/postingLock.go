package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// PostingLocker serializes one user's mutations across instances with a
// redis lock. It is best effort: correctness rests on recomputing balances
// from history, so a lock that cannot be obtained is logged and skipped.
type PostingLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logrus.Logger
}

func NewPostingLocker(client *redislock.Client, ttl time.Duration, logger *logrus.Logger) *PostingLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &PostingLocker{client: client, ttl: ttl, wait: 2 * time.Second, logger: logger}
}

func postingLockKey(userId string) string {
	return fmt.Sprintf("posting:%s", userId)
}

// Acquire returns the release func; it never blocks longer than the wait window.
func (l *PostingLocker) Acquire(ctx context.Context, userId string) func() {
	if l == nil || l.client == nil {
		return func() {}
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.client.Obtain(waitCtx, postingLockKey(userId), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"field":   "AcquirePostingLock",
			"user_id": userId,
		}).Warn("posting lock not obtained, continuing unlocked: " + err.Error())
		return func() {}
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
			l.logger.WithFields(logrus.Fields{
				"field":   "ReleasePostingLock",
				"user_id": userId,
			}).Warn("posting lock release failed: " + err.Error())
		}
	}
}

func (e *Engine) lock(ctx context.Context, userId string) func() {
	return e.locker.Acquire(ctx, userId)
}
