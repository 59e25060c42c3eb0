package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("orders_backend/workflow")

// Locker is satisfied by *redislock.Client.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

type release func()

func noRelease() {}

// obtainLock takes key with redislock. strict turns ErrNotObtained into
// busyErr; otherwise a missing or failing Redis only logs and the caller
// carries on under its row locks.
func obtainLock(ctx context.Context, logger *logrus.Logger, locker Locker, key string, ttl time.Duration, strict bool, busyErr error) (release, error) {
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"field": "obtainLock",
			"key":   key,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return noRelease, nil
	}
	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		if strict {
			return noRelease, busyErr
		}
		logger.WithFields(logrus.Fields{
			"field": "obtainLock",
			"key":   key,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return noRelease, nil
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field": "obtainLock",
			"key":   key,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return noRelease, nil
	}
	return func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.WithFields(logrus.Fields{
				"field": "obtainLock",
				"key":   key,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}, nil
}
