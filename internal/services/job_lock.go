package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrJobLocked = errors.New("job is already running")

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// JobLocker serializes batch runs across processes. With no redis client it
// grants every lock; the row locks and accrual guards still keep postings
// exactly-once.
type JobLocker struct {
	client *redis.Client
	ttl    time.Duration
	token  func() string
}

func NewJobLocker(client *redis.Client, ttl time.Duration) *JobLocker {
	return &JobLocker{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString,
	}
}

// Acquire takes the lock for key and returns its release func.
func (l *JobLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}

	lockKey := "lock:" + key
	token := l.token()
	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"module": "job_lock",
			"key":    lockKey,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return func() {}, nil
	}
	if !ok {
		return nil, ErrJobLocked
	}

	return func() {
		res, err := l.client.Eval(context.Background(), unlockScript, []string{lockKey}, token).Result()
		if err != nil {
			logrus.WithField("key", lockKey).Warn("failed to release redis lock: " + err.Error())
			return
		}
		if res == int64(0) {
			logrus.WithField("key", lockKey).Warn("redis lock expired before release")
		}
	}, nil
}
