package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// TTLActivity is how long weekly counts are reused. Watch mode reruns well
// within it, so repeated runs cost no API requests.
const TTLActivity = 30 * time.Minute

// ActivityCache serves weekly commit counts from Redis and asks next on a
// miss. Cache failures never fail the query.
type ActivityCache struct {
	cache *Cache
	next  checker.ActivityQuery
	ttl   time.Duration
}

// NewActivityCache wraps next. A non-positive ttl uses TTLActivity.
func NewActivityCache(cache *Cache, next checker.ActivityQuery, ttl time.Duration) *ActivityCache {
	if ttl <= 0 {
		ttl = TTLActivity
	}
	return &ActivityCache{cache: cache, next: next, ttl: ttl}
}

// ActivityKey identifies the counts of one student over one period.
func ActivityKey(student grading.Student, start, end shared.Date) string {
	return PrefixActivity + student.Nickname + ":" + start.String() + ":" + end.String()
}

// WeeklyCommits implements checker.ActivityQuery.
func (a *ActivityCache) WeeklyCommits(ctx context.Context, student grading.Student, start, end shared.Date) ([]grading.WeeklyCommits, error) {
	log := logger.FromContext(ctx).With(logger.Component("activity-cache"), logger.StudentID(student.ID()))
	key := ActivityKey(student, start, end)

	var weeks []grading.WeeklyCommits
	err := a.cache.Get(ctx, key, &weeks)
	switch {
	case err == nil:
		log.Debug("activity cache hit")
		return weeks, nil
	case !errors.Is(err, ErrCacheMiss):
		log.Warn("activity cache read failed", logger.Err(err))
	}

	weeks, err = a.next.WeeklyCommits(ctx, student, start, end)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(ctx, key, weeks, a.ttl); err != nil {
		log.Warn("activity cache write failed", logger.Err(err))
	}
	return weeks, nil
}
