package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

// CacheStore abstracts persistence for cached payloads.
type CacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedCourseReader serves course lookups from a short-lived cache in front
// of the catalog. Misses and cache failures fall through to the backing
// reader; absent courses are never cached.
type CachedCourseReader struct {
	next    courseReader
	cache   CacheStore
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCachedCourseReader wraps next. ttl must be positive.
func NewCachedCourseReader(next courseReader, cache CacheStore, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *CachedCourseReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCourseReader{next: next, cache: cache, ttl: ttl, metrics: metrics, logger: logger}
}

// FindByID implements courseReader.
func (r *CachedCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var cached models.Course
	err := r.cache.Get(ctx, id, &cached)
	if err == nil {
		r.metrics.RecordCacheLookup(true)
		return &cached, nil
	}
	r.metrics.RecordCacheLookup(false)
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		r.logger.Warn("course cache get failed", zap.String("course_id", id), zap.Error(err))
	}

	course, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, id, course, r.ttl); err != nil {
		r.logger.Warn("course cache set failed", zap.String("course_id", id), zap.Error(err))
	}
	return course, nil
}

// Invalidate drops cached entries so the next lookup reads the catalog.
func (r *CachedCourseReader) Invalidate(ctx context.Context, ids ...string) error {
	return r.cache.Delete(ctx, ids...)
}
