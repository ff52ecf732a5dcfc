package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

type mapCache struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
	sets   int
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.values[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

type countingCourses struct {
	courses map[string]*models.Course
	calls   int
}

func (c *countingCourses) FindByID(_ context.Context, id string) (*models.Course, error) {
	c.calls++
	course, ok := c.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func TestCachedCourseReaderHitsAfterFirstLookup(t *testing.T) {
	backing := &countingCourses{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Anatomy", Status: models.CourseStatusPublished, IsPublic: true},
	}}
	metrics := NewMetricsService()
	reader := NewCachedCourseReader(backing, newMapCache(), time.Minute, metrics, nil)
	ctx := context.Background()

	first, err := reader.FindByID(ctx, "course-1")
	require.NoError(t, err)
	second, err := reader.FindByID(ctx, "course-1")
	require.NoError(t, err)

	assert.Equal(t, 1, backing.calls)
	assert.Equal(t, first.Title, second.Title)
	assert.True(t, second.IsPublic)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))

	require.NoError(t, reader.Invalidate(ctx, "course-1"))
	_, err = reader.FindByID(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedCourseReaderDoesNotCacheMissingCourses(t *testing.T) {
	backing := &countingCourses{courses: map[string]*models.Course{}}
	cache := newMapCache()
	reader := NewCachedCourseReader(backing, cache, time.Minute, nil, nil)

	_, err := reader.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = reader.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, 2, backing.calls)
	assert.Zero(t, cache.sets)
}

func TestCachedCourseReaderFallsThroughOnCacheFailure(t *testing.T) {
	backing := &countingCourses{courses: map[string]*models.Course{"course-1": {ID: "course-1"}}}
	cache := newMapCache()
	cache.getErr = errors.New("redis: connection refused")
	reader := NewCachedCourseReader(backing, cache, time.Minute, nil, nil)

	course, err := reader.FindByID(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "course-1", course.ID)
	assert.Equal(t, 1, backing.calls)
}

func TestCoordinatorWithCachedCourses(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog([]string{"stu-1"}, "course-1")
	cached := NewCachedCourseReader(memCourses{h.store}, newMapCache(), time.Minute, nil, nil)
	coordinator := NewEnrollmentCoordinator(h.store, cached, memStudents{h.store}, h.locker, nil, nil)

	result, err := coordinator.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "course-1", Source: models.EnrollmentSourceFree})
	require.NoError(t, err)
	assert.True(t, result.Created)
}
