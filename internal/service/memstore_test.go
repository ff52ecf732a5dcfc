package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/repository"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/lock"
)

// memStore mirrors the uniqueness rules and scan queries of the postgres schema.
type memStore struct {
	mu          sync.Mutex
	students    map[string]models.Student
	courses     map[string]models.Course
	enrollments map[string]models.Enrollment
	shadows     map[string]models.ProgressShadow
	requests    map[string]models.AccessRequest

	createCalls  int
	failCreates  int
	scanErr      error
	beforeCreate func()
}

func newMemStore() *memStore {
	return &memStore{
		students:    map[string]models.Student{},
		courses:     map[string]models.Course{},
		enrollments: map[string]models.Enrollment{},
		shadows:     map[string]models.ProgressShadow{},
		requests:    map[string]models.AccessRequest{},
	}
}

func (m *memStore) addStudent(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[id] = models.Student{ID: id, FullName: id, Active: active}
}

func (m *memStore) addCourse(c models.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Status == "" {
		c.Status = models.CourseStatusPublished
	}
	m.courses[c.ID] = c
}

func (m *memStore) softDeleteCourse(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.courses[id]
	now := time.Now()
	c.DeletedAt = &now
	m.courses[id] = c
}

func (m *memStore) putEnrollment(e models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == "" {
		e.Status = models.EnrollmentStatusActive
	}
	m.enrollments[e.ID] = e
}

func (m *memStore) putShadow(s models.ProgressShadow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shadows[s.ID] = s
}

func (m *memStore) putRequest(r models.AccessRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = r
}

func (m *memStore) deleteEnrollment(studentID, courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			delete(m.enrollments, id)
		}
	}
}

func (m *memStore) counts() (enrollments, shadows, requests int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments), len(m.shadows), len(m.requests)
}

func (m *memStore) shadowFor(studentID, courseID string) *models.ProgressShadow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.findShadowLocked(studentID, courseID); ok {
		return &s
	}
	return nil
}

func (m *memStore) activeLocked(studentID, courseID string) (models.Enrollment, bool) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID && e.Status == models.EnrollmentStatusActive {
			return e, true
		}
	}
	return models.Enrollment{}, false
}

func (m *memStore) findShadowLocked(studentID, courseID string) (models.ProgressShadow, bool) {
	for _, s := range m.shadows {
		if s.StudentID == studentID && s.CourseID == courseID {
			return s, true
		}
	}
	return models.ProgressShadow{}, false
}

func (m *memStore) liveLocked(studentID, courseID string) bool {
	s, ok := m.students[studentID]
	if !ok || s.DeletedAt != nil {
		return false
	}
	c, ok := m.courses[courseID]
	return ok && c.DeletedAt == nil
}

// enrollment store

func (m *memStore) FindActive(_ context.Context, studentID, courseID string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.activeLocked(studentID, courseID); ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memStore) CreateWithShadow(_ context.Context, enrollment *models.Enrollment, shadow *models.ProgressShadow) error {
	m.mu.Lock()
	hook := m.beforeCreate
	m.beforeCreate = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failCreates > 0 {
		m.failCreates--
		return errors.New("connection reset by peer")
	}
	if _, ok := m.activeLocked(enrollment.StudentID, enrollment.CourseID); ok {
		return fmt.Errorf("insert enrollment: %w", repository.ErrActiveEnrollmentExists)
	}
	m.enrollments[enrollment.ID] = *enrollment
	if _, ok := m.findShadowLocked(shadow.StudentID, shadow.CourseID); !ok {
		m.shadows[shadow.ID] = *shadow
	}
	return nil
}

func (m *memStore) InsertShadow(_ context.Context, shadow *models.ProgressShadow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.findShadowLocked(shadow.StudentID, shadow.CourseID); ok {
		return false, nil
	}
	m.shadows[shadow.ID] = *shadow
	return true, nil
}

// access request store

func (m *memStore) Create(_ context.Context, req *models.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.StudentID == req.StudentID && r.CourseID == req.CourseID && r.IsPending() {
			return repository.ErrPendingRequestExists
		}
	}
	m.requests[req.ID] = *req
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *memStore) FindPending(_ context.Context, studentID, courseID string) (*models.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.StudentID == studentID && r.CourseID == courseID && r.IsPending() {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) List(_ context.Context, filter models.AccessRequestFilter) ([]models.AccessRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.AccessRequest
	for _, r := range m.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && r.CourseID != filter.CourseID {
			continue
		}
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []models.AccessRequest{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func (m *memStore) MarkReviewed(_ context.Context, params repository.ReviewAccessRequestParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[params.ID]
	if !ok || !r.IsPending() {
		return sql.ErrNoRows
	}
	reviewer := params.ReviewedBy
	at := params.ReviewedAt
	r.Status = params.Status
	r.ReviewedBy = &reviewer
	r.ReviewedAt = &at
	r.RejectionReason = params.RejectionReason
	r.UpdatedAt = at
	m.requests[params.ID] = r
	return nil
}

func (m *memStore) DeletePending(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || !r.IsPending() {
		return 0, nil
	}
	if _, enrolled := m.activeLocked(r.StudentID, r.CourseID); !enrolled {
		return 0, nil
	}
	delete(m.requests, id)
	return 1, nil
}

// consistency scanner

func (m *memStore) Scan(_ context.Context, kind models.IssueKind, scope *models.EnrollmentKey) ([]models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var issues []models.Issue
	add := func(recordID, studentID, courseID string) {
		if scope != nil && (scope.StudentID != studentID || scope.CourseID != courseID) {
			return
		}
		issues = append(issues, models.Issue{Kind: kind, StudentID: studentID, CourseID: courseID, RecordID: recordID})
	}

	switch kind {
	case models.IssueProgressOnly:
		for _, s := range m.shadows {
			if _, ok := m.activeLocked(s.StudentID, s.CourseID); m.liveLocked(s.StudentID, s.CourseID) && !ok {
				add(s.ID, s.StudentID, s.CourseID)
			}
		}
	case models.IssueEnrollmentOnly:
		for _, e := range m.enrollments {
			if _, ok := m.findShadowLocked(e.StudentID, e.CourseID); m.liveLocked(e.StudentID, e.CourseID) && e.Status == models.EnrollmentStatusActive && !ok {
				add(e.ID, e.StudentID, e.CourseID)
			}
		}
	case models.IssueApprovedWithoutEnrollment, models.IssuePendingWhileEnrolled:
		for _, r := range m.requests {
			if !m.liveLocked(r.StudentID, r.CourseID) {
				continue
			}
			_, enrolled := m.activeLocked(r.StudentID, r.CourseID)
			if kind == models.IssueApprovedWithoutEnrollment && r.IsApproved() && !enrolled {
				add(r.ID, r.StudentID, r.CourseID)
			}
			if kind == models.IssuePendingWhileEnrolled && r.IsPending() && enrolled {
				add(r.ID, r.StudentID, r.CourseID)
			}
		}
	case models.IssueOrphanEnrollment:
		for _, e := range m.enrollments {
			if !m.liveLocked(e.StudentID, e.CourseID) {
				add(e.ID, e.StudentID, e.CourseID)
			}
		}
	case models.IssueOrphanProgress:
		for _, s := range m.shadows {
			if !m.liveLocked(s.StudentID, s.CourseID) {
				add(s.ID, s.StudentID, s.CourseID)
			}
		}
	case models.IssueOrphanAccessRequest:
		for _, r := range m.requests {
			if !m.liveLocked(r.StudentID, r.CourseID) {
				add(r.ID, r.StudentID, r.CourseID)
			}
		}
	default:
		return nil, fmt.Errorf("unknown issue kind %q", kind)
	}
	return issues, nil
}

func (m *memStore) DeleteOrphan(_ context.Context, kind models.IssueKind, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case models.IssueOrphanEnrollment:
		if e, ok := m.enrollments[id]; ok && !m.liveLocked(e.StudentID, e.CourseID) {
			delete(m.enrollments, id)
			return 1, nil
		}
	case models.IssueOrphanProgress:
		if s, ok := m.shadows[id]; ok && !m.liveLocked(s.StudentID, s.CourseID) {
			delete(m.shadows, id)
			return 1, nil
		}
	case models.IssueOrphanAccessRequest:
		if r, ok := m.requests[id]; ok && !m.liveLocked(r.StudentID, r.CourseID) {
			delete(m.requests, id)
			return 1, nil
		}
	default:
		return 0, fmt.Errorf("issue kind %q is not an orphan kind", kind)
	}
	return 0, nil
}

func (m *memStore) DeleteAllOrphans(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, r := range m.requests {
		if !m.liveLocked(r.StudentID, r.CourseID) {
			delete(m.requests, id)
			deleted++
		}
	}
	for id, s := range m.shadows {
		if !m.liveLocked(s.StudentID, s.CourseID) {
			delete(m.shadows, id)
			deleted++
		}
	}
	for id, e := range m.enrollments {
		if !m.liveLocked(e.StudentID, e.CourseID) {
			delete(m.enrollments, id)
			deleted++
		}
	}
	return deleted, nil
}

// memCourses and memStudents split the two FindByID lookups off the shared store.
type memCourses struct{ store *memStore }

func (c memCourses) FindByID(_ context.Context, id string) (*models.Course, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	course, ok := c.store.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type memStudents struct{ store *memStore }

func (s memStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	student, ok := s.store.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingNotifier) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	store       *memStore
	locker      *lock.MemoryLocker
	notifier    *recordingNotifier
	coordinator *EnrollmentCoordinator
	requests    *AccessRequestService
	auditor     *ConsistencyAuditor
	engine      *ReconciliationEngine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	locker := lock.NewMemoryLocker(lock.WithTimeout(time.Second))
	notifier := &recordingNotifier{}
	logger := zap.NewNop()

	coordinator := NewEnrollmentCoordinator(store, memCourses{store}, memStudents{store}, locker, nil, logger,
		WithCoordinatorNotifier(notifier))
	auditor := NewConsistencyAuditor(store, nil, logger)
	return &harness{
		store:       store,
		locker:      locker,
		notifier:    notifier,
		coordinator: coordinator,
		requests:    NewAccessRequestService(store, store, memCourses{store}, coordinator, notifier, nil, logger),
		auditor:     auditor,
		engine:      NewReconciliationEngine(auditor, coordinator, store, store, store, store, notifier, nil, logger),
	}
}

// seedCatalog adds an active student and a free, public, published course.
func (h *harness) seedCatalog(studentIDs []string, courseIDs ...string) {
	for _, id := range studentIDs {
		h.store.addStudent(id, true)
	}
	for _, id := range courseIDs {
		h.store.addCourse(models.Course{ID: id, Title: id, IsPublic: true})
	}
}
