package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/service"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

type accessRequestServiceMock struct {
	createResp  *models.AccessRequest
	created     bool
	createInput service.CreateAccessRequestInput
	getResp     *models.AccessRequest
	getErr      error
	listFilter  models.AccessRequestFilter
	approveResp *service.ApprovalResult
	approveErr  error
	rejectResp  *models.AccessRequest
	reviewInput service.ReviewInput
	reviewedID  string
}

func (m *accessRequestServiceMock) Create(ctx context.Context, input service.CreateAccessRequestInput) (*models.AccessRequest, bool, error) {
	m.createInput = input
	return m.createResp, m.created, nil
}

func (m *accessRequestServiceMock) Get(ctx context.Context, id string) (*models.AccessRequest, error) {
	return m.getResp, m.getErr
}

func (m *accessRequestServiceMock) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequest, *models.Pagination, error) {
	m.listFilter = filter
	return []models.AccessRequest{{ID: "req-1"}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func (m *accessRequestServiceMock) Approve(ctx context.Context, id string, input service.ReviewInput) (*service.ApprovalResult, error) {
	m.reviewedID = id
	m.reviewInput = input
	return m.approveResp, m.approveErr
}

func (m *accessRequestServiceMock) Reject(ctx context.Context, id string, input service.ReviewInput) (*models.AccessRequest, error) {
	m.reviewedID = id
	m.reviewInput = input
	return m.rejectResp, nil
}

var adminClaims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestAccessRequestHandlerCreate(t *testing.T) {
	mock := &accessRequestServiceMock{createResp: &models.AccessRequest{ID: "req-1"}, created: true}
	handler := NewAccessRequestHandler(mock)

	c, w := newJSONContext(t, http.MethodPost, "/access-requests", map[string]string{"course_id": "course-1", "reason": "rotation"}, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, service.CreateAccessRequestInput{StudentID: "stu-1", CourseID: "course-1", Reason: "rotation"}, mock.createInput)

	mock.created = false
	c, w = newJSONContext(t, http.MethodPost, "/access-requests", map[string]string{"course_id": "course-1"}, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	handler.Create(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newJSONContext(t, http.MethodPost, "/access-requests", map[string]string{}, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccessRequestHandlerList(t *testing.T) {
	mock := &accessRequestServiceMock{}
	handler := NewAccessRequestHandler(mock)

	c, w := newJSONContext(t, http.MethodGet, "/access-requests?status=pending&course_id=course-1&page=2&page_size=10", nil, adminClaims)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AccessRequestFilter{Status: models.AccessRequestPending, CourseID: "course-1", Page: 2, PageSize: 10}, mock.listFilter)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestAccessRequestHandlerGetNotFound(t *testing.T) {
	handler := NewAccessRequestHandler(&accessRequestServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "access request not found")})

	c, w := newJSONContext(t, http.MethodGet, "/access-requests/missing", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccessRequestHandlerApprove(t *testing.T) {
	mock := &accessRequestServiceMock{approveResp: &service.ApprovalResult{
		Request:    &models.AccessRequest{ID: "req-1", Status: models.AccessRequestApproved},
		Enrollment: &models.Enrollment{ID: "enr-1"},
	}}
	handler := NewAccessRequestHandler(mock)

	c, w := newJSONContext(t, http.MethodPost, "/access-requests/req-1/approve", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", mock.reviewedID)
	assert.Equal(t, "admin-1", mock.reviewInput.ReviewerID)
	assert.Contains(t, w.Body.String(), `"enrollment":{"id":"enr-1"`)

	mock.approveErr = appErrors.Clone(appErrors.ErrInvalidState, "access request was already rejected")
	c, w = newJSONContext(t, http.MethodPost, "/access-requests/req-1/approve", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	handler.Approve(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAccessRequestHandlerReject(t *testing.T) {
	mock := &accessRequestServiceMock{rejectResp: &models.AccessRequest{ID: "req-1", Status: models.AccessRequestRejected}}
	handler := NewAccessRequestHandler(mock)

	c, w := newJSONContext(t, http.MethodPost, "/access-requests/req-1/reject", map[string]string{"reason": "missing prerequisites"}, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "missing prerequisites", mock.reviewInput.Reason)
	assert.Contains(t, w.Body.String(), `"status":"rejected"`)

	c, w = newJSONContext(t, http.MethodPost, "/access-requests/req-1/reject", `{"reason":`, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	handler.Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
