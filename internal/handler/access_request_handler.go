package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/dto"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/service"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/response"
)

type accessRequestService interface {
	Create(ctx context.Context, input service.CreateAccessRequestInput) (*models.AccessRequest, bool, error)
	Get(ctx context.Context, id string) (*models.AccessRequest, error)
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequest, *models.Pagination, error)
	Approve(ctx context.Context, id string, input service.ReviewInput) (*service.ApprovalResult, error)
	Reject(ctx context.Context, id string, input service.ReviewInput) (*models.AccessRequest, error)
}

// AccessRequestHandler exposes the access request workflow.
type AccessRequestHandler struct {
	service accessRequestService
}

// NewAccessRequestHandler builds the handler.
func NewAccessRequestHandler(svc accessRequestService) *AccessRequestHandler {
	return &AccessRequestHandler{service: svc}
}

// Create godoc
// @Summary Request access to a gated course
// @Tags AccessRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateAccessRequestRequest true "Access request payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /access-requests [post]
func (h *AccessRequestHandler) Create(c *gin.Context) {
	claims, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateAccessRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid access request payload"))
		return
	}
	item, created, err := h.service.Create(c.Request.Context(), service.CreateAccessRequestInput{
		StudentID: claims.UserID,
		CourseID:  req.CourseID,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Upserted(c, created, item)
}

// List godoc
// @Summary List access requests
// @Tags AccessRequests
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param student_id query string false "Student filter"
// @Param course_id query string false "Course filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /access-requests [get]
func (h *AccessRequestHandler) List(c *gin.Context) {
	var query dto.AccessRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), models.AccessRequestFilter{
		Status:    models.AccessRequestStatus(query.Status),
		StudentID: query.StudentID,
		CourseID:  query.CourseID,
		Page:      query.Page,
		PageSize:  query.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pagination)
}

// Get godoc
// @Summary Get an access request
// @Tags AccessRequests
// @Produce json
// @Param id path string true "Access request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /access-requests/{id} [get]
func (h *AccessRequestHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Approve godoc
// @Summary Approve an access request and enroll the student
// @Tags AccessRequests
// @Accept json
// @Produce json
// @Param id path string true "Access request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /access-requests/{id}/approve [post]
func (h *AccessRequestHandler) Approve(c *gin.Context) {
	input, ok := reviewInput(c)
	if !ok {
		return
	}
	result, err := h.service.Approve(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject an access request
// @Tags AccessRequests
// @Accept json
// @Produce json
// @Param id path string true "Access request ID"
// @Param payload body dto.ReviewAccessRequestRequest false "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /access-requests/{id}/reject [post]
func (h *AccessRequestHandler) Reject(c *gin.Context) {
	input, ok := reviewInput(c)
	if !ok {
		return
	}
	item, err := h.service.Reject(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"request": item}, nil)
}

func reviewInput(c *gin.Context) (service.ReviewInput, bool) {
	claims, ok := requireActor(c)
	if !ok {
		return service.ReviewInput{}, false
	}
	var body dto.ReviewAccessRequestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
			return service.ReviewInput{}, false
		}
	}
	return service.ReviewInput{ReviewerID: claims.UserID, Reason: body.Reason}, true
}
