package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/dto"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/service"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/response"
)

type enrollmentCoordinator interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*service.EnrollResult, error)
	EnrollWithRetry(ctx context.Context, req service.EnrollRequest, maxElapsed time.Duration) (*service.EnrollResult, error)
}

// EnrollmentHandler exposes the enrollment entry points.
type EnrollmentHandler struct {
	coordinator     enrollmentCoordinator
	retryMaxElapsed time.Duration
}

// NewEnrollmentHandler builds the handler. retryMaxElapsed bounds payment retries.
func NewEnrollmentHandler(coordinator enrollmentCoordinator, retryMaxElapsed time.Duration) *EnrollmentHandler {
	return &EnrollmentHandler{coordinator: coordinator, retryMaxElapsed: retryMaxElapsed}
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Description Students may only enroll themselves through the free or public-direct paths.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	source := models.EnrollmentSource(req.Source)
	if source == models.EnrollmentSourceReconciliation {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollment source not allowed"))
		return
	}
	if claims.Role == models.RoleStudent {
		if req.StudentID == "" {
			req.StudentID = claims.UserID
		}
		if req.StudentID != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves"))
			return
		}
		if source == "" {
			source = models.EnrollmentSourceFree
		}
		if source != models.EnrollmentSourceFree && source != models.EnrollmentSourcePublicDirect {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "enrollment source not allowed"))
			return
		}
	}

	result, err := h.coordinator.Enroll(c.Request.Context(), service.EnrollRequest{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Source:    source,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	writeEnrollResult(c, result)
}

// PaymentCompleted godoc
// @Summary Grant access after a settled payment
// @Description Retries transient failures before answering.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.PaymentCompletedRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /payments/completed [post]
func (h *EnrollmentHandler) PaymentCompleted(c *gin.Context) {
	var req dto.PaymentCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	result, err := h.coordinator.EnrollWithRetry(c.Request.Context(), service.EnrollRequest{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Source:    models.EnrollmentSourcePayment,
	}, h.retryMaxElapsed)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeEnrollResult(c, result)
}

func writeEnrollResult(c *gin.Context, result *service.EnrollResult) {
	response.Upserted(c, result.Created, result)
}
