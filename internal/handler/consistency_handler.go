package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/dto"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/response"
)

type consistencyAuditor interface {
	Audit(ctx context.Context) (*models.ConsistencyReport, error)
	AuditPair(ctx context.Context, studentID, courseID string) (*models.ConsistencyReport, error)
}

type reconciliationEngine interface {
	Repair(ctx context.Context, issues []models.Issue) (*models.RepairSummary, error)
	CleanupOrphans(ctx context.Context) (int, error)
}

// ConsistencyHandler exposes audit and repair operations to admins.
type ConsistencyHandler struct {
	auditor  consistencyAuditor
	engine   reconciliationEngine
	validate *validator.Validate
}

// NewConsistencyHandler builds the handler.
func NewConsistencyHandler(auditor consistencyAuditor, engine reconciliationEngine) *ConsistencyHandler {
	return &ConsistencyHandler{auditor: auditor, engine: engine, validate: validator.New()}
}

// Check godoc
// @Summary Audit enrollment consistency
// @Description Pass both student_id and course_id to audit a single pair.
// @Tags Consistency
// @Produce json
// @Param student_id query string false "Student ID"
// @Param course_id query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /consistency [get]
func (h *ConsistencyHandler) Check(c *gin.Context) {
	studentID, courseID := c.Query("student_id"), c.Query("course_id")
	var (
		report *models.ConsistencyReport
		err    error
	)
	if studentID != "" || courseID != "" {
		report, err = h.auditor.AuditPair(c.Request.Context(), studentID, courseID)
	} else {
		report, err = h.auditor.Audit(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Repair godoc
// @Summary Repair reported divergence
// @Description Without a body the engine audits first and repairs everything it finds.
// @Tags Consistency
// @Accept json
// @Produce json
// @Param payload body dto.RepairRequest false "Issues to repair"
// @Success 200 {object} response.Envelope
// @Router /consistency/repair [post]
func (h *ConsistencyHandler) Repair(c *gin.Context) {
	var req dto.RepairRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid repair payload"))
			return
		}
		if err := h.validateIssues(req.Issues); err != nil {
			response.Error(c, err)
			return
		}
	}
	summary, err := h.engine.Repair(c.Request.Context(), req.Issues)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// CleanupOrphans godoc
// @Summary Delete rows whose student or course is gone
// @Tags Consistency
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /consistency/orphans/cleanup [post]
func (h *ConsistencyHandler) CleanupOrphans(c *gin.Context) {
	deleted, err := h.engine.CleanupOrphans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CleanupResponse{DeletedCount: deleted}, nil)
}

func (h *ConsistencyHandler) validateIssues(issues []models.Issue) error {
	for _, issue := range issues {
		if err := h.validate.Struct(issue); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid repair payload")
		}
		if !issue.Kind.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown issue kind %q", issue.Kind))
		}
	}
	return nil
}
