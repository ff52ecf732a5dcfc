package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes data with an optional pagination block and meta map.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	write(c, status, envelope)
}

// Created responds with HTTP 201.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Upserted answers idempotent writes: 201 when a record was created, 200 when
// an existing one was returned.
func Upserted(c *gin.Context, created bool, data interface{}) {
	if created {
		Created(c, data)
		return
	}
	JSON(c, http.StatusOK, data, nil)
}

// Page writes a list result. A nil slice is rendered as an empty list.
func Page[T any](c *gin.Context, items []T, pagination *models.Pagination) {
	if items == nil {
		items = []T{}
	}
	JSON(c, http.StatusOK, items, pagination)
}

// Error maps err onto the envelope. Retryable failures carry Retry-After.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}
	if appErr.Retryable {
		c.Header("Retry-After", "1")
	}
	write(c, appErr.Status, Envelope{Error: appErr})
}

func write(c *gin.Context, status int, envelope Envelope) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, envelope)
}
