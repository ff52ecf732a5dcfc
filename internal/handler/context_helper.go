package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/middleware"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/response"
)

// requireActor returns the authenticated caller. When the request carries no
// usable claims it writes a 401 and reports false.
func requireActor(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if exists {
		if claims, ok := value.(*models.JWTClaims); ok && claims != nil && claims.UserID != "" {
			return claims, true
		}
	}
	response.Error(c, appErrors.ErrUnauthorized)
	return nil, false
}
