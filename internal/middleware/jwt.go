package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT requires a valid bearer token and stores its claims under
// ContextUserKey. The caller's id and role are attached to the active span.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abort(c, err)
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			abort(c, err)
			return
		}
		if claims == nil || claims.UserID == "" {
			abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject"))
			return
		}

		trace.SpanFromContext(c.Request.Context()).SetAttributes(
			attribute.String("enduser.id", claims.UserID),
			attribute.String("enduser.role", string(claims.Role)),
		)
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return token, nil
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
