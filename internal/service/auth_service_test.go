package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService("secret")
	claims := models.JWTClaims{
		UserID: "u1",
		Role:   models.RoleAdmin,
		Email:  "admin@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	parsed, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), claims))
	require.NoError(t, err)
	assert.Equal(t, "u1", parsed.UserID)
	assert.Equal(t, models.RoleAdmin, parsed.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewAuthService("secret")
	future := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, RegisteredClaims: future}),
		"expired": signToken(t, jwt.SigningMethodHS256, []byte("secret"), models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"wrong algorithm": signToken(t, jwt.SigningMethodHS512, []byte("secret"), models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, RegisteredClaims: future}),
		"missing role":    signToken(t, jwt.SigningMethodHS256, []byte("secret"), models.JWTClaims{UserID: "u1", RegisteredClaims: future}),
		"garbage":         "not-a-token",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}
