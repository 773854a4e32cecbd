package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id":      "u-42",
		"display_name": "Anna",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	identity, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", identity.UserID)
	assert.Equal(t, "Anna", identity.DisplayName)
}

func TestParseTokenFallsBackToUserID(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "u-42"})

	identity, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", identity.DisplayName)
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	_, err := ParseToken(testSecret, "not-a-token")
	assert.Error(t, err)

	// Wrong secret.
	token := signToken(t, "other-secret", jwt.MapClaims{"user_id": "u-42"})
	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)

	// Missing user_id claim.
	token = signToken(t, testSecret, jwt.MapClaims{"display_name": "Anna"})
	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)

	// Expired.
	token = signToken(t, testSecret, jwt.MapClaims{
		"user_id": "u-42",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(AuthMiddleware(testSecret))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})

	t.Run("valid token passes", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"user_id": "u-42"})
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "u-42")
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
